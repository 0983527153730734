package discovery

import "errors"

var (
	// ErrConflict means the organization was not in a state that allows the
	// requested transition.
	ErrConflict = errors.New("organization state conflict")
	// ErrNotRunning is returned by RequestCancel when no scan is active.
	ErrNotRunning = errors.New("no running scan")
	// ErrParentNotFound marks an item whose parent resource is not in the
	// catalog yet. The item is skipped, not failed.
	ErrParentNotFound = errors.New("parent resource not discovered")
	ErrScanNotFound   = errors.New("scan not found")
	// ErrStaleScan is the cause recorded on scans failed by RecoverStale.
	ErrStaleScan = errors.New("stale scan")
	ErrOrgNotFound    = errors.New("organization not found")
)
