package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AuthError means the organization's credentials could not be used at all.
// It is fatal to a scan.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gcp authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Class is the outcome bucket for a failed cloud call.
type Class int

const (
	// ClassFailure covers transient and unclassified errors. The collector
	// stops early and the error is logged.
	ClassFailure Class = iota
	// ClassWarning covers resources the credentials cannot see or that do
	// not exist. The listing is treated as empty.
	ClassWarning
	// ClassAuth covers rejected credentials.
	ClassAuth
)

func (c Class) String() string {
	switch c {
	case ClassWarning:
		return "warning"
	case ClassAuth:
		return "auth"
	default:
		return "failure"
	}
}

// Classification is the result of Classify.
type Classification struct {
	Class  Class
	Code   int
	Reason string
}

var warningReasons = map[string]bool{
	"notFound":         true,
	"permissionDenied": true,
	"forbidden":        true,
	"SERVICE_DISABLED": true,
}

// Classify buckets an error returned by Client. Nil classifies as a failure
// and callers are expected not to ask.
func Classify(err error) Classification {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return Classification{Class: ClassAuth, Code: http.StatusUnauthorized, Reason: "unauthenticated"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Class: ClassFailure, Reason: "timeout"}
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) && warningReasons[apiErr.Reason()] {
		return Classification{Class: ClassWarning, Code: apiErr.HTTPCode(), Reason: apiErr.Reason()}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		reason := ""
		if len(gerr.Errors) > 0 {
			reason = gerr.Errors[0].Reason
		}
		return classifyHTTP(gerr.Code, reason)
	}

	if st, ok := status.FromError(err); ok {
		return classifyGRPC(st.Code())
	}

	return Classification{Class: ClassFailure}
}

func classifyHTTP(code int, reason string) Classification {
	c := Classification{Class: ClassFailure, Code: code, Reason: reason}
	switch {
	case warningReasons[reason]:
		c.Class = ClassWarning
	case code == http.StatusUnauthorized:
		c.Class = ClassAuth
	case code == http.StatusForbidden, code == http.StatusNotFound:
		c.Class = ClassWarning
	}
	return c
}

func classifyGRPC(code codes.Code) Classification {
	c := Classification{Class: ClassFailure, Reason: code.String()}
	switch code {
	case codes.NotFound, codes.PermissionDenied:
		c.Class = ClassWarning
	case codes.Unauthenticated:
		c.Class = ClassAuth
	}
	return c
}
