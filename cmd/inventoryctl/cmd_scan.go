package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/internal/discovery"
	"github.com/hugh/gcp-inventory/internal/progress"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	scanOrg  string
	scanID   string
	scanLogs bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Start, cancel and inspect discovery scans",
}

var scanStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start discovery for an organization",
	Long: `Start lists the organization's projects and queues one batch task per
slice of projects. A worker must be running to process the batches.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		org, err := resolveOrganization(cmd.Context(), a.DB, scanOrg)
		if err != nil {
			return err
		}

		handle, err := a.Coordinator.StartScan(cmd.Context(), org.ID, models.ScanTriggerCLI)
		if err != nil {
			if handle != nil {
				return fmt.Errorf("scan %s failed: %w", handle.ScanID, err)
			}
			return err
		}
		printHandle(cmd.OutOrStdout(), org.Name, handle)
		return nil
	},
}

var scanCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Request cancellation of the running scan",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		org, err := resolveOrganization(cmd.Context(), a.DB, scanOrg)
		if err != nil {
			return err
		}

		res, err := a.Coordinator.RequestCancel(cmd.Context(), org.ID)
		if errors.Is(err, discovery.ErrNotRunning) {
			return fmt.Errorf("organization %s has no running scan", org.Name)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if res.AlreadyCanceling {
			fmt.Fprintf(out, "scan %s is already canceling\n", res.ScanID)
		} else {
			fmt.Fprintf(out, "cancellation requested for scan %s\n", res.ScanID)
		}
		return nil
	},
}

var scanStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a scan's status and resource counts",
	Long: `Status shows the given scan, or the latest scan of --org. Counts of a
running scan are read live from Redis.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		var scan *models.Scan
		if scanID != "" {
			id, err := uuid.Parse(scanID)
			if err != nil {
				return fmt.Errorf("invalid scan id %q", scanID)
			}
			scan, err = loadScan(cmd.Context(), a.DB, "id = ?", id)
			if err != nil {
				return err
			}
		} else {
			org, err := resolveOrganization(cmd.Context(), a.DB, scanOrg)
			if err != nil {
				return err
			}
			scan, err = loadScan(cmd.Context(), a.DB, "organization_id = ?", org.ID)
			if err != nil {
				return err
			}
		}

		return printScan(cmd.Context(), cmd.OutOrStdout(), a.Store, scan, scanLogs)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.AddCommand(scanStartCmd, scanCancelCmd, scanStatusCmd)

	for _, c := range []*cobra.Command{scanStartCmd, scanCancelCmd, scanStatusCmd} {
		c.Flags().StringVar(&scanOrg, "org", "", "Organization name or ID")
	}
	scanStatusCmd.Flags().StringVar(&scanID, "scan", "", "Scan ID (defaults to the organization's latest scan)")
	scanStatusCmd.Flags().BoolVar(&scanLogs, "logs", false, "Print the scan log")
}

func loadScan(ctx context.Context, db *gorm.DB, where string, arg any) (*models.Scan, error) {
	var scan models.Scan
	err := db.WithContext(ctx).Where(where, arg).Order("started_at DESC").First(&scan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New("scan not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading scan: %w", err)
	}
	return &scan, nil
}

func printHandle(out io.Writer, orgName string, h *discovery.ScanHandle) {
	if h.Conflict {
		fmt.Fprintf(out, "organization %s already has scan %s (%s)\n", orgName, h.ScanID, h.Status)
		return
	}
	fmt.Fprintf(out, "scan %s %s: %d projects in %d batches\n", h.ScanID, h.Status, h.Projects, h.TotalBatches)
}

// printScan writes the scan summary. Counts of an active scan come from the
// progress store since the row is only updated at finalization.
func printScan(ctx context.Context, out io.Writer, store progress.Store, scan *models.Scan, withLogs bool) error {
	counts := scan.CountMap()
	var logs []string
	if scan.Status.Active() {
		live, err := store.Counts(ctx, scan.ID)
		if err != nil {
			return fmt.Errorf("reading live counts: %w", err)
		}
		counts = live
		if withLogs {
			if logs, err = store.Logs(ctx, scan.ID); err != nil {
				return fmt.Errorf("reading live log: %w", err)
			}
		}
	} else if withLogs && scan.LogOutput != "" {
		logs = strings.Split(strings.TrimRight(scan.LogOutput, "\n"), "\n")
	}

	fmt.Fprintf(out, "Scan:     %s\n", scan.ID)
	fmt.Fprintf(out, "Status:   %s\n", scan.Status)
	fmt.Fprintf(out, "Trigger:  %s\n", scan.Trigger)
	fmt.Fprintf(out, "Started:  %s\n", scan.StartedAt.UTC().Format("2006-01-02 15:04:05"))
	if scan.CompletedAt != nil {
		fmt.Fprintf(out, "Finished: %s (%s)\n", scan.CompletedAt.UTC().Format("2006-01-02 15:04:05"),
			scan.CompletedAt.Sub(scan.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(out, "Batches:  %d\n", scan.TotalBatches)
	if scan.ErrorMessage != "" {
		fmt.Fprintf(out, "Errors:   %s\n", scan.ErrorMessage)
	}

	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tCOUNT")
	var total int64
	for _, k := range kinds {
		fmt.Fprintf(w, "%s\t%d\n", k, counts[k])
		total += counts[k]
	}
	fmt.Fprintf(w, "total\t%d\n", total)
	if err := w.Flush(); err != nil {
		return err
	}

	if len(logs) > 0 {
		fmt.Fprintln(out)
		for _, line := range logs {
			fmt.Fprintln(out, line)
		}
	}
	return nil
}
