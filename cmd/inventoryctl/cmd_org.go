package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/hugh/gcp-inventory/internal/api/validation"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/pkg/crypto"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	orgName     string
	orgKeyFile  string
	orgGCPID    string
	orgSchedule string
	orgAuto     bool
	orgDisable  []string
	orgRef      string
)

var orgCmd = &cobra.Command{
	Use:   "org",
	Short: "Manage organizations",
}

var orgCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register an organization and its service account",
	Example: `  inventoryctl org create --name acme --service-account-file key.json
  inventoryctl org create --name acme --service-account-file key.json \
      --gcp-org-id 123456789012 --auto-discover --schedule "0 3 * * *" --disable serverless,iam`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.Encryption.Key == "" {
			return errors.New("ENCRYPTION_KEY must be set to store service accounts")
		}
		enc, err := crypto.NewEncryptor(cfg.Encryption.Key)
		if err != nil {
			return fmt.Errorf("creating encryptor: %w", err)
		}

		key, err := os.ReadFile(orgKeyFile)
		if err != nil {
			return fmt.Errorf("reading service account file: %w", err)
		}

		db, closeDB, err := openDB()
		if err != nil {
			return err
		}
		defer closeDB()

		org, err := createOrganization(cmd.Context(), db, enc, validation.OrganizationInput{
			Name:              orgName,
			GCPOrganizationID: orgGCPID,
			AutoDiscover:      orgAuto,
			Schedule:          orgSchedule,
			ServiceAccount:    key,
		}, orgDisable)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created organization %s (%s)\n", org.Name, org.ID)
		return nil
	},
}

var orgListCmd = &cobra.Command{
	Use:   "list",
	Short: "List organizations and their scan state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, closeDB, err := openDB()
		if err != nil {
			return err
		}
		defer closeDB()

		var orgs []models.Organization
		if err := db.WithContext(cmd.Context()).Order("name").Find(&orgs).Error; err != nil {
			return fmt.Errorf("listing organizations: %w", err)
		}
		printOrganizations(cmd.OutOrStdout(), orgs)
		return nil
	},
}

var orgResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Return an idle organization to pending and clear its scan error",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, closeApp, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer closeApp()

		org, err := resolveOrganization(cmd.Context(), a.DB, orgRef)
		if err != nil {
			return err
		}
		if err := a.Coordinator.Reset(cmd.Context(), org.ID); err != nil {
			return fmt.Errorf("resetting %s: %w", org.Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "organization %s reset to pending\n", org.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(orgCmd)
	orgCmd.AddCommand(orgCreateCmd, orgListCmd, orgResetCmd)

	orgCreateCmd.Flags().StringVar(&orgName, "name", "", "Organization name (unique)")
	orgCreateCmd.Flags().StringVar(&orgKeyFile, "service-account-file", "", "Path to the service account key JSON")
	orgCreateCmd.Flags().StringVar(&orgGCPID, "gcp-org-id", "", "Restrict project listing to this GCP organization node")
	orgCreateCmd.Flags().StringVar(&orgSchedule, "schedule", "", "Five-field cron schedule for automatic discovery")
	orgCreateCmd.Flags().BoolVar(&orgAuto, "auto-discover", false, "Run discovery on the schedule")
	orgCreateCmd.Flags().StringSliceVar(&orgDisable, "disable", nil, "Resource groups to skip: "+strings.Join(groupNames, ","))
	_ = orgCreateCmd.MarkFlagRequired("name")
	_ = orgCreateCmd.MarkFlagRequired("service-account-file")

	orgResetCmd.Flags().StringVar(&orgRef, "org", "", "Organization name or ID")
}

var groupNames = []string{"networking", "compute", "databases", "storage", "kubernetes", "serverless", "iam"}

func createOrganization(ctx context.Context, db *gorm.DB, enc *crypto.Encryptor, in validation.OrganizationInput, disable []string) (*models.Organization, error) {
	if errs := validation.ValidateOrganization(in); len(errs) > 0 {
		return nil, validationError(errs)
	}

	org := models.NewOrganization(strings.TrimSpace(in.Name))
	org.GCPOrganizationID = in.GCPOrganizationID
	org.AutoDiscover = in.AutoDiscover
	org.DiscoverySchedule = in.Schedule

	toggles := map[string]*bool{
		"networking": &org.DiscoverNetworking,
		"compute":    &org.DiscoverCompute,
		"databases":  &org.DiscoverDatabases,
		"storage":    &org.DiscoverStorage,
		"kubernetes": &org.DiscoverKubernetes,
		"serverless": &org.DiscoverServerless,
		"iam":        &org.DiscoverIAM,
	}
	for _, name := range disable {
		toggle, ok := toggles[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown resource group %q (want one of %s)", name, strings.Join(groupNames, ", "))
		}
		*toggle = false
	}

	sealed, err := enc.Seal(in.ServiceAccount)
	if err != nil {
		return nil, fmt.Errorf("encrypting service account: %w", err)
	}
	org.EncryptedServiceAccount = sealed

	if err := db.WithContext(ctx).Create(org).Error; err != nil {
		return nil, fmt.Errorf("creating organization: %w", err)
	}
	return org, nil
}

func validationError(errs map[string]string) error {
	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	msgs := make([]string, len(fields))
	for i, f := range fields {
		msgs[i] = f + ": " + errs[f]
	}
	return fmt.Errorf("invalid organization: %s", strings.Join(msgs, "; "))
}

func printOrganizations(out io.Writer, orgs []models.Organization) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tID\tSTATUS\tLAST SCAN\tSCHEDULE")
	for _, org := range orgs {
		last := "-"
		if org.LastScanAt != nil {
			last = org.LastScanAt.UTC().Format("2006-01-02 15:04")
		}
		schedule := "-"
		if org.AutoDiscover {
			schedule = org.DiscoverySchedule
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", org.Name, org.ID, org.ScanStatus, last, schedule)
	}
	_ = w.Flush()
}
