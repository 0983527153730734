package validation

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"

	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/pkg/util"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// GCP project IDs: 6-30 chars, lowercase letters, digits and hyphens,
	// starting with a letter and not ending with a hyphen.
	projectIDRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`)

	// Organization node IDs are numeric.
	gcpOrgIDRegex = regexp.MustCompile(`^[0-9]{1,20}$`)
)

const maxNameLength = 100

func IsValidEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

func IsValidProjectID(id string) bool {
	return projectIDRegex.MatchString(id)
}

func IsValidGCPOrganizationID(id string) bool {
	return gcpOrgIDRegex.MatchString(id)
}

// IsValidScanStatus accepts the statuses a Scan record can carry.
func IsValidScanStatus(status string) bool {
	switch models.ScanStatus(status) {
	case models.ScanStatusRunning, models.ScanStatusCanceled, models.ScanStatusCompleted, models.ScanStatusFailed:
		return true
	}
	return false
}

// OrganizationInput is what an operator supplies when registering an
// organization.
type OrganizationInput struct {
	Name              string
	GCPOrganizationID string
	AutoDiscover      bool
	Schedule          string
	ServiceAccount    []byte
}

// ValidateOrganization returns field -> message for every problem found.
func ValidateOrganization(in OrganizationInput) map[string]string {
	errors := make(map[string]string)

	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		errors["name"] = "Name is required"
	case len(name) > maxNameLength:
		errors["name"] = "Name must be at most 100 characters"
	case name != SanitizeString(name):
		errors["name"] = "Name must not contain control characters"
	}

	if in.GCPOrganizationID != "" && !IsValidGCPOrganizationID(in.GCPOrganizationID) {
		errors["gcp_organization_id"] = "GCP organization ID must be numeric"
	}

	if in.AutoDiscover && in.Schedule == "" {
		errors["schedule"] = "Auto-discovery requires a schedule"
	}
	if in.Schedule != "" {
		if err := util.ValidateCronExpr(in.Schedule); err != nil {
			errors["schedule"] = "Schedule must be a five-field cron expression"
		}
	}

	for field, msg := range ValidateServiceAccount(in.ServiceAccount) {
		errors[field] = msg
	}

	return errors
}

type serviceAccountKey struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// ValidateServiceAccount checks that raw looks like a service-account key file.
// It does not contact Google.
func ValidateServiceAccount(raw []byte) map[string]string {
	errors := make(map[string]string)
	if len(raw) == 0 {
		errors["service_account"] = "Service account key is required"
		return errors
	}

	var key serviceAccountKey
	if err := json.Unmarshal(raw, &key); err != nil {
		errors["service_account"] = "Service account key is not valid JSON"
		return errors
	}

	if key.Type != "service_account" {
		errors["service_account.type"] = "Key type must be service_account"
	}
	if !IsValidEmail(key.ClientEmail) {
		errors["service_account.client_email"] = "Key has no valid client_email"
	}
	if !strings.Contains(key.PrivateKey, "PRIVATE KEY") {
		errors["service_account.private_key"] = "Key has no private_key"
	}
	if key.ProjectID != "" && !IsValidProjectID(key.ProjectID) {
		errors["service_account.project_id"] = "Key project_id is not a valid project ID"
	}

	return errors
}

// SanitizeString removes control characters except newlines and tabs.
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")

	var result strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}

	return result.String()
}

func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
