package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/pkg/crypto"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const readOnlyScope = "https://www.googleapis.com/auth/cloud-platform.read-only"

// CredentialProvider turns an organization's stored secret into a Client.
// Failures are always *AuthError.
type CredentialProvider interface {
	Client(ctx context.Context, org *models.Organization) (Client, error)
}

// Authenticator opens the sealed service-account key, proves it can mint a
// token, and builds a RESTClient from it.
type Authenticator struct {
	encryptor *crypto.Encryptor
	opts      ClientOptions
	logger    *slog.Logger
}

func NewAuthenticator(encryptor *crypto.Encryptor, opts ClientOptions, logger *slog.Logger) *Authenticator {
	return &Authenticator{encryptor: encryptor, opts: opts, logger: logger}
}

func (a *Authenticator) Client(ctx context.Context, org *models.Organization) (Client, error) {
	if len(org.EncryptedServiceAccount) == 0 {
		return nil, &AuthError{Err: errors.New("organization has no service account configured")}
	}

	raw, err := a.encryptor.Open(org.EncryptedServiceAccount)
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("opening service account: %w", err)}
	}

	creds, err := google.CredentialsFromJSON(ctx, raw, readOnlyScope)
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("parsing service account: %w", err)}
	}
	if _, err := creds.TokenSource.Token(); err != nil {
		return nil, &AuthError{Err: fmt.Errorf("fetching token: %w", err)}
	}

	client, err := NewRESTClient(ctx, a.opts, option.WithCredentials(creds))
	if err != nil {
		return nil, &AuthError{Err: err}
	}

	a.logger.Debug("authenticated organization", "organization", org.Name, "project", creds.ProjectID)
	return client, nil
}

// ServiceAccountKey is the subset of a key file inventoryctl validates before
// sealing it.
type ServiceAccountKey struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

func ParseServiceAccountKey(raw []byte) (*ServiceAccountKey, error) {
	var key ServiceAccountKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, fmt.Errorf("decoding key file: %w", err)
	}
	if key.Type != "service_account" {
		return nil, fmt.Errorf("key file type %q is not service_account", key.Type)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, errors.New("key file is missing client_email or private_key")
	}
	return &key, nil
}
