package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// serviceAccountKey mirrors the fields of a GCP service-account JSON key
// file that this package cares about. golang.org/x/oauth2/google parses
// the full document for token acquisition; we re-parse the same bytes here
// to extract the signing identity for internal/signer, since
// google.CredentialsFromJSON does not expose the private key once it has
// built a TokenSource from it.
type serviceAccountKey struct {
	Type        string `json:"type"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// GoogleCredentials implements CredentialsProvider using a GCP
// service-account JSON key, via golang.org/x/oauth2/google: OAuth2 token
// acquisition plus private-key extraction for signing.
type GoogleCredentials struct {
	email      string
	privateKey []byte
	source     oauth2.TokenSource
}

// NewGoogleCredentials parses a service-account JSON key (as downloaded
// from the GCP console) and returns a CredentialsProvider backed by it.
// scopes defaults to devstorage read-write if empty.
func NewGoogleCredentials(ctx context.Context, jsonKey []byte, scopes ...string) (*GoogleCredentials, error) {
	if len(scopes) == 0 {
		scopes = []string{
			"https://www.googleapis.com/auth/devstorage.read_write",
		}
	}

	creds, err := google.CredentialsFromJSON(ctx, jsonKey, scopes...)
	if err != nil {
		return nil, fmt.Errorf("transport: parsing service account credentials: %w", err)
	}

	var key serviceAccountKey
	if err := json.Unmarshal(jsonKey, &key); err != nil {
		return nil, fmt.Errorf("transport: parsing service account key for signing: %w", err)
	}

	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("transport: service account key missing client_email or private_key")
	}

	return &GoogleCredentials{
		email:      key.ClientEmail,
		privateKey: []byte(key.PrivateKey),
		source:     creds.TokenSource,
	}, nil
}

// Credentials returns the signing identity used by internal/signer.
func (g *GoogleCredentials) Credentials(_ context.Context) (Credentials, error) {
	return Credentials{ClientEmail: g.email, PrivateKeyPEM: g.privateKey}, nil
}

// Token returns a bearer token suitable for the Authorization header.
func (g *GoogleCredentials) Token(ctx context.Context) (string, error) {
	tok, err := g.source.Token()
	if err != nil {
		return "", fmt.Errorf("transport: obtaining token: %w", err)
	}

	return tok.AccessToken, nil
}

// StaticCredentials is a CredentialsProvider for tests and for callers that
// already hold a token source and signing key (e.g. obtained from a
// workload-identity exchange upstream of this library).
type StaticCredentials struct {
	Email      string
	PrivateKey []byte
	Source     oauth2.TokenSource
}

func (s StaticCredentials) Credentials(_ context.Context) (Credentials, error) {
	return Credentials{ClientEmail: s.Email, PrivateKeyPEM: s.PrivateKey}, nil
}

func (s StaticCredentials) Token(_ context.Context) (string, error) {
	tok, err := s.Source.Token()
	if err != nil {
		return "", fmt.Errorf("transport: obtaining token: %w", err)
	}

	return tok.AccessToken, nil
}
