// Package signer produces RSA-SHA256 signed URLs and signed POST policy
// documents: canonical string-to-sign assembly, PEM/PKCS8/PKCS1 private
// key parsing, and rsa.SignPKCS1v15 over a SHA-256 digest.
package signer

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickml/gcsobject/internal/transport"
)

// Action is the operation a signed URL authorizes.
type Action int

const (
	ActionRead Action = iota
	ActionWrite
	ActionDelete
)

func (a Action) verb() string {
	switch a {
	case ActionRead:
		return "GET"
	case ActionWrite:
		return "PUT"
	case ActionDelete:
		return "DELETE"
	default:
		return "GET"
	}
}

// URLRequest describes the URL to sign.
type URLRequest struct {
	Action      Action
	Expires     int64 // Unix seconds
	ContentMD5  string
	ContentType string

	// ExtensionHeaders are rendered in the order given, one per line, each
	// already in "name:value" form; callers own canonicalization.
	ExtensionHeaders []string

	ResponseDisposition string
	ResponseType        string
	PromptSaveAs        string
}

// ErrExpired is returned when expires is not strictly in the future.
var ErrExpired = errors.New("signer: expires must be in the future")

// Signer signs URLs and policy documents with the credentials' private key.
type Signer struct {
	Creds transport.CredentialsProvider
}

// New constructs a Signer.
func New(creds transport.CredentialsProvider) *Signer {
	return &Signer{Creds: creds}
}

// SignedURL assembles and signs the canonical string for a
// self-authenticating URL.
func (s *Signer) SignedURL(ctx context.Context, bucket, name string, req URLRequest, now int64) (string, error) {
	if req.Expires <= now {
		return "", ErrExpired
	}

	resource := "/" + bucket + "/" + url.PathEscape(name)

	stringToSign := strings.Join([]string{
		req.Action.verb(),
		req.ContentMD5,
		req.ContentType,
		strconv.FormatInt(req.Expires, 10),
		extensionHeadersBlock(req.ExtensionHeaders) + resource,
	}, "\n")

	creds, err := s.Creds.Credentials(ctx)
	if err != nil {
		return "", fmt.Errorf("signer: obtaining credentials: %w", err)
	}

	sig, err := signRSASHA256(creds.PrivateKeyPEM, []byte(stringToSign))
	if err != nil {
		return "", err
	}

	encodedSig := base64.StdEncoding.EncodeToString(sig)

	q := url.Values{}
	q.Set("GoogleAccessId", creds.ClientEmail)
	q.Set("Expires", strconv.FormatInt(req.Expires, 10))
	q.Set("Signature", encodedSig)

	disposition := req.ResponseDisposition
	if disposition == "" && req.PromptSaveAs != "" {
		disposition = fmt.Sprintf(`attachment; filename="%s"`, url.QueryEscape(req.PromptSaveAs))
	}

	if req.ResponseType != "" {
		q.Set("response-content-type", req.ResponseType)
	}

	if disposition != "" {
		q.Set("response-content-disposition", disposition)
	}

	return fmt.Sprintf("https://storage.googleapis.com%s?%s", resource, q.Encode()), nil
}

// extensionHeadersBlock renders extension headers each on its own line,
// immediately followed (no blank line) by the resource.
func extensionHeadersBlock(headers []string) string {
	if len(headers) == 0 {
		return ""
	}

	return strings.Join(headers, "\n") + "\n"
}

// Condition is one entry of a policy document's conditions array: either an
// ["eq"/"starts-with", field, value] triple or a {key: value} match object.
// Using json.RawMessage keeps ordering exact without inventing a sum type
// the encoding/json package can't already express faithfully.
type Condition = json.RawMessage

// FieldValue is one [field, value] policy constraint.
type FieldValue struct {
	Field string
	Value string
}

// ContentLengthRange is the optional numeric-bounds condition.
type ContentLengthRange struct {
	Min, Max int64
}

// PolicyRequest describes the POST policy document to sign.
type PolicyRequest struct {
	Bucket     string
	Key        string
	Expiration int64 // Unix seconds

	Equals     []FieldValue
	StartsWith []FieldValue

	ACL                   string
	SuccessRedirect       string
	SuccessStatus         string
	ContentLengthRange    *ContentLengthRange
	HasContentLengthRange bool
}

// PolicyResult carries the policy JSON, its base64 encoding, and the
// base64-encoded signature over that encoding.
type PolicyResult struct {
	String    string
	Base64    string
	Signature string
}

// SignedPolicy builds, serializes, and signs a POST policy document.
// Condition order is fixed: key, bucket, equals, startsWith, then the
// optional entries.
func (s *Signer) SignedPolicy(ctx context.Context, req PolicyRequest, now int64) (*PolicyResult, error) {
	if req.Expiration <= now {
		return nil, ErrExpired
	}

	conditions := make([]Condition, 0, 4+len(req.Equals)+len(req.StartsWith))

	conditions = append(conditions, mustMarshal([]any{"eq", "$key", req.Key}))
	conditions = append(conditions, mustMarshal(map[string]string{"bucket": req.Bucket}))

	for _, eq := range req.Equals {
		conditions = append(conditions, mustMarshal([]any{"eq", "$" + eq.Field, eq.Value}))
	}

	for _, sw := range req.StartsWith {
		conditions = append(conditions, mustMarshal([]any{"starts-with", "$" + sw.Field, sw.Value}))
	}

	if req.ACL != "" {
		conditions = append(conditions, mustMarshal(map[string]string{"acl": req.ACL}))
	}

	if req.SuccessRedirect != "" {
		conditions = append(conditions, mustMarshal(map[string]string{"success_action_redirect": req.SuccessRedirect}))
	}

	if req.SuccessStatus != "" {
		conditions = append(conditions, mustMarshal(map[string]string{"success_action_status": req.SuccessStatus}))
	}

	if req.HasContentLengthRange {
		conditions = append(conditions,
			mustMarshal([]any{"content-length-range", req.ContentLengthRange.Min, req.ContentLengthRange.Max}))
	}

	policy := struct {
		Expiration string      `json:"expiration"`
		Conditions []Condition `json:"conditions"`
	}{
		Expiration: time.Unix(req.Expiration, 0).UTC().Format(time.RFC3339),
		Conditions: conditions,
	}

	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return nil, fmt.Errorf("signer: encoding policy document: %w", err)
	}

	policyBase64 := base64.StdEncoding.EncodeToString(policyJSON)

	creds, err := s.Creds.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("signer: obtaining credentials: %w", err)
	}

	sig, err := signRSASHA256(creds.PrivateKeyPEM, []byte(policyBase64))
	if err != nil {
		return nil, err
	}

	return &PolicyResult{
		String:    string(policyJSON),
		Base64:    policyBase64,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("signer: marshaling condition: %v", err))
	}

	return b
}

// signRSASHA256 parses key (PEM or raw, PKCS8 or PKCS1) and signs data's
// SHA-256 digest with PKCS#1 v1.5.
func signRSASHA256(key []byte, data []byte) ([]byte, error) {
	priv, err := parseKey(key)
	if err != nil {
		return nil, fmt.Errorf("signer: parsing private key: %w", err)
	}

	sum := sha256.Sum256(data)

	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, sum[:])
	if err != nil {
		return nil, fmt.Errorf("signer: signing: %w", err)
	}

	return sig, nil
}

// parseKey converts a service-account private key, PEM-wrapped or not, in
// PKCS8 or PKCS1 form, to an *rsa.PrivateKey.
func parseKey(key []byte) (*rsa.PrivateKey, error) {
	if block, _ := pem.Decode(key); block != nil {
		key = block.Bytes
	}

	parsedKey, err := x509.ParsePKCS8PrivateKey(key)
	if err != nil {
		parsedKey, err = x509.ParsePKCS1PrivateKey(key)
		if err != nil {
			return nil, err
		}
	}

	rsaKey, ok := parsedKey.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("signer: private key is not RSA")
	}

	return rsaKey, nil
}
