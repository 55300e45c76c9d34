// Package upload implements the two upload pipelines: a
// single-shot multipart uploader for small payloads, and a resumable
// session state machine for everything else, built around GCS's
// multipart-metadata-plus-content and Content-Range protocols.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/patrickml/gcsobject/internal/objectid"
	"github.com/patrickml/gcsobject/internal/transport"
)

// multipartBoundary is fixed rather than random: the body is built in one
// shot in memory, so there is no benefit to per-request randomness and a
// fixed boundary keeps request construction allocation-free beyond the
// buffer itself.
const multipartBoundary = "gcsobject-boundary-7c3b8f2a"

// SimpleUploader performs the single-request multipart upload.
type SimpleUploader struct {
	Transport *transport.Client
	Logger    *slog.Logger

	// BaseURL overrides transport.UploadBaseURL, for tests and emulators
	// (internal/config's upload base URL override).
	BaseURL string
}

// NewSimpleUploader constructs a SimpleUploader. A nil logger defaults to
// slog.Default().
func NewSimpleUploader(t *transport.Client, logger *slog.Logger) *SimpleUploader {
	if logger == nil {
		logger = slog.Default()
	}

	return &SimpleUploader{Transport: t, Logger: logger, BaseURL: transport.UploadBaseURL}
}

// Result is the decoded object resource returned by GCS on a successful
// write; callers replace their cached metadata with it.
type Result struct {
	Metadata map[string]any
}

// Upload sends content, already fully buffered by the caller since this
// path is for small payloads, as a multipart body: a JSON metadata part
// followed by the content part.
func (u *SimpleUploader) Upload(
	ctx context.Context, id objectid.ID, metadata map[string]any, contentType string, content []byte,
	preconditions ...objectid.Preconditions,
) (*Result, error) {
	body, boundary, err := buildMultipartBody(metadata, contentType, content)
	if err != nil {
		return nil, err
	}

	base := u.BaseURL
	if base == "" {
		base = transport.UploadBaseURL
	}

	url := fmt.Sprintf("%s/%s/o?uploadType=multipart&name=%s",
		base, id.Bucket(), id.EncodedName())

	if gen, ok := id.Generation(); ok {
		url += fmt.Sprintf("&ifGenerationMatch=%d", gen)
	}

	for _, pre := range preconditions {
		for _, pair := range pre.Pairs() {
			url += "&" + pair
		}
	}

	u.Logger.Debug("simple upload",
		slog.String("object", id.String()), slog.Int("size", len(content)))

	resp, err := u.Transport.Do(ctx, http.MethodPost, url, body, "multipart/related; boundary="+boundary)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var obj map[string]any
	if decErr := json.NewDecoder(resp.Body).Decode(&obj); decErr != nil {
		return nil, fmt.Errorf("upload: decoding simple upload response: %w", decErr)
	}

	u.Logger.Debug("simple upload complete", slog.String("object", id.String()))

	return &Result{Metadata: obj}, nil
}

// buildMultipartBody constructs the two-part body GCS's multipart upload
// expects: a JSON metadata part, then the raw content part. A fixed
// boundary and a bytes.Buffer suffice since the full payload is small and
// already in memory.
func buildMultipartBody(metadata map[string]any, contentType string, content []byte) (*bytes.Reader, string, error) {
	var buf bytes.Buffer

	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(multipartBoundary); err != nil {
		return nil, "", fmt.Errorf("upload: setting multipart boundary: %w", err)
	}

	metaPart, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return nil, "", fmt.Errorf("upload: creating metadata part: %w", err)
	}

	if metadata == nil {
		metadata = map[string]any{}
	}

	if err := json.NewEncoder(metaPart).Encode(metadata); err != nil {
		return nil, "", fmt.Errorf("upload: encoding metadata part: %w", err)
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	contentPart, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {contentType}})
	if err != nil {
		return nil, "", fmt.Errorf("upload: creating content part: %w", err)
	}

	if _, err := contentPart.Write(content); err != nil {
		return nil, "", fmt.Errorf("upload: writing content part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("upload: closing multipart writer: %w", err)
	}

	return bytes.NewReader(buf.Bytes()), multipartBoundary, nil
}
