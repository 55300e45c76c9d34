// Package objectid provides type-safe identity for objects stored in a
// Google Cloud Storage bucket. It consolidates the URL-encoding and
// generation-scoping logic that would otherwise be duplicated across the
// download, upload, signer, and metadata packages.
//
// This is a leaf package with zero external dependencies beyond stdlib.
package objectid

import (
	"fmt"
	"net/url"
)

// ID identifies a single object within a single bucket, optionally scoped
// to a specific generation. The zero value is not valid; use New.
type ID struct {
	bucket     string
	name       string
	generation int64 // 0 means "unset" (live object); valid generations are positive
}

// New creates an ID for the given bucket and object name. The generation is
// unset; use WithGeneration to scope to a specific generation.
func New(bucket, name string) (ID, error) {
	if bucket == "" {
		return ID{}, fmt.Errorf("objectid: bucket must not be empty")
	}

	if name == "" {
		return ID{}, fmt.Errorf("objectid: name must not be empty")
	}

	return ID{bucket: bucket, name: name}, nil
}

// WithGeneration returns a copy of id scoped to the given generation.
// generation must be a positive integer.
func (id ID) WithGeneration(generation int64) (ID, error) {
	if generation <= 0 {
		return ID{}, fmt.Errorf("objectid: generation must be positive, got %d", generation)
	}

	id.generation = generation

	return id, nil
}

// Bucket returns the bucket name.
func (id ID) Bucket() string { return id.bucket }

// Name returns the raw (non-encoded) object name.
func (id ID) Name() string { return id.name }

// Generation returns the scoped generation and whether one is set.
func (id ID) Generation() (int64, bool) {
	return id.generation, id.generation > 0
}

// EncodedName returns the object name, percent-encoded for embedding in
// a request path segment.
func (id ID) EncodedName() string {
	return url.PathEscape(id.name)
}

// DownloadURL returns the direct-download URL for this object:
// "https://storage.googleapis.com/{bucket}/{urlencode(name)}".
func (id ID) DownloadURL() string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", id.bucket, id.EncodedName())
}

// Resource returns the canonical "/bucket/urlencode(name)" resource path
// used in signed-URL string-to-sign construction.
func (id ID) Resource() string {
	return fmt.Sprintf("/%s/%s", id.bucket, id.EncodedName())
}

// String renders a human-readable identifier, e.g. for logging.
func (id ID) String() string {
	if gen, ok := id.Generation(); ok {
		return fmt.Sprintf("gs://%s/%s#%d", id.bucket, id.name, gen)
	}

	return fmt.Sprintf("gs://%s/%s", id.bucket, id.name)
}
