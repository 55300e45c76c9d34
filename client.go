package gcsobject

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/patrickml/gcsobject/internal/resumestore"
	"github.com/patrickml/gcsobject/internal/signer"
	"github.com/patrickml/gcsobject/internal/transport"
	"github.com/patrickml/gcsobject/internal/upload"
)

// Client is the top-level entry point: it owns the shared HTTP connection
// pool and the resumable-session store, the only state shared across
// operations, and hands out BucketHandle/ObjectHandle values that are
// themselves cheap identifiers, immutable except for an ObjectHandle's
// cached metadata.
type Client struct {
	transport *transport.Client
	store     *resumestore.Store
	signer    *signer.Signer
	logger    *slog.Logger

	jsonAPIBase string

	simpleUploader    *upload.SimpleUploader
	resumableUploader *upload.ResumableUploader
}

// NewClient constructs a Client. httpClient may be nil (defaults to
// http.DefaultClient). logger may be nil (defaults to slog.Default()).
// store owns the persisted ResumableSessionRecord table
// (internal/resumestore.Open) and must outlive every resumable upload
// issued through this Client.
func NewClient(httpClient *http.Client, creds transport.CredentialsProvider, store *resumestore.Store, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	tr := transport.New(httpClient, creds, logger)

	return &Client{
		transport:         tr,
		store:             store,
		signer:            signer.New(creds),
		logger:            logger,
		jsonAPIBase:       transport.JSONAPIBaseURL,
		simpleUploader:    upload.NewSimpleUploader(tr, logger),
		resumableUploader: upload.NewResumableUploader(tr, store, logger),
	}
}

// Tuning carries optional client-side overrides. Zero values leave the
// built-in defaults in place.
type Tuning struct {
	// UploadBaseURL redirects both upload paths, for emulators and tests.
	UploadBaseURL string

	// JSONAPIBaseURL redirects the metadata/lifecycle operations.
	JSONAPIBaseURL string

	// MaxRetries bounds the transport's generic retry loop.
	MaxRetries int

	// ResumableRetryLimit bounds session restarts and backoff retries in
	// the resumable upload state machine.
	ResumableRetryLimit int

	// ProbeTimeout bounds a single resumable-upload offset-probe request.
	ProbeTimeout time.Duration
}

// ApplyTuning applies overrides to the client's transport and uploaders.
// Call before issuing operations; it is not safe to call concurrently
// with in-flight requests.
func (c *Client) ApplyTuning(t Tuning) {
	if t.UploadBaseURL != "" {
		c.simpleUploader.BaseURL = t.UploadBaseURL
		c.resumableUploader.BaseURL = t.UploadBaseURL
	}

	if t.JSONAPIBaseURL != "" {
		c.jsonAPIBase = t.JSONAPIBaseURL
	}

	if t.MaxRetries > 0 {
		c.transport.MaxRetries = t.MaxRetries
	}

	if t.ResumableRetryLimit > 0 {
		c.resumableUploader.RetryLimit = t.ResumableRetryLimit
	}

	if t.ProbeTimeout > 0 {
		c.resumableUploader.ProbeTimeout = t.ProbeTimeout
	}
}

// Bucket returns a handle scoped to the given bucket name. No I/O occurs.
func (c *Client) Bucket(name string) BucketHandle {
	return BucketHandle{client: c, name: name}
}

// BucketHandle identifies a bucket. It carries the minimum needed to
// construct ObjectHandle values and copy/move destinations.
type BucketHandle struct {
	client *Client
	name   string
}

// Name returns the bucket name.
func (b BucketHandle) Name() string { return b.name }

// Object returns a handle for the named object in this bucket.
func (b BucketHandle) Object(name string) (*ObjectHandle, error) {
	return newObjectHandle(b.client, b.name, name)
}
