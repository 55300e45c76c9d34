// Package download implements a single-object downloader: a
// lazily-connected, range-aware, gzip-transparent read stream with
// optional end-to-end integrity checking against the server's x-goog-hash
// header.
package download

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/patrickml/gcsobject/internal/hashstream"
	"github.com/patrickml/gcsobject/internal/objectid"
	"github.com/patrickml/gcsobject/internal/transport"
)

// ErrValidationWithRange is the construction-time error for a range request
// combined with integrity validation.
var ErrValidationWithRange = errors.New("download: cannot use validation with file ranges")

// ErrContentMismatch is returned from Read when the computed digest does
// not match the server-advertised one.
var ErrContentMismatch = errors.New("download: CONTENT_DOWNLOAD_MISMATCH")

// Config controls a single download.
type Config struct {
	ValidateCRC32C bool
	ValidateMD5    bool
	// Start and End are pointers so their absence (nil) is distinguishable
	// from zero.
	Start *int64
	End   *int64
}

// IsRange reports whether either bound is set, making this a range
// request.
func (c Config) IsRange() bool {
	return c.Start != nil || c.End != nil
}

// IsTail reports whether this is a tail request: negative End, no Start.
func (c Config) IsTail() bool {
	return c.Start == nil && c.End != nil && *c.End < 0
}

// Downloader streams a single object's content.
type Downloader struct {
	Transport *transport.Client
	ID        objectid.ID
}

// New rejects invalid configurations before any I/O occurs and returns a
// Downloader.
func New(t *transport.Client, id objectid.ID, cfg Config) (*Downloader, error) {
	if cfg.IsRange() && (cfg.ValidateCRC32C || cfg.ValidateMD5) {
		return nil, ErrValidationWithRange
	}

	return &Downloader{Transport: t, ID: id}, nil
}

// Attrs carries the server response headers surfaced with the stream.
type Attrs struct {
	StatusCode      int
	ContentLength   int64
	ContentType     string
	ContentEncoding string
	Header          http.Header
}

// Reader is the consumer-facing stream. The underlying HTTP request is
// not issued until the first Read call.
type Reader struct {
	downloader *Downloader
	cfg        Config
	ctx        context.Context
	cancel     context.CancelFunc

	once    sync.Once
	dialErr error

	rawBody io.ReadCloser // the raw HTTP response body (compressed, on-wire)
	body    io.Reader     // what the consumer reads: decompressed if needed
	hash    *hashstream.Stream

	Attrs Attrs

	finished bool
	mismatch error
}

// NewReader builds a lazy reader. No network I/O happens here.
func (d *Downloader) NewReader(ctx context.Context, cfg Config) *Reader {
	rctx, cancel := context.WithCancel(ctx)

	r := &Reader{downloader: d, cfg: cfg, ctx: rctx, cancel: cancel}
	if cfg.ValidateCRC32C || cfg.ValidateMD5 {
		r.hash = hashstream.New()
	}

	return r
}

// Read dials on first call, then streams decompressed bytes to p.
func (r *Reader) Read(p []byte) (int, error) {
	r.once.Do(r.dial)

	if r.dialErr != nil {
		return 0, r.dialErr
	}

	if r.mismatch != nil {
		return 0, r.mismatch
	}

	n, err := r.body.Read(p)
	if errors.Is(err, io.EOF) && !r.finished {
		r.finished = true

		if verr := r.verify(); verr != nil {
			r.mismatch = verr

			return n, verr
		}
	}

	return n, err
}

// Close aborts any in-flight request and releases the socket.
func (r *Reader) Close() error {
	r.cancel()

	if r.rawBody != nil {
		return r.rawBody.Close()
	}

	return nil
}

func (r *Reader) dial() {
	req, err := r.buildRequest()
	if err != nil {
		r.dialErr = err
		return
	}

	resp, err := r.downloader.Transport.DoRaw(req)
	if err != nil {
		r.dialErr = fmt.Errorf("download: request failed: %w", err)
		return
	}

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		r.dialErr = &transport.APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Err:        transport.ClassifyStatus(resp.StatusCode),
		}

		return
	}

	r.rawBody = resp.Body
	r.Attrs = Attrs{
		StatusCode:      resp.StatusCode,
		ContentLength:   resp.ContentLength,
		ContentType:     resp.Header.Get("Content-Type"),
		ContentEncoding: resp.Header.Get("Content-Encoding"),
		Header:          resp.Header,
	}

	// Integrity is computed on the on-wire (possibly compressed) bytes,
	// not the decompressed bytes delivered to the consumer.
	var wire io.Reader = resp.Body
	if r.hash != nil {
		wire = io.TeeReader(resp.Body, r.hash)
	}

	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, gzErr := gzip.NewReader(wire)
		if gzErr != nil {
			r.dialErr = fmt.Errorf("download: opening gzip stream: %w", gzErr)
			return
		}

		r.body = gz
	} else {
		r.body = wire
	}
}

func (r *Reader) buildRequest() (*http.Request, error) {
	u := r.downloader.ID.DownloadURL()

	if gen, ok := r.downloader.ID.Generation(); ok {
		u += "?generation=" + strconv.FormatInt(gen, 10)
	}

	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("download: building request: %w", err)
	}

	req.Header.Set("Accept-Encoding", "gzip")

	if rng := r.rangeHeader(); rng != "" {
		req.Header.Set("Range", rng)
	}

	return req, nil
}

// rangeHeader renders the Range header: "bytes=<start>-<end>" for normal
// ranges, "bytes=-<N>" for tail requests.
func (r *Reader) rangeHeader() string {
	if !r.cfg.IsRange() {
		return ""
	}

	if r.cfg.IsTail() {
		return fmt.Sprintf("bytes=%d", *r.cfg.End)
	}

	start := int64(0)
	if r.cfg.Start != nil {
		start = *r.cfg.Start
	}

	if r.cfg.End != nil {
		return fmt.Sprintf("bytes=%d-%d", start, *r.cfg.End)
	}

	return fmt.Sprintf("bytes=%d-", start)
}

// verify parses x-goog-hash and checks the running digests. A no-op for
// range requests (validation was rejected at construction time) or when
// no digest was requested.
func (r *Reader) verify() error {
	if r.hash == nil {
		return nil
	}

	entries := parseGoogHash(r.Attrs.Header.Get("x-goog-hash"))

	if r.cfg.ValidateCRC32C {
		if want, ok := entries["crc32c"]; ok && !r.hash.Test(hashstream.CRC32C, want) {
			return ErrContentMismatch
		}
	}

	if r.cfg.ValidateMD5 {
		if want, ok := entries["md5"]; ok && !r.hash.Test(hashstream.MD5, want) {
			return ErrContentMismatch
		}
	}

	return nil
}

// parseGoogHash parses the comma-separated "name=base64value" entries of
// an x-goog-hash header.
func parseGoogHash(header string) map[string]string {
	out := make(map[string]string)

	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}

		out[name] = value
	}

	return out
}
