package gcsobject

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/patrickml/gcsobject/internal/download"
)

// ValidationMode selects which digest(s) are verified against the server's
// advertised hashes. The zero value checks both CRC32C and MD5.
type ValidationMode int

const (
	// ValidationBoth checks both CRC32C and MD5 (the default).
	ValidationBoth ValidationMode = iota
	// ValidationCRC32COnly checks only CRC32C.
	ValidationCRC32COnly
	// ValidationMD5Only checks only MD5.
	ValidationMD5Only
	// ValidationNone disables integrity checking entirely.
	ValidationNone
)

func (v ValidationMode) wantCRC32C() bool {
	return v == ValidationBoth || v == ValidationCRC32COnly
}

func (v ValidationMode) wantMD5() bool {
	return v == ValidationBoth || v == ValidationMD5Only
}

// DownloadConfig controls a single download operation.
type DownloadConfig struct {
	Validation ValidationMode

	// Start and End are optional byte offsets. Presence of either
	// makes this a range request, which carries no integrity checking:
	// NewReader rejects a range request whose Validation is anything other
	// than ValidationNone with ErrValidationWithRange. A nil Start with a
	// negative End is a tail request for the last |End| bytes.
	Start *int64
	End   *int64
}

func (c DownloadConfig) toInternal() download.Config {
	cfg := download.Config{Start: c.Start, End: c.End}
	if !cfg.IsRange() {
		cfg.ValidateCRC32C = c.Validation.wantCRC32C()
		cfg.ValidateMD5 = c.Validation.wantMD5()
	}

	return cfg
}

// Reader streams an object's content, decompressing transparently and
// verifying integrity on completion. It implements io.ReadCloser.
type Reader struct {
	inner *download.Reader
}

// Attrs exposes the server response headers captured alongside the stream.
func (r *Reader) Attrs() download.Attrs { return r.inner.Attrs }

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) { return r.inner.Read(p) }

// Close aborts any in-flight request and releases the socket.
func (r *Reader) Close() error { return r.inner.Close() }

// NewReader returns a lazily-connected read stream for the object. A range
// request combined with validation is rejected synchronously; the network
// request itself is only issued on the first Read.
func (o *ObjectHandle) NewReader(ctx context.Context, cfg DownloadConfig) (*Reader, error) {
	if cfg.Start != nil || cfg.End != nil {
		if cfg.Validation != ValidationNone {
			return nil, ErrValidationWithRange
		}
	}

	dl, err := download.New(o.client.transport, o.id, cfg.toInternal())
	if err != nil {
		return nil, translateDownloadErr(err)
	}

	return &Reader{inner: dl.NewReader(ctx, cfg.toInternal())}, nil
}

// Download is a convenience wrapper around NewReader that consumes the
// stream fully into w.
func (o *ObjectHandle) Download(ctx context.Context, w io.Writer, cfg DownloadConfig) error {
	r, err := o.NewReader(ctx, cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	if _, err := io.Copy(w, r); err != nil {
		return translateDownloadErr(err)
	}

	return nil
}

// DownloadFile is the local-file-path form of Download.
func (o *ObjectHandle) DownloadFile(ctx context.Context, path string, cfg DownloadConfig) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("gcsobject: creating local file %q: %w", path, err)
	}

	if err := o.Download(ctx, f, cfg); err != nil {
		f.Close()
		os.Remove(path)

		return err
	}

	return f.Close()
}

func translateDownloadErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, download.ErrContentMismatch) {
		return fmt.Errorf("%w: %w", ErrContentDownloadMismatch, err)
	}

	return err
}
