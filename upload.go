package gcsobject

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/patrickml/gcsobject/internal/hashstream"
	"github.com/patrickml/gcsobject/internal/upload"
)

// UploadConfig controls a single upload operation.
type UploadConfig struct {
	// Gzip compresses the outgoing byte stream and sets
	// metadata.contentEncoding = "gzip".
	Gzip bool

	// Resumable selects the resumable state machine over the single-shot
	// multipart upload. Defaults to true; set explicitly via a *bool so
	// the zero value of UploadConfig still means "resumable".
	Resumable *bool

	Validation ValidationMode

	// Metadata is the opaque JSON object sent as the initial upload
	// metadata. May be nil.
	Metadata map[string]any

	// ContentType is sent as X-Upload-Content-Type on resumable session
	// start and as the content part's Content-Type on a simple upload.
	ContentType string

	// Preconditions make the write conditional on the object's current
	// generation/metageneration.
	Preconditions Preconditions
}

func (c UploadConfig) resumable() bool {
	if c.Resumable == nil {
		return true
	}

	return *c.Resumable
}

// Upload sends content (size bytes, readable at arbitrary offsets so the
// resumable path can retry and resume) as the object's new contents, then,
// unless Validation is ValidationNone, verifies the transmitted bytes'
// digest against the server's response and best-effort deletes the object
// on mismatch.
func (o *ObjectHandle) Upload(ctx context.Context, content io.ReaderAt, size int64, cfg UploadConfig) (*ObjectAttrs, error) {
	metadata := cloneMetadata(cfg.Metadata)

	if cfg.Gzip {
		compressed, compressedSize, err := gzipReaderAt(content, size)
		if err != nil {
			return nil, fmt.Errorf("gcsobject: compressing upload content: %w", err)
		}

		metadata["contentEncoding"] = "gzip"
		content, size = compressed, compressedSize
	}

	result, err := o.transmit(ctx, metadata, cfg, content, size)
	if err != nil {
		return nil, err
	}

	o.setMetadata(result.Metadata)

	if cfg.Validation != ValidationNone {
		if verifyErr := o.verifyUpload(ctx, content, size, cfg.Validation); verifyErr != nil {
			return nil, verifyErr
		}
	}

	return o.Attrs(), nil
}

func (o *ObjectHandle) transmit(
	ctx context.Context, metadata map[string]any, cfg UploadConfig, content io.ReaderAt, size int64,
) (*upload.Result, error) {
	if !cfg.resumable() {
		buf := make([]byte, size)
		if _, err := content.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("gcsobject: reading content for simple upload: %w", err)
		}

		return o.client.simpleUploader.Upload(ctx, o.id, metadata, cfg.ContentType, buf, cfg.Preconditions)
	}

	return o.client.resumableUploader.Upload(ctx, o.id, metadata, cfg.ContentType, content, size, cfg.Preconditions)
}

// verifyUpload recomputes the digest of the transmitted bytes and compares
// it against the server-reported md5Hash/crc32c on the final object
// resource. On mismatch it attempts a best-effort delete of the bad
// object: success yields ErrFileNoUpload, failure yields
// ErrFileNoUploadDelete wrapping the delete error.
func (o *ObjectHandle) verifyUpload(ctx context.Context, content io.ReaderAt, size int64, mode ValidationMode) error {
	h := hashstream.New()
	if _, err := io.Copy(h, io.NewSectionReader(content, 0, size)); err != nil {
		return fmt.Errorf("gcsobject: hashing uploaded content: %w", err)
	}

	attrs := o.Attrs()
	if attrs == nil {
		return nil
	}

	mismatch := false

	if mode.wantCRC32C() && attrs.CRC32C != "" && !h.Test(hashstream.CRC32C, attrs.CRC32C) {
		mismatch = true
	}

	if mode.wantMD5() && attrs.MD5 != "" && !h.Test(hashstream.MD5, attrs.MD5) {
		mismatch = true
	}

	if !mismatch {
		return nil
	}

	if delErr := o.Delete(ctx); delErr != nil {
		return fmt.Errorf("%w: %w", ErrFileNoUploadDelete, delErr)
	}

	return ErrFileNoUpload
}

func gzipReaderAt(content io.ReaderAt, size int64) (io.ReaderAt, int64, error) {
	var buf bytes.Buffer

	zw := gzip.NewWriter(&buf)
	if _, err := io.Copy(zw, io.NewSectionReader(content, 0, size)); err != nil {
		return nil, 0, err
	}

	if err := zw.Close(); err != nil {
		return nil, 0, err
	}

	return bytes.NewReader(buf.Bytes()), int64(buf.Len()), nil
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}

	return out
}
