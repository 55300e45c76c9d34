package gcsobject

import "errors"

// Error codes surfaced to callers.
var (
	// ErrContentDownloadMismatch is returned when a downloaded object's
	// computed digest does not match the server-advertised x-goog-hash.
	ErrContentDownloadMismatch = errors.New("gcsobject: CONTENT_DOWNLOAD_MISMATCH")

	// ErrFileNoUpload is returned when an uploaded object's computed digest
	// does not match the server's reported digest, and the best-effort
	// cleanup delete of the bad remote object succeeded.
	ErrFileNoUpload = errors.New("gcsobject: FILE_NO_UPLOAD")

	// ErrFileNoUploadDelete is returned when an uploaded object's digest
	// mismatched AND the cleanup delete itself failed; the remote object
	// with bad content is left in place. The original delete error is
	// wrapped so callers can inspect it.
	ErrFileNoUploadDelete = errors.New("gcsobject: FILE_NO_UPLOAD_DELETE")
)

// Input validation errors, raised synchronously before any I/O.
var (
	ErrMissingBucket          = errors.New("gcsobject: bucket name must not be empty")
	ErrMissingName            = errors.New("gcsobject: object name must not be empty")
	ErrMissingCopyDestination = errors.New("gcsobject: copy destination must not be empty")
	ErrExpiredSignature       = errors.New("gcsobject: expires/expiration must be in the future")
	ErrMalformedCondition     = errors.New("gcsobject: malformed policy condition")
	ErrValidationWithRange    = errors.New("gcsobject: cannot use validation with file ranges")
)
