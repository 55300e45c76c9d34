package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/patrickml/gcsobject/internal/objectid"
	"github.com/patrickml/gcsobject/internal/resumestore"
	"github.com/patrickml/gcsobject/internal/transport"
)

// resumableRetryLimit caps session restarts and backoff retries.
const resumableRetryLimit = 5

// firstChunkSize is the number of leading bytes compared across resumed
// sessions to detect a caller uploading a different payload under the
// same object name.
const firstChunkSize = 16

// ErrResumableRetriesExhausted is returned when the resumable state
// machine's error policy runs out of retries.
var ErrResumableRetriesExhausted = errors.New("upload: resumable upload retries exhausted")

// OffsetGate restricts an already-buffered payload to the suffix beyond a
// server-acknowledged offset and exposes the payload's leading bytes for
// the content-divergence check. Because ResumableUploader works from an
// io.ReaderAt so retries can re-read from arbitrary offsets, the
// drop-bytes-below-offset stream transform collapses to a direct
// byte-range slice.
type OffsetGate struct {
	content io.ReaderAt
	size    int64
}

// NewOffsetGate wraps a random-access payload of the given size.
func NewOffsetGate(content io.ReaderAt, size int64) OffsetGate {
	return OffsetGate{content: content, size: size}
}

// FirstChunk returns up to the first 16 bytes of the payload.
func (g OffsetGate) FirstChunk() []byte {
	n := int64(firstChunkSize)
	if g.size < n {
		n = g.size
	}

	buf := make([]byte, n)
	if n == 0 {
		return buf
	}

	if _, err := g.content.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return buf
	}

	return buf
}

// Suffix returns a reader over the bytes beyond offset, the portion not
// yet acknowledged by the server.
func (g OffsetGate) Suffix(offset int64) io.Reader {
	return io.NewSectionReader(g.content, offset, g.size-offset)
}

// resumableState names the three states of the upload machine.
type resumableState int

const (
	stateSessionStart resumableState = iota
	stateProbe
	stateTransmit
)

// ResumableUploader drives GCS's Content-Range resumable protocol: start
// a session, probe the acknowledged offset when resuming, then transmit
// the unacknowledged suffix.
type ResumableUploader struct {
	Transport *transport.Client
	Store     *resumestore.Store
	Logger    *slog.Logger

	// BaseURL overrides transport.UploadBaseURL, for tests and emulators.
	BaseURL string

	// RetryLimit bounds session restarts and backoff retries.
	RetryLimit int

	// ProbeTimeout bounds a single offset-probe request when positive.
	ProbeTimeout time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewResumableUploader constructs a ResumableUploader. A nil logger
// defaults to slog.Default().
func NewResumableUploader(t *transport.Client, store *resumestore.Store, logger *slog.Logger) *ResumableUploader {
	if logger == nil {
		logger = slog.Default()
	}

	return &ResumableUploader{
		Transport:  t,
		Store:      store,
		Logger:     logger,
		BaseURL:    transport.UploadBaseURL,
		RetryLimit: resumableRetryLimit,
		sleep:      ctxSleep,
	}
}

// Upload runs the resumable state machine to completion against content, a
// random-access view of the (already compressed, if applicable) payload of
// the given size, and returns the final object resource.
func (u *ResumableUploader) Upload(
	ctx context.Context, id objectid.ID, metadata map[string]any, contentType string, content io.ReaderAt, size int64,
	preconditions ...objectid.Preconditions,
) (*Result, error) {
	gate := NewOffsetGate(content, size)

	record, hasRecord, err := u.Store.Get(ctx, id.Bucket(), id.Name())
	if err != nil {
		return nil, err
	}

	state := stateSessionStart
	uri := ""

	if hasRecord {
		state = stateProbe
		uri = record.URI
	}

	offset := int64(0)
	retries := 0
	firstChunkChecked := false

	for {
		switch state {
		case stateSessionStart:
			newURI, startErr := u.startSession(ctx, id, metadata, contentType, preconditions...)
			if startErr != nil {
				nextState, sleepErr := u.handleError(ctx, startErr, &retries)
				if sleepErr != nil {
					return nil, sleepErr
				}

				state = nextState

				continue
			}

			if saveErr := u.Store.SaveURI(ctx, id.Bucket(), id.Name(), newURI); saveErr != nil {
				return nil, saveErr
			}

			uri = newURI
			offset = 0
			firstChunkChecked = false
			state = stateTransmit

		case stateProbe:
			n, probeErr := u.probe(ctx, uri)
			if probeErr != nil {
				nextState, sleepErr := u.handleError(ctx, probeErr, &retries)
				if sleepErr != nil {
					return nil, sleepErr
				}

				state = nextState

				continue
			}

			offset = n + 1
			state = stateTransmit

		case stateTransmit:
			if !firstChunkChecked {
				diverged, divErr := u.checkDivergence(ctx, id, uri, gate)
				if divErr != nil {
					return nil, divErr
				}

				if diverged {
					state = stateSessionStart
					continue
				}

				firstChunkChecked = true
			}

			result, done, transmitErr := u.transmit(ctx, uri, gate, offset, size)
			if transmitErr != nil {
				nextState, sleepErr := u.handleError(ctx, transmitErr, &retries)
				if sleepErr != nil {
					return nil, sleepErr
				}

				state = nextState
				firstChunkChecked = false

				continue
			}

			if done {
				if delErr := u.Store.Delete(ctx, id.Bucket(), id.Name()); delErr != nil {
					u.Logger.Warn("failed to delete completed session record",
						slog.String("object", id.String()), slog.String("error", delErr.Error()))
				}

				return result, nil
			}
		}
	}
}

// checkDivergence compares the payload's current leading bytes against any
// cached firstChunk; a mismatch means the caller is uploading a different
// payload under the same name.
func (u *ResumableUploader) checkDivergence(ctx context.Context, id objectid.ID, uri string, gate OffsetGate) (bool, error) {
	record, hasRecord, err := u.Store.Get(ctx, id.Bucket(), id.Name())
	if err != nil {
		return false, err
	}

	current := gate.FirstChunk()

	if !hasRecord || len(record.FirstChunk) == 0 {
		if saveErr := u.Store.SaveFirstChunk(ctx, id.Bucket(), id.Name(), uri, current); saveErr != nil {
			return false, saveErr
		}

		return false, nil
	}

	if !bytes.Equal(record.FirstChunk, current) {
		u.Logger.Warn("resumable upload content divergence detected, restarting session",
			slog.String("object", id.String()))

		if delErr := u.Store.Delete(ctx, id.Bucket(), id.Name()); delErr != nil {
			return false, delErr
		}

		return true, nil
	}

	return false, nil
}

// handleError applies the retry policy: 404 restarts the session,
// 5xx invalidates the offset and re-probes after backoff, anything else
// (or an exhausted retry budget) surfaces the error.
func (u *ResumableUploader) handleError(ctx context.Context, err error, retries *int) (resumableState, error) {
	var apiErr *transport.APIError
	if !errors.As(err, &apiErr) {
		return stateSessionStart, fmt.Errorf("upload: resumable upload transport error: %w", err)
	}

	switch {
	case apiErr.StatusCode == http.StatusNotFound:
		if *retries >= u.RetryLimit {
			return stateSessionStart, fmt.Errorf("%w: %s", ErrResumableRetriesExhausted, apiErr.Error())
		}

		*retries++

		return stateSessionStart, nil

	case apiErr.StatusCode >= http.StatusInternalServerError:
		if *retries >= u.RetryLimit {
			return stateProbe, fmt.Errorf("%w: %s", ErrResumableRetriesExhausted, apiErr.Error())
		}

		*retries++

		backoff := time.Duration(math.Pow(2, float64(*retries)))*time.Second +
			time.Duration(rand.IntN(1000))*time.Millisecond //nolint:gosec // jitter does not need crypto rand

		u.Logger.Warn("resumable upload server error, backing off before re-probing",
			slog.Int("status", apiErr.StatusCode), slog.Int("retries", *retries), slog.Duration("backoff", backoff))

		if sleepErr := u.sleep(ctx, backoff); sleepErr != nil {
			return stateProbe, sleepErr
		}

		return stateProbe, nil

	default:
		return stateSessionStart, apiErr
	}
}

// startSession POSTs the initial metadata and returns the server-assigned
// session URI from the Location header.
func (u *ResumableUploader) startSession(
	ctx context.Context, id objectid.ID, metadata map[string]any, contentType string,
	preconditions ...objectid.Preconditions,
) (string, error) {
	base := u.BaseURL
	if base == "" {
		base = transport.UploadBaseURL
	}

	url := fmt.Sprintf("%s/%s/o?name=%s&uploadType=resumable", base, id.Bucket(), id.EncodedName())

	if gen, ok := id.Generation(); ok {
		url += fmt.Sprintf("&ifGenerationMatch=%d", gen)
	}

	for _, pre := range preconditions {
		for _, pair := range pre.Pairs() {
			url += "&" + pair
		}
	}

	if metadata == nil {
		metadata = map[string]any{}
	}

	body, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("upload: encoding session metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("upload: building session start request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Goog-Request-Id", uuid.NewString())

	if contentType != "" {
		req.Header.Set("X-Upload-Content-Type", contentType)
	}

	resp, err := u.Transport.DoRaw(req)
	if err != nil {
		return "", fmt.Errorf("upload: starting resumable session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, _ := io.ReadAll(resp.Body)

		return "", &transport.APIError{
			StatusCode: resp.StatusCode,
			Message:    string(errBody),
			Err:        transport.ClassifyStatus(resp.StatusCode),
		}
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("upload: session start response missing Location header")
	}

	u.Logger.Debug("resumable session started", slog.String("object", id.String()))

	return location, nil
}

// probe queries the session for the last byte offset acknowledged by the
// server, returning -1 if none.
func (u *ResumableUploader) probe(ctx context.Context, uri string) (int64, error) {
	if u.ProbeTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, u.ProbeTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uri, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("upload: building probe request: %w", err)
	}

	req.Header.Set("Content-Length", "0")
	req.Header.Set("Content-Range", "bytes */*")

	resp, err := u.Transport.DoRaw(req)
	if err != nil {
		return 0, fmt.Errorf("upload: probing session offset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPermanentRedirect { // 308 Resume Incomplete
		rng := resp.Header.Get("Range")
		if rng == "" {
			return -1, nil
		}

		n, ok := parseRangeEnd(rng)
		if !ok {
			return -1, nil
		}

		return n, nil
	}

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, _ := io.ReadAll(resp.Body)

		return 0, &transport.APIError{
			StatusCode: resp.StatusCode,
			Message:    string(errBody),
			Err:        transport.ClassifyStatus(resp.StatusCode),
		}
	}

	return -1, nil
}

// parseRangeEnd extracts N from a "bytes=0-N" or "0-N" Range header value.
func parseRangeEnd(header string) (int64, bool) {
	header = strings.TrimPrefix(header, "bytes=")

	_, last, ok := strings.Cut(header, "-")
	if !ok {
		return 0, false
	}

	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0, false
	}

	return n, true
}

// transmit PUTs the unacknowledged suffix of the payload with
// Content-Range "bytes {offset}-{size-1}/*": the last byte index is always
// stated, and only the total length is left as "*". The producer-read pump
// and the PUT request
// run concurrently over an io.Pipe via errgroup, with the first error
// from either side canceling the other.
func (u *ResumableUploader) transmit(ctx context.Context, uri string, gate OffsetGate, offset, size int64) (*Result, bool, error) {
	pr, pw := io.Pipe()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, copyErr := io.Copy(pw, gate.Suffix(offset))
		pw.CloseWithError(copyErr)

		return copyErr
	})

	var resp *http.Response

	g.Go(func() error {
		req, err := http.NewRequestWithContext(gctx, http.MethodPut, uri, pr)
		if err != nil {
			return fmt.Errorf("upload: building transmit request: %w", err)
		}

		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/*", offset, size-1))
		req.ContentLength = size - offset

		r, doErr := u.Transport.DoRaw(req)
		if doErr != nil {
			return fmt.Errorf("upload: transmitting resumable chunk: %w", doErr)
		}

		resp = r

		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		var obj map[string]any
		if decErr := json.NewDecoder(resp.Body).Decode(&obj); decErr != nil {
			return nil, false, fmt.Errorf("upload: decoding final resumable response: %w", decErr)
		}

		return &Result{Metadata: obj}, true, nil
	}

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, _ := io.ReadAll(resp.Body)

		return nil, false, &transport.APIError{
			StatusCode: resp.StatusCode,
			Message:    string(errBody),
			Err:        transport.ClassifyStatus(resp.StatusCode),
		}
	}

	return nil, false, fmt.Errorf("upload: unexpected transmit status %d", resp.StatusCode)
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
