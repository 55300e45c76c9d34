package upload

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickml/gcsobject/internal/objectid"
	"github.com/patrickml/gcsobject/internal/resumestore"
	"github.com/patrickml/gcsobject/internal/transport"
)

func newResumableUploader(t *testing.T, srv *httptest.Server) *ResumableUploader {
	t.Helper()

	tr := transport.New(srv.Client(), fakeCreds{}, nil)
	tr.SetSleepFunc(func(context.Context, time.Duration) error { return nil })

	store, err := resumestore.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	u := NewResumableUploader(tr, store, nil)
	u.BaseURL = srv.URL
	u.sleep = func(context.Context, time.Duration) error { return nil }

	return u
}

func TestResumableUploader_FreshUploadSingleShot(t *testing.T) {
	payload := []byte("hello resumable world")

	var sessionStarted, transmitted int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Query().Get("uploadType") == "resumable":
			atomic.AddInt32(&sessionStarted, 1)
			w.Header().Set("Location", fmt.Sprintf("http://%s/session/abc", r.Host))
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPut && r.URL.Path == "/session/abc":
			atomic.AddInt32(&transmitted, 1)

			body := new(bytes.Buffer)
			_, _ = body.ReadFrom(r.Body)
			assert.Equal(t, payload, body.Bytes())
			assert.Equal(t, fmt.Sprintf("bytes 0-%d/*", len(payload)-1), r.Header.Get("Content-Range"))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"name":"object.txt","size":"22"}`))

		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.String())
		}
	}))
	defer srv.Close()

	u := newResumableUploader(t, srv)

	id, err := objectid.New("bucket", "object.txt")
	require.NoError(t, err)

	result, err := u.Upload(context.Background(), id, nil, "text/plain",
		bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, "object.txt", result.Metadata["name"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&sessionStarted))
	assert.Equal(t, int32(1), atomic.LoadInt32(&transmitted))

	_, ok, err := u.Store.Get(context.Background(), "bucket", "object.txt")
	require.NoError(t, err)
	assert.False(t, ok, "record should be deleted after successful completion")
}

func TestResumableUploader_StartSessionAppliesPreconditions(t *testing.T) {
	payload := []byte("hello resumable world")

	var gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Query().Get("uploadType") == "resumable":
			gotQuery = r.URL.RawQuery
			w.Header().Set("Location", fmt.Sprintf("http://%s/session/abc", r.Host))
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPut && r.URL.Path == "/session/abc":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"name":"object.txt"}`))

		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.String())
		}
	}))
	defer srv.Close()

	u := newResumableUploader(t, srv)

	id, err := objectid.New("bucket", "object.txt")
	require.NoError(t, err)

	notMatch := int64(9)

	_, err = u.Upload(context.Background(), id, nil, "text/plain",
		bytes.NewReader(payload), int64(len(payload)), objectid.Preconditions{GenerationNotMatch: &notMatch})
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "ifGenerationNotMatch=9")
}

func TestResumableUploader_ResumesFromPersistedOffset(t *testing.T) {
	payload := []byte("0123456789ABCDEFGHIJ")

	var sawProbe, sawTransmit bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.Header.Get("Content-Range") == "bytes */*":
			sawProbe = true
			w.Header().Set("Range", "bytes=0-9")
			w.WriteHeader(http.StatusPermanentRedirect)

		case r.Method == http.MethodPut:
			sawTransmit = true

			body := new(bytes.Buffer)
			_, _ = body.ReadFrom(r.Body)
			assert.Equal(t, payload[10:], body.Bytes())
			assert.Equal(t, fmt.Sprintf("bytes 10-%d/*", len(payload)-1), r.Header.Get("Content-Range"))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"name":"object.txt"}`))

		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.String())
		}
	}))
	defer srv.Close()

	u := newResumableUploader(t, srv)

	ctx := context.Background()
	require.NoError(t, u.Store.SaveURI(ctx, "bucket", "object.txt", srv.URL+"/session/existing"))
	require.NoError(t, u.Store.SaveFirstChunk(ctx, "bucket", "object.txt", srv.URL+"/session/existing", payload[:16]))

	id, err := objectid.New("bucket", "object.txt")
	require.NoError(t, err)

	_, err = u.Upload(ctx, id, nil, "text/plain", bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	assert.True(t, sawProbe)
	assert.True(t, sawTransmit)
}

func TestResumableUploader_DivergentFirstChunkRestartsSession(t *testing.T) {
	payload := []byte("brand new payload bytes here")

	var sessionStarts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			n := atomic.AddInt32(&sessionStarts, 1)
			w.Header().Set("Location", fmt.Sprintf("http://%s/session/new-%d", r.Host, n))
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPut && r.Header.Get("Content-Range") == "bytes */*":
			// Probe of the stale session recorded for a different payload;
			// its answer is discarded once divergence restarts the session.
			w.Header().Set("Range", "bytes=0-3")
			w.WriteHeader(http.StatusPermanentRedirect)

		case r.Method == http.MethodPut:
			body := new(bytes.Buffer)
			_, _ = body.ReadFrom(r.Body)
			assert.Equal(t, payload, body.Bytes())

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"name":"object.txt"}`))

		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.String())
		}
	}))
	defer srv.Close()

	u := newResumableUploader(t, srv)

	ctx := context.Background()
	require.NoError(t, u.Store.SaveURI(ctx, "bucket", "object.txt", srv.URL+"/session/stale"))
	require.NoError(t, u.Store.SaveFirstChunk(ctx, "bucket", "object.txt", srv.URL+"/session/stale", []byte("totally different!")))

	id, err := objectid.New("bucket", "object.txt")
	require.NoError(t, err)

	_, err = u.Upload(ctx, id, nil, "text/plain", bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&sessionStarts))
}

func TestResumableUploader_404RestartsSessionWithinRetryBudget(t *testing.T) {
	payload := []byte("short payload")

	var sessionStarts, transmitAttempts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			n := atomic.AddInt32(&sessionStarts, 1)
			w.Header().Set("Location", fmt.Sprintf("http://%s/session/s%d", r.Host, n))
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPut:
			attempt := atomic.AddInt32(&transmitAttempts, 1)
			if attempt == 1 {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			body := new(bytes.Buffer)
			_, _ = body.ReadFrom(r.Body)
			assert.Equal(t, payload, body.Bytes())

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"name":"object.txt"}`))

		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.String())
		}
	}))
	defer srv.Close()

	u := newResumableUploader(t, srv)

	id, err := objectid.New("bucket", "object.txt")
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), id, nil, "text/plain", bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&sessionStarts))
	assert.Equal(t, int32(2), atomic.LoadInt32(&transmitAttempts))
}

func TestResumableUploader_5xxReprobesAfterBackoff(t *testing.T) {
	payload := []byte("payload for 5xx retry test")

	var transmitAttempts, probes int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			w.Header().Set("Location", fmt.Sprintf("http://%s/session/s", r.Host))
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPut && r.Header.Get("Content-Range") == "bytes */*":
			atomic.AddInt32(&probes, 1)
			w.Header().Set("Range", "bytes=0-3")
			w.WriteHeader(http.StatusPermanentRedirect)

		case r.Method == http.MethodPut:
			attempt := atomic.AddInt32(&transmitAttempts, 1)
			if attempt == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"name":"object.txt"}`))

		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.String())
		}
	}))
	defer srv.Close()

	u := newResumableUploader(t, srv)

	id, err := objectid.New("bucket", "object.txt")
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), id, nil, "text/plain", bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&probes), "a 5xx must trigger a re-probe, not a resend from the same offset")
	assert.Equal(t, int32(2), atomic.LoadInt32(&transmitAttempts))
}

func TestOffsetGate_FirstChunkShorterThanSize(t *testing.T) {
	gate := NewOffsetGate(bytes.NewReader([]byte("abc")), 3)
	assert.Equal(t, []byte("abc"), gate.FirstChunk())
}

func TestOffsetGate_Suffix(t *testing.T) {
	gate := NewOffsetGate(bytes.NewReader([]byte("0123456789")), 10)

	suffix := gate.Suffix(4)
	got := new(bytes.Buffer)
	_, err := got.ReadFrom(suffix)
	require.NoError(t, err)
	assert.Equal(t, "456789", got.String())
}

func TestParseRangeEnd(t *testing.T) {
	n, ok := parseRangeEnd("bytes=0-9")
	assert.True(t, ok)
	assert.Equal(t, int64(9), n)

	_, ok = parseRangeEnd("")
	assert.False(t, ok)
}
