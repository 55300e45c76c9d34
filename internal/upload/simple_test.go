package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickml/gcsobject/internal/objectid"
	"github.com/patrickml/gcsobject/internal/transport"
)

type fakeCreds struct{}

func (fakeCreds) Credentials(context.Context) (transport.Credentials, error) {
	return transport.Credentials{ClientEmail: "svc@example.iam.gserviceaccount.com"}, nil
}

func (fakeCreds) Token(context.Context) (string, error) {
	return "test-token", nil
}

func TestSimpleUploader_Upload(t *testing.T) {
	var (
		gotMethod      string
		gotPath        string
		gotQuery       string
		gotContentType string
		gotBody        []byte
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"name":"object.txt","size":"5"}`))
	}))
	defer srv.Close()

	tr := transport.New(srv.Client(), fakeCreds{}, nil)
	tr.SetSleepFunc(func(context.Context, time.Duration) error { return nil })

	u := NewSimpleUploader(tr, nil)
	u.BaseURL = srv.URL

	id, err := objectid.New("bucket", "object.txt")
	require.NoError(t, err)

	id, err = id.WithGeneration(10)
	require.NoError(t, err)

	result, err := u.Upload(context.Background(), id, map[string]any{"contentType": "text/plain"}, "text/plain", []byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/bucket/o", gotPath)
	assert.Contains(t, gotQuery, "uploadType=multipart")
	assert.Contains(t, gotQuery, "name=object.txt")
	assert.Contains(t, gotQuery, "ifGenerationMatch=10")
	assert.Contains(t, gotContentType, "multipart/related; boundary=")
	assert.Contains(t, string(gotBody), "hello")
	assert.Equal(t, "object.txt", result.Metadata["name"])
}

func TestSimpleUploader_Upload_AppliesPreconditions(t *testing.T) {
	var gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"name":"object.txt"}`))
	}))
	defer srv.Close()

	tr := transport.New(srv.Client(), fakeCreds{}, nil)
	tr.SetSleepFunc(func(context.Context, time.Duration) error { return nil })

	u := NewSimpleUploader(tr, nil)
	u.BaseURL = srv.URL

	id, err := objectid.New("bucket", "object.txt")
	require.NoError(t, err)

	notMatch := int64(7)
	metaMatch := int64(3)

	_, err = u.Upload(context.Background(), id, nil, "text/plain", []byte("hello"), objectid.Preconditions{
		GenerationNotMatch:  &notMatch,
		MetagenerationMatch: &metaMatch,
	})
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "ifGenerationNotMatch=7")
	assert.Contains(t, gotQuery, "ifMetagenerationMatch=3")
}

func TestBuildMultipartBody(t *testing.T) {
	body, boundary, err := buildMultipartBody(map[string]any{"contentType": "text/plain"}, "text/plain", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, multipartBoundary, boundary)

	raw, err := io.ReadAll(body)
	require.NoError(t, err)

	s := string(raw)
	assert.Contains(t, s, "Content-Type: application/json; charset=UTF-8")
	assert.Contains(t, s, `"contentType":"text/plain"`)
	assert.Contains(t, s, "Content-Type: text/plain")
	assert.Contains(t, s, "hello")
}

func TestBuildMultipartBody_DefaultsContentType(t *testing.T) {
	body, _, err := buildMultipartBody(nil, "", []byte("data"))
	require.NoError(t, err)

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "application/octet-stream")
}
