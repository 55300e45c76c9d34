package gcsobject

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patrickml/gcsobject/internal/resumestore"
	"github.com/patrickml/gcsobject/internal/transport"
)

// fakeCreds is the shared CredentialsProvider test double used across this
// package's tests, mirroring internal/transport's own fakeCreds.
type fakeCreds struct{}

func (fakeCreds) Credentials(context.Context) (transport.Credentials, error) {
	return transport.Credentials{
		ClientEmail:   "svc@example.iam.gserviceaccount.com",
		PrivateKeyPEM: testPrivateKeyPEM,
	}, nil
}

func (fakeCreds) Token(context.Context) (string, error) {
	return "test-token", nil
}

// redirectTransport rewrites every outgoing request's scheme and host to
// target's, regardless of what the caller dialed. The download path always
// addresses the real storage.googleapis.com host, so tests intercept at
// the http.RoundTripper layer rather than relying on the Tuning base-URL
// overrides, which do not cover direct downloads.
type redirectTransport struct {
	target *url.URL
}

func (t redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	out.Host = t.target.Host

	return http.DefaultTransport.RoundTrip(out)
}

func TestApplyTuning_OverridesDefaults(t *testing.T) {
	store, err := resumestore.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c := NewClient(nil, fakeCreds{}, store, nil)
	c.ApplyTuning(Tuning{
		UploadBaseURL:       "http://localhost:9000/upload",
		MaxRetries:          2,
		ResumableRetryLimit: 3,
	})

	require.Equal(t, "http://localhost:9000/upload", c.simpleUploader.BaseURL)
	require.Equal(t, "http://localhost:9000/upload", c.resumableUploader.BaseURL)
	require.Equal(t, 2, c.transport.MaxRetries)
	require.Equal(t, 3, c.resumableUploader.RetryLimit)
}

func TestApplyTuning_ZeroValuesLeaveDefaults(t *testing.T) {
	store, err := resumestore.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c := NewClient(nil, fakeCreds{}, store, nil)
	before := c.resumableUploader.RetryLimit

	c.ApplyTuning(Tuning{})
	require.Equal(t, before, c.resumableUploader.RetryLimit)
	require.NotEmpty(t, c.simpleUploader.BaseURL)
}

// newTestClient builds a Client whose every outgoing HTTP request is
// redirected to srv.
func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	httpClient := &http.Client{Transport: redirectTransport{target: target}}

	store, err := resumestore.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewClient(httpClient, fakeCreds{}, store, nil)
}
