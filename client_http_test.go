package kt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coleifer/kt/pkg/ktcodec"
	"github.com/stretchr/testify/require"
)

func newTestHTTPClientWithCodec(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	codec, err := ktcodec.New(ktcodec.Binary)
	require.NoError(t, err)
	return &Client{
		cfg:        cfg{kind: KyotoTycoon},
		addr:       strings.TrimPrefix(srv.URL, "http://"),
		httpClient: srv.Client(),
		codec:      codec,
	}
}

func TestClientAddDispatchesToHTTPOnKyotoTycoon(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		writeTSV(w, http.StatusOK, map[string]string{})
	}))
	defer srv.Close()
	cl := newTestHTTPClientWithCodec(t, srv)

	ok, err := cl.Add(context.Background(), "k", "v", nil, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/rpc/add", gotPath)
}

func TestClientAddReturnsFalseOnExistingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(450)
	}))
	defer srv.Close()
	cl := newTestHTTPClientWithCodec(t, srv)

	ok, err := cl.Add(context.Background(), "k", "v", nil, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClientAppendDispatchesToHTTPOnKyotoTycoon(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		writeTSV(w, http.StatusOK, map[string]string{})
	}))
	defer srv.Close()
	cl := newTestHTTPClientWithCodec(t, srv)

	err := cl.Append(context.Background(), "k", "v", nil)
	require.NoError(t, err)
	require.Equal(t, "/rpc/append", gotPath)
}

func TestClientClearDispatchesToHTTPOnKyotoTycoon(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		writeTSV(w, http.StatusOK, map[string]string{})
	}))
	defer srv.Close()
	cl := newTestHTTPClientWithCodec(t, srv)

	require.NoError(t, cl.Clear(context.Background(), nil))
	require.Equal(t, "/rpc/clear", gotPath)
}

func TestClientCheckReturnsFalseOnMissingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(450)
	}))
	defer srv.Close()
	cl := newTestHTTPClientWithCodec(t, srv)

	ok, err := cl.Check(context.Background(), "k", nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClientStatusParsesFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rpc/status", r.URL.Path)
		writeTSV(w, http.StatusOK, map[string]string{"version": "4", "conf": "*"})
	}))
	defer srv.Close()
	cl := newTestHTTPClientWithCodec(t, srv)

	out, err := cl.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, "4", out["version"])
}

func TestClientIncrementParsesResultNum(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeTSV(w, http.StatusOK, map[string]string{"num": "11"})
	}))
	defer srv.Close()
	cl := newTestHTTPClientWithCodec(t, srv)

	n, err := cl.Increment(context.Background(), "k", 1, nil, nil)
	require.NoError(t, err)
	require.Equal(t, int64(11), n)
}

func TestKyotoTycoonOnlyMethodsRejectTokyoTyrantClient(t *testing.T) {
	cl := &Client{cfg: cfg{kind: TokyoTyrant}}

	_, err := cl.Status(context.Background())
	require.Error(t, err)
	kerr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, KindConfiguration, kerr.Kind)

	_, err2 := cl.Replace(context.Background(), "k", "v", nil, nil)
	require.Error(t, err2)
	kerr2, ok := err2.(*Error)
	require.True(t, ok)
	require.Equal(t, KindConfiguration, kerr2.Kind)
}
