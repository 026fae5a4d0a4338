package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataURI_Base64(t *testing.T) {
	// "hello" base64-encoded is "aGVsbG8="
	data, err := decodeDataURI("data:application/octet-stream;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestDecodeDataURI_PercentEncoded(t *testing.T) {
	data, err := decodeDataURI("data:,hello%20world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestDecodeDataURI_Malformed(t *testing.T) {
	_, err := decodeDataURI("data:nocomma")
	assert.Error(t, err)
}

func TestLoadManifest_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	body := `{"htsget": {"urls": [{"url": "data:,abc"}, {"url": "https://example.test/x", "headers": {"Authorization": "Bearer t"}}]}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	m, err := loadManifest(path)
	require.NoError(t, err)
	require.Len(t, m.Htsget.URLs, 2)
	assert.Equal(t, "data:,abc", m.Htsget.URLs[0].URL)
	assert.Equal(t, "Bearer t", m.Htsget.URLs[1].Headers["Authorization"])
}

func TestFetchOne_DataURIWritesDecodedBytes(t *testing.T) {
	var out bytes.Buffer
	err := fetchOne(context.Background(), &http.Client{}, urlEntry{URL: "data:,hello"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.String())
}

func TestFetchOne_HTTPSendsHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		w.Write([]byte("genome-segment"))
	}))
	defer srv.Close()

	var out bytes.Buffer
	entry := urlEntry{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer t"}}
	err := fetchOne(context.Background(), srv.Client(), entry, &out)

	require.NoError(t, err)
	assert.Equal(t, "genome-segment", out.String())
}

func TestFetchOne_TruncatedTrailerAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Trailer", "Data-Truncated")
		w.Write([]byte("partial"))
		w.Header().Set("Data-Truncated", "true")
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := fetchOne(context.Background(), srv.Client(), urlEntry{URL: srv.URL}, &out)

	assert.ErrorIs(t, err, errTruncatedUpstream)
	assert.Equal(t, "partial", out.String())
}

func TestFetchOne_NonOKStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := fetchOne(context.Background(), srv.Client(), urlEntry{URL: srv.URL}, &out)
	assert.Error(t, err)
}
