// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package storage_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/apperr"
	"codeberg.org/oliverandrich/medivault/internal/config"
	"codeberg.org/oliverandrich/medivault/internal/services/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(endpoint string) config.StorageConfig {
	return config.StorageConfig{
		Endpoint:     endpoint,
		Region:       "us-east-1",
		Bucket:       "reports",
		AccessKey:    "minio",
		SecretKey:    "minio123",
		UsePathStyle: true,
	}
}

func TestNew_Disabled(t *testing.T) {
	store, err := storage.New(context.Background(), config.StorageConfig{})

	require.NoError(t, err)
	assert.IsType(t, storage.Disabled{}, store)

	err = store.Put(context.Background(), "k", strings.NewReader("x"), "text/plain")
	assert.ErrorIs(t, err, storage.ErrNotConfigured)
	assert.Equal(t, apperr.DependencyUnavailable, apperr.KindOf(err))

	_, err = store.PresignGet(context.Background(), "k", "a.pdf", time.Minute)
	assert.ErrorIs(t, err, storage.ErrNotConfigured)

	assert.ErrorIs(t, store.Delete(context.Background(), "k"), storage.ErrNotConfigured)
}

func TestReportKey(t *testing.T) {
	key := storage.ReportKey(42, "Blood Test.PDF")

	assert.True(t, strings.HasPrefix(key, "reports/42/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.NotEqual(t, key, storage.ReportKey(42, "Blood Test.PDF"))
}

func TestPresignGet(t *testing.T) {
	store, err := storage.NewS3(context.Background(), testConfig("http://localhost:9000"))
	require.NoError(t, err)

	raw, err := store.PresignGet(context.Background(), "reports/1/abc.pdf", "blood.pdf", storage.DownloadURLTTL)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/reports/reports/1/abc.pdf", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, u.Query().Get("response-content-disposition"), "blood.pdf")
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

type recordedRequest struct {
	method, path, body string
}

func fakeS3(t *testing.T) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{method: r.Method, path: r.URL.Path, body: string(body)})
		mu.Unlock()
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("ETag", `"etag"`)
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func TestPutAndDelete(t *testing.T) {
	srv, requests := fakeS3(t)
	store, err := storage.NewS3(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)

	err = store.Put(context.Background(), "reports/1/abc.pdf", strings.NewReader("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)

	err = store.Delete(context.Background(), "reports/1/abc.pdf")
	require.NoError(t, err)

	reqs := requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodPut, reqs[0].method)
	assert.Equal(t, "/reports/reports/1/abc.pdf", reqs[0].path)
	assert.Contains(t, reqs[0].body, "%PDF-1.4")
	assert.Equal(t, http.MethodDelete, reqs[1].method)
}

func TestPut_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	store, err := storage.NewS3(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)

	err = store.Put(context.Background(), "k", strings.NewReader("x"), "text/plain")

	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}
