package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magic-research/ragd/internal/errors"
	"github.com/magic-research/ragd/internal/ingest"
	"github.com/magic-research/ragd/internal/qa"
	"github.com/magic-research/ragd/internal/retrieve"
	"github.com/magic-research/ragd/internal/store"
)

type fakeAsker struct {
	resp *qa.Response
	err  error
}

func (f *fakeAsker) Ask(ctx context.Context, question string, k int) (*qa.Response, error) {
	return f.resp, f.err
}

type fakeIngester struct {
	stats *ingest.Stats
	err   error
	path  string
}

func (f *fakeIngester) IngestFile(ctx context.Context, path string) (*ingest.Stats, error) {
	f.path = path
	if f.err != nil {
		return nil, f.err
	}
	return f.stats, nil
}

func newTestServer(t *testing.T, asker Asker, ingester Ingester) *Server {
	t.Helper()
	metadata, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = metadata.Close() })

	return New(asker, ingester, metadata, Options{
		UploadDir: t.TempDir(),
		Status: StatusInfo{
			Embedding: "static-hash-256",
			Providers: []string{"openai", "groq"},
			Version:   "test",
		},
	}, slog.New(slog.DiscardHandler))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeAsker{}, &fakeIngester{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, &fakeAsker{}, &fakeIngester{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var info StatusInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "static-hash-256", info.Embedding)
	assert.Equal(t, []string{"openai", "groq"}, info.Providers)
	assert.Zero(t, info.Documents)
}

func TestQuery(t *testing.T) {
	asker := &fakeAsker{resp: &qa.Response{
		Answered: true,
		Answer:   "six months",
		Provider: "openai",
		Sources:  []*retrieve.Result{{ChunkID: "a", DocumentName: "abramelin", Text: "..."}},
	}}
	s := newTestServer(t, asker, &fakeIngester{})

	body := strings.NewReader(`{"question":"how long?","k":3}`)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp qa.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Answered)
	assert.Equal(t, "six months", resp.Answer)
	assert.Len(t, resp.Sources, 1)
}

func TestQuery_MalformedBody(t *testing.T) {
	s := newTestServer(t, &fakeAsker{}, &fakeIngester{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery_ErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"empty query", errors.Newf(errors.ErrCodeQueryEmpty, "empty"), http.StatusBadRequest},
		{"invalid input", errors.InvalidInput("bad"), http.StatusBadRequest},
		{"retrieval down", errors.RetrievalUnavailable(nil), http.StatusServiceUnavailable},
		{"all providers failed", errors.Newf(errors.ErrCodeAllProvidersFailed, "failed"), http.StatusServiceUnavailable},
		{"timeout", errors.Newf(errors.ErrCodeNetworkTimeout, "timeout"), http.StatusGatewayTimeout},
		{"internal", errors.Newf(errors.ErrCodeInternal, "boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeAsker{err: tt.err}, &fakeIngester{})

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query",
				strings.NewReader(`{"question":"q"}`)))

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, errors.GetCode(tt.err), resp.Code)
		})
	}
}

func TestQuery_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &fakeAsker{}, &fakeIngester{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/query", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	ingester := &fakeIngester{stats: &ingest.Stats{Documents: 1, Chunks: 4}}
	s := newTestServer(t, &fakeAsker{}, ingester)

	body, contentType := multipartUpload(t, "paper.txt", "Some document content to ingest.")
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, ingester.path, "paper.txt")

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(4), resp["chunks"])
}

func TestUpload_UnsupportedType(t *testing.T) {
	s := newTestServer(t, &fakeAsker{}, &fakeIngester{})

	body, contentType := multipartUpload(t, "data.csv", "a,b,c")
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_MissingFileField(t *testing.T) {
	s := newTestServer(t, &fakeAsker{}, &fakeIngester{})

	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
