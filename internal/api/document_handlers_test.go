package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/siteingest/internal/chunker"
	"github.com/JakeFAU/siteingest/internal/config"
	"github.com/JakeFAU/siteingest/internal/crawler"
	"github.com/JakeFAU/siteingest/internal/document"
	"github.com/JakeFAU/siteingest/internal/ingest"
)

type recordingStorer struct {
	users  []string
	chunks int
	err    error
}

func (s *recordingStorer) StoreChunks(_ context.Context, userID string, chunks []string) (crawler.TaskResult, error) {
	if s.err != nil {
		return crawler.TaskResult{}, s.err
	}
	s.users = append(s.users, userID)
	s.chunks += len(chunks)
	return crawler.TaskResult{CollectionName: userID, ChunksCreated: len(chunks)}, nil
}

func newDocumentServer(t *testing.T, storer ingest.ChunkStorer, maxBytes int64) http.Handler {
	t.Helper()
	splitter, err := chunker.New(1000, 200)
	require.NoError(t, err)
	docs := ingest.NewDocuments(document.NewExtractor(nil), splitter, storer, zap.NewNop())

	cfg := testConfig()
	cfg.Documents = config.DocumentsConfig{ChunkSize: 1000, ChunkOverlap: 200, MaxUploadBytes: maxBytes}
	return NewServer(newFakeService(), docs, cfg, nil, zap.NewNop()).Handler()
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(UserHeader, "alice")
	return req
}

func TestUploadDocument(t *testing.T) {
	t.Parallel()

	storer := &recordingStorer{}
	h := newDocumentServer(t, storer, 1<<20)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "file", "notes.txt", []byte("Quarterly numbers are up. Costs held steady.")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "success", resp["status"])
	require.Equal(t, "File processed and stored successfully", resp["message"])
	require.Equal(t, "alice", resp["collection_name"])
	require.Equal(t, "notes.txt", resp["file_name"])
	require.EqualValues(t, 1, resp["chunks_created"])
	require.Equal(t, []string{"alice"}, storer.users)
}

func TestUploadDocument_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name:     "unsupported type",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "file", "scan.pdf", []byte("%PDF-1.7")) },
			wantCode: http.StatusBadRequest,
			wantErr:  "file type not allowed",
		},
		{
			name:     "empty file",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "file", "empty.txt", nil) },
			wantCode: http.StatusBadRequest,
			wantErr:  "empty file received",
		},
		{
			name: "no text",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "icon.svg", []byte(`<svg><circle r="2"/></svg>`))
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "no text content",
		},
		{
			name:     "wrong field",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "upload", "notes.txt", []byte("text")) },
			wantCode: http.StatusBadRequest,
			wantErr:  "file field required",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString(`{"file":"x"}`))
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set(UserHeader, "alice")
				return req
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid multipart upload",
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "big.txt", bytes.Repeat([]byte("word "), 20))
			},
			wantCode: http.StatusRequestEntityTooLarge,
			wantErr:  "file too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			storer := &recordingStorer{}
			h := newDocumentServer(t, storer, 64)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req(t))
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			require.Contains(t, rec.Body.String(), tt.wantErr)
			require.Empty(t, storer.users)
		})
	}
}

func TestUploadDocument_StoreFailure(t *testing.T) {
	t.Parallel()

	h := newDocumentServer(t, &recordingStorer{err: errors.New("vector store down")}, 1<<20)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "file", "notes.txt", []byte("Something worth storing.")))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "error storing document")
}

func TestUploadDocument_RequiresUser(t *testing.T) {
	t.Parallel()

	h := newDocumentServer(t, &recordingStorer{}, 1<<20)
	req := uploadRequest(t, "file", "notes.txt", []byte("Something worth storing."))
	req.Header.Del(UserHeader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadRouteOnlyWithDocumentService(t *testing.T) {
	t.Parallel()

	h := newTestServer(newFakeService()).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "file", "notes.txt", []byte("Something worth storing.")))
	require.Contains(t, []int{http.StatusNotFound, http.StatusMethodNotAllowed}, rec.Code)
}
