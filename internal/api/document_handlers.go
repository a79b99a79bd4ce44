package api

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/siteingest/internal/document"
	"github.com/JakeFAU/siteingest/internal/ingest"
)

const (
	documentFormField = "file"
	multipartMemory   = 8 << 20
)

type uploadDocumentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	ingest.DocumentResult
}

// uploadDocument handles POST /v1/documents, a multipart upload with the file
// in the "file" field. The document is ingested before the response is
// written: 200 on success, 400 for unsupported or textless files, 413 when
// the upload exceeds documents.max_upload_bytes.
func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Documents.MaxUploadBytes
	// Multipart framing needs headroom beyond the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(documentFormField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "error reading file")
		return
	}
	if int64(len(content)) > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	result, err := s.docs.IngestDocument(r.Context(), userFrom(r.Context()), header.Filename, content)
	if err != nil {
		switch {
		case errors.Is(err, document.ErrUnsupportedType),
			errors.Is(err, document.ErrEmpty),
			errors.Is(err, document.ErrNoText),
			errors.Is(err, ingest.ErrNoChunks):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("document ingest failed", zap.String("file", header.Filename), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "error storing document")
		}
		return
	}
	writeJSON(w, http.StatusOK, uploadDocumentResponse{
		Status:         "success",
		Message:        "File processed and stored successfully",
		DocumentResult: result,
	})
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
