package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/learningassistant/document-service/internal/config"
	"github.com/learningassistant/document-service/internal/core/domain"
	"github.com/learningassistant/document-service/internal/core/ports"
	"github.com/learningassistant/document-service/internal/observability/metrics"
)

const serviceName = "document-service"

// DocumentService is the full inbound surface the router exposes over HTTP.
type DocumentService interface {
	ports.DocumentUploader
	ports.CallbackHandler
	ports.DocumentReader
	ports.DocumentDeleter
}

type Router struct {
	cfg     config.Config
	service DocumentService
	metrics *metrics.HTTPServerMetrics
}

func NewRouter(cfg config.Config, service DocumentService, m *metrics.HTTPServerMetrics) *Router {
	return &Router{
		cfg:     cfg,
		service: service,
		metrics: m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("GET /metrics", rt.metrics.Handler())

	mux.HandleFunc("POST /api/documents/upload", rt.uploadDocument)
	mux.HandleFunc("GET /api/documents/pending", rt.listPending)
	mux.HandleFunc("GET /api/documents/user/{userId}", rt.listByUser)
	mux.HandleFunc("GET /api/documents/{id}", rt.getDocument)
	mux.HandleFunc("GET /api/documents/{id}/status", rt.getDocumentStatus)
	mux.HandleFunc("GET /api/documents/{id}/download", rt.downloadDocument)
	mux.HandleFunc("POST /api/documents/{id}/mark-completed", rt.markCompleted)
	mux.HandleFunc("POST /api/documents/{id}/mark-failed", rt.markFailed)
	mux.HandleFunc("DELETE /api/documents/{id}", rt.deleteDocument)
	mux.HandleFunc("DELETE /api/documents/admin/clear-all", rt.clearAll)

	var handler http.Handler = mux
	handler = rt.metrics.Middleware(serviceName, handler)
	handler = accessLogMiddleware(handler)
	if rt.cfg.APIMaxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrent, backpressureWait)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}
	handler = correlationIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, http.StatusRequestEntityTooLarge, "uploaded file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	ownerID := r.FormValue("userId")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "form field 'userId' is required")
		return
	}

	doc, err := rt.service.Upload(
		r.Context(),
		ownerID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		fileHeader.Size,
		file,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rt.metrics.RecordUpload(serviceName, string(doc.StorageBackend), doc.SizeBytes)
	// An accepted trigger leaves the returned record in PROCESSING.
	if doc.Status == domain.StatusProcessing {
		rt.metrics.RecordTrigger(serviceName, "accepted")
	} else {
		rt.metrics.RecordTrigger(serviceName, "rejected")
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.service.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getDocumentStatus(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.service.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	payload := map[string]any{
		"documentId": doc.ID,
		"status":     string(doc.Status),
	}
	if doc.Status.IsTerminal() {
		payload["processedAt"] = doc.ProcessedAt
		if doc.ExternalReferenceID != "" {
			payload["externalReferenceId"] = doc.ExternalReferenceID
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (rt *Router) downloadDocument(w http.ResponseWriter, r *http.Request) {
	doc, body, err := rt.service.Download(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", doc.MediaType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func (rt *Router) listByUser(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("userId")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	docs, err := rt.service.ListByOwner(r.Context(), ownerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if docs == nil {
		docs = []domain.DocumentRecord{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (rt *Router) listPending(w http.ResponseWriter, r *http.Request) {
	docs, err := rt.service.ListPending(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if docs == nil {
		docs = []domain.DocumentRecord{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (rt *Router) markCompleted(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	externalReferenceID := r.URL.Query().Get("ragDocumentId")

	if err := rt.service.MarkCompleted(r.Context(), id, externalReferenceID); err != nil {
		rt.metrics.RecordCallback(serviceName, "completed_error")
		writeDomainError(w, err)
		return
	}
	rt.metrics.RecordCallback(serviceName, "completed")
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) markFailed(w http.ResponseWriter, r *http.Request) {
	if err := rt.service.MarkFailed(r.Context(), r.PathValue("id")); err != nil {
		rt.metrics.RecordCallback(serviceName, "failed_error")
		writeDomainError(w, err)
		return
	}
	rt.metrics.RecordCallback(serviceName, "failed")
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := rt.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	rt.metrics.RecordDelete(serviceName)
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) clearAll(w http.ResponseWriter, r *http.Request) {
	if err := rt.service.ClearAll(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, mapErrorToHTTPStatus(err), err.Error())
}
