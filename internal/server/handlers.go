package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"baagent/internal/approval"
	"baagent/internal/backlog"
	"baagent/internal/docx"
	"baagent/internal/extract"
	"baagent/internal/logging"
	"baagent/internal/orchestrator"
	"baagent/internal/store"
	"baagent/internal/types"
)

const (
	docxFilename       = "Technical_Requirements_Document.docx"
	defaultSearchLimit = 5
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.HTTPError("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, "%s is not configured on the server.", what)
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: %v", err)
		return false
	}
	return true
}

// readUpload returns the bytes and name of the multipart "file" field. On
// failure it has already written the response.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File exceeds %d bytes", tooLarge.Limit)
			return nil, "", false
		}
		writeError(w, http.StatusBadRequest, "No file part in the request")
		return nil, "", false
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file part in the request")
		return nil, "", false
	}
	defer f.Close()

	name := filepath.Base(hdr.Filename)
	if hdr.Filename == "" || name == "." || name == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, "No file selected")
		return nil, "", false
	}
	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload: %v", err)
		return nil, "", false
	}
	return data, name, true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writePage(w, http.StatusOK, indexPage)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Generator == nil {
		unavailable(w, "Generation")
		return
	}
	data, name, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	result, err := s.deps.Generator.Run(ctx, data, name)
	if err != nil {
		logging.APIError("generate %s: %v", name, err)
		writeGenerateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeGenerateError(w http.ResponseWriter, err error) {
	var specErr *orchestrator.SpecialistError
	switch {
	case errors.As(err, &specErr):
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":         "One or more specialist agents failed.",
			"failed_agents": specErr.Agents,
		})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusInternalServerError, "Generation timed out: %v", err)
	default:
		writeError(w, http.StatusInternalServerError, "%v", err)
	}
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if s.deps.Extractor == nil || s.deps.Library == nil {
		unavailable(w, "Document storage")
		return
	}
	data, name, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	if !extract.Supported(name) {
		writeError(w, http.StatusBadRequest, "Only PDF and DOCX files are allowed")
		return
	}

	content, err := s.deps.Extractor.Extract(r.Context(), data, name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to extract content: %v", err)
		return
	}

	doc := types.Document{
		ID:         uuid.NewString(),
		Name:       name,
		UploadDate: time.Now().UTC(),
		FileType:   extract.FileType(name),
		Size:       int64(len(data)),
		Status:     types.DocumentStatusUploaded,
		Content:    content.Text,
	}
	doc.FilePath = filepath.Join(s.cfg.UploadDir, doc.ID+"_"+name)
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to upload document: %v", err)
		return
	}
	if err := os.WriteFile(doc.FilePath, data, 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to upload document: %v", err)
		return
	}
	if err := s.deps.Library.SaveDocument(r.Context(), doc); err != nil {
		_ = os.Remove(doc.FilePath)
		writeError(w, http.StatusInternalServerError, "Failed to upload document: %v", err)
		return
	}

	logging.API("uploaded document %s (%s, %d bytes)", doc.ID, name, doc.Size)
	doc.Content = ""
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.deps.Library == nil {
		unavailable(w, "Document storage")
		return
	}
	docs, err := s.deps.Library.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list documents: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	if s.deps.Library == nil {
		unavailable(w, "Document storage")
		return
	}
	doc, err := s.deps.Library.GetDocument(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load document: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.deps.Library == nil {
		unavailable(w, "Analysis storage")
		return
	}
	list, err := s.deps.Library.ListAnalyses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list analyses: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.deps.Library == nil {
		unavailable(w, "Analysis storage")
		return
	}
	a, err := s.deps.Library.GetAnalysis(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Analysis not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load analysis: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleRenderMermaid(w http.ResponseWriter, r *http.Request) {
	if s.deps.Renderer == nil {
		unavailable(w, "Diagram rendering")
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "No Mermaid code provided")
		return
	}
	png, err := s.deps.Renderer.Render(r.Context(), req.Code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *Server) handleConvertToDocx(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Markdown string `json:"markdown"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	data, err := docx.Convert(req.Markdown)
	if errors.Is(err, docx.ErrEmpty) {
		writeError(w, http.StatusBadRequest, "No markdown content provided")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to convert to DOCX: %v", err)
		return
	}
	w.Header().Set("Content-Type", docx.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+docxFilename+`"`)
	_, _ = w.Write(data)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Library == nil {
		unavailable(w, "Search")
		return
	}
	var req struct {
		Query      string `json:"query"`
		Collection string `json:"collection"`
		NResults   int    `json:"n_results"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}
	if req.Collection == "" {
		req.Collection = store.CollectionDocuments
	}
	if !store.ValidCollection(req.Collection) {
		writeError(w, http.StatusBadRequest, "Unknown collection %q", req.Collection)
		return
	}
	if req.NResults <= 0 {
		req.NResults = defaultSearchLimit
	}

	results, err := s.deps.Library.Search(r.Context(), req.Query, req.Collection, req.NResults)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Search failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":         req.Query,
		"results":       results,
		"total_results": results.Len(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if s.deps.Health != nil {
		tables, err := s.deps.Health.Stats()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
			return
		}
		resp["tables"] = tables
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Usage == nil {
		unavailable(w, "Usage tracking")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Usage.Stats())
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if s.deps.Approvals == nil {
		unavailable(w, "Approval")
		return
	}
	var req struct {
		Documents *types.Bundle `json:"documents"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Documents == nil {
		writeError(w, http.StatusBadRequest, "No documents provided for approval.")
		return
	}
	bundle := *req.Documents
	bundle.Backlog = backlog.Normalize(bundle.Backlog)

	rec, err := s.deps.Approvals.Request(r.Context(), bundle)
	resp := map[string]interface{}{"approval_id": rec.ID, "status": rec.Status}
	var notifyErr *approval.NotificationError
	switch {
	case err == nil:
	case errors.As(err, &notifyErr):
		resp["notification_error"] = notifyErr.Err.Error()
	default:
		writeError(w, http.StatusInternalServerError, "Failed to create approval request: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleApprovalResponse(w http.ResponseWriter, r *http.Request) {
	if s.deps.Approvals == nil {
		unavailable(w, "Approval")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writePage(w, http.StatusBadRequest, invalidApprovalPage)
		return
	}
	decision := approval.Status(r.URL.Query().Get("decision"))

	// Ticket creation must finish even if the reviewer closes the tab.
	final, err := s.deps.Approvals.Decide(context.WithoutCancel(r.Context()), id, decision)
	switch {
	case err == nil:
		writePage(w, http.StatusOK, decisionPage(decision, final))
	case errors.Is(err, approval.ErrAlreadyProcessed):
		writePage(w, http.StatusOK, processedPage)
	case errors.Is(err, approval.ErrNotFound):
		writePage(w, http.StatusBadRequest, invalidApprovalPage)
	case errors.Is(err, approval.ErrInvalidDecision):
		writePage(w, http.StatusBadRequest, invalidDecisionPage)
	default:
		logging.HTTPError("approval %s decision failed: %v", id, err)
		writePage(w, http.StatusInternalServerError, page{Heading: "Error: The decision could not be recorded."})
	}
}

func (s *Server) handleApprovalStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Approvals == nil {
		unavailable(w, "Approval")
		return
	}
	status, err := s.deps.Approvals.Status(r.Context(), r.PathValue("id"))
	if errors.Is(err, approval.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Approval ID not found.")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]approval.Status{"status": status})
}
