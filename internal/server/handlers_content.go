// ABOUTME: HTTP handlers for follow-up suggestions and the knowledge base
// ABOUTME: Knowledge uploads arrive as multipart forms with an optional charset

package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/2389/assistant-console/internal/followups"
	"github.com/2389/assistant-console/internal/knowledge"
	"github.com/2389/assistant-console/internal/store"
)

// reorderRequest is the body of POST /api/followups/reorder.
type reorderRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleListFollowUps(w http.ResponseWriter, r *http.Request) {
	active, err := queryBool(r, "active")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fs, err := s.followups.List(r.Context(), store.FollowUpFilter{
		TemplateID: queryString(r, "template_id"),
		Category:   queryString(r, "category"),
		ActiveOnly: active != nil && *active,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]FollowUpResponse, len(fs))
	for i, f := range fs {
		out[i] = toFollowUpResponse(f)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateFollowUp(w http.ResponseWriter, r *http.Request) {
	var in followups.Input
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.followups.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toFollowUpResponse(f))
}

func (s *Server) handleUpdateFollowUp(w http.ResponseWriter, r *http.Request) {
	var in followups.Input
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.followups.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toFollowUpResponse(f))
}

func (s *Server) handleDeleteFollowUp(w http.ResponseWriter, r *http.Request) {
	if err := s.followups.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReorderFollowUps(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.followups.Reorder(r.Context(), req.IDs); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	resources, err := s.knowledge.List(r.Context(), knowledge.ResourceType(r.URL.Query().Get("type")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resources)
}

func (s *Server) handleCreateKnowledge(w http.ResponseWriter, r *http.Request) {
	var in knowledge.Resource
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.knowledge.Create(r.Context(), &in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetKnowledge(w http.ResponseWriter, r *http.Request) {
	res, err := s.knowledge.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpdateKnowledge(w http.ResponseWriter, r *http.Request) {
	var in knowledge.Resource
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.knowledge.Update(r.Context(), r.PathValue("id"), &in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	if err := s.knowledge.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadKnowledge accepts a multipart form with a "file" part and
// optional "title" and "charset" fields.
func (s *Server) handleUploadKnowledge(w http.ResponseWriter, r *http.Request) {
	limit := s.config.Knowledge.MaxUploadBytes
	if limit > 0 {
		// room for the form fields around the file
		r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, fmt.Errorf("%w: limit is %d bytes", knowledge.ErrTooLarge, limit))
			return
		}
		s.writeError(w, r, fmt.Errorf("%w: invalid multipart form: %v", errBadRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: missing file part", errBadRequest))
		return
	}
	defer func() { _ = file.Close() }()

	res, err := s.knowledge.Upload(r.Context(), knowledge.UploadInput{
		Title:    r.FormValue("title"),
		Filename: header.Filename,
		Charset:  r.FormValue("charset"),
		Body:     file,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleSyncKnowledge(w http.ResponseWriter, r *http.Request) {
	result, err := s.knowledge.Sync(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.knowledge.Documents(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]DocumentResponse, len(docs))
	for i, d := range docs {
		out[i] = DocumentResponse{Path: d.Path, Encoding: d.Encoding, Size: d.Size, ModifiedAt: d.ModifiedAt}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSearchKnowledge(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit == 0 {
		limit = 20
	}
	results, err := s.knowledge.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}
