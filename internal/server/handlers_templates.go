// ABOUTME: HTTP handlers for templates, categories, the template library and system prompt
// ABOUTME: Includes scan, preview and live model tests of the variable pipeline

package server

import (
	"net/http"
	"strings"

	"github.com/2389/assistant-console/internal/library"
	"github.com/2389/assistant-console/internal/prompt"
	"github.com/2389/assistant-console/internal/templates"
)

// contentRequest is the body of scan and ad-hoc preview calls.
type contentRequest struct {
	Content   string            `json:"content"`
	Variables []prompt.Variable `json:"variables"`
	Values    map[string]string `json:"values"`
}

// valuesRequest is the body of a stored-template preview.
type valuesRequest struct {
	Values map[string]string `json:"values"`
}

// renameVariableRequest is the body of a variable rename.
type renameVariableRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// activeRequest is the body of PUT /api/templates/{id}/active.
type activeRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	active, err := queryBool(r, "active")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ts, err := s.templates.List(r.Context(), templates.ListOptions{
		Category: queryString(r, "category"),
		Active:   active,
		Query:    r.URL.Query().Get("q"),
		Limit:    limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTemplateResponses(ts))
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in templates.Input
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.templates.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toTemplateResponse(t))
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.templates.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTemplateResponse(t))
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var in templates.Input
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.templates.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTemplateResponse(t))
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDuplicateTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.templates.Duplicate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toTemplateResponse(t))
}

func (s *Server) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	t, err := s.templates.SetDefault(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTemplateResponse(t))
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.templates.SetActive(r.Context(), r.PathValue("id"), req.Active)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTemplateResponse(t))
}

func (s *Server) handleRenameVariable(w http.ResponseWriter, r *http.Request) {
	var req renameVariableRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.templates.RenameVariable(r.Context(), r.PathValue("id"), req.From, req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTemplateResponse(t))
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, templates.Scan(req.Content, req.Variables))
}

func (s *Server) handlePreviewContent(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := templates.PreviewContent(req.Content, req.Variables, req.Values)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var req valuesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.templates.Preview(r.Context(), r.PathValue("id"), req.Values)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handleTestTemplate sends a rendered template to a model. An
// Idempotency-Key header makes retries of the same submission fail with 409.
func (s *Server) handleTestTemplate(w http.ResponseWriter, r *http.Request) {
	var req templates.TestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	result, err := s.templates.Test(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTemplateFollowUps(w http.ResponseWriter, r *http.Request) {
	values := map[string]string{}
	for key, vals := range r.URL.Query() {
		if name, ok := strings.CutPrefix(key, "v."); ok && len(vals) > 0 {
			values[name] = vals[0]
		}
	}
	suggestions, err := s.followups.ForTemplate(r.Context(), r.PathValue("id"), values)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, suggestions)
}

func (s *Server) handleListLibrary(w http.ResponseWriter, r *http.Request) {
	suggestions, err := library.Load()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, suggestions)
}

func (s *Server) handleCopySuggestion(w http.ResponseWriter, r *http.Request) {
	t, err := s.templates.CreateFromSuggestion(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toTemplateResponse(t))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.templates.ListCategories(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]CategoryResponse, len(cats))
	for i, c := range cats {
		out[i] = toCategoryResponse(c)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in templates.CategoryInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.templates.CreateCategory(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toCategoryResponse(c))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var in templates.CategoryInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.templates.UpdateCategory(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toCategoryResponse(c))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSystemPrompt(w http.ResponseWriter, r *http.Request) {
	sp, err := s.templates.GetSystemPrompt(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sp)
}

func (s *Server) handleUpdateSystemPrompt(w http.ResponseWriter, r *http.Request) {
	var in templates.SystemPromptInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	sp, err := s.templates.UpdateSystemPrompt(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sp)
}
