// ABOUTME: HTTP handlers for model providers, response formatting and branding
// ABOUTME: Provider keys are write-only; responses carry the masked form

package server

import (
	"net/http"

	"github.com/2389/assistant-console/internal/branding"
	"github.com/2389/assistant-console/internal/formatting"
	"github.com/2389/assistant-console/internal/provider"
)

// testProviderRequest is the optional body of a provider connection test.
type testProviderRequest struct {
	Model string `json:"model"`
}

// applyFormattingRequest is the body of POST /api/formatting/apply.
type applyFormattingRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	ps, err := s.providers.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]ProviderResponse, len(ps))
	for i, p := range ps {
		out[i] = toProviderResponse(p)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateProvider(w http.ResponseWriter, r *http.Request) {
	var in provider.Input
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.providers.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toProviderResponse(p))
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	p, err := s.providers.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toProviderResponse(p))
}

func (s *Server) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	var in provider.Input
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.providers.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toProviderResponse(p))
}

func (s *Server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	if err := s.providers.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTestProvider reports a failed connection in the body with 200;
// only an unknown provider or a store failure is an HTTP error.
func (s *Server) handleTestProvider(w http.ResponseWriter, r *http.Request) {
	var req testProviderRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	result, err := s.providers.TestConnection(r.Context(), r.PathValue("id"), req.Model)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetFormatting(w http.ResponseWriter, r *http.Request) {
	settings, err := s.formatting.Get(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateFormatting(w http.ResponseWriter, r *http.Request) {
	var in formatting.Settings
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	settings, err := s.formatting.Update(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleApplyFormatting(w http.ResponseWriter, r *http.Request) {
	var req applyFormattingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.formatting.Apply(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetBranding(w http.ResponseWriter, r *http.Request) {
	b, err := s.branding.Get(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleUpdateBranding(w http.ResponseWriter, r *http.Request) {
	var in branding.Branding
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.branding.Update(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}
