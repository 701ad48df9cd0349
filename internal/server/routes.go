// ABOUTME: API route table with per-route role requirements
// ABOUTME: Every /api route except login runs behind the JWT middleware

package server

import (
	"net/http"

	"github.com/2389/assistant-console/internal/auth"
	"github.com/2389/assistant-console/internal/store"
)

// route is one API endpoint and the least role allowed to call it.
type route struct {
	pattern string
	role    store.Role
	handler http.HandlerFunc
}

func (s *Server) routes() []route {
	viewer, editor, admin := store.RoleViewer, store.RoleEditor, store.RoleAdmin
	return []route{
		{"GET /api/auth/me", viewer, s.handleMe},
		{"PUT /api/auth/password", viewer, s.handleChangeOwnPassword},

		{"GET /api/templates", viewer, s.handleListTemplates},
		{"POST /api/templates", editor, s.handleCreateTemplate},
		{"POST /api/templates/scan", viewer, s.handleScan},
		{"POST /api/templates/preview", viewer, s.handlePreviewContent},
		{"GET /api/templates/{id}", viewer, s.handleGetTemplate},
		{"PUT /api/templates/{id}", editor, s.handleUpdateTemplate},
		{"DELETE /api/templates/{id}", editor, s.handleDeleteTemplate},
		{"POST /api/templates/{id}/duplicate", editor, s.handleDuplicateTemplate},
		{"POST /api/templates/{id}/default", editor, s.handleSetDefault},
		{"PUT /api/templates/{id}/active", editor, s.handleSetActive},
		{"POST /api/templates/{id}/variables/rename", editor, s.handleRenameVariable},
		{"POST /api/templates/{id}/preview", viewer, s.handlePreviewTemplate},
		{"POST /api/templates/{id}/test", editor, s.handleTestTemplate},
		{"GET /api/templates/{id}/followups", viewer, s.handleTemplateFollowUps},

		{"GET /api/library", viewer, s.handleListLibrary},
		{"POST /api/library/{name}", editor, s.handleCopySuggestion},

		{"GET /api/categories", viewer, s.handleListCategories},
		{"POST /api/categories", editor, s.handleCreateCategory},
		{"PUT /api/categories/{id}", editor, s.handleUpdateCategory},
		{"DELETE /api/categories/{id}", editor, s.handleDeleteCategory},

		{"GET /api/system-prompt", viewer, s.handleGetSystemPrompt},
		{"PUT /api/system-prompt", editor, s.handleUpdateSystemPrompt},

		{"GET /api/providers", viewer, s.handleListProviders},
		{"POST /api/providers", admin, s.handleCreateProvider},
		{"GET /api/providers/{id}", viewer, s.handleGetProvider},
		{"PUT /api/providers/{id}", admin, s.handleUpdateProvider},
		{"DELETE /api/providers/{id}", admin, s.handleDeleteProvider},
		{"POST /api/providers/{id}/test", admin, s.handleTestProvider},

		{"GET /api/formatting", viewer, s.handleGetFormatting},
		{"PUT /api/formatting", editor, s.handleUpdateFormatting},
		{"POST /api/formatting/apply", viewer, s.handleApplyFormatting},

		{"GET /api/branding", viewer, s.handleGetBranding},
		{"PUT /api/branding", editor, s.handleUpdateBranding},

		{"GET /api/followups", viewer, s.handleListFollowUps},
		{"POST /api/followups", editor, s.handleCreateFollowUp},
		{"POST /api/followups/reorder", editor, s.handleReorderFollowUps},
		{"PUT /api/followups/{id}", editor, s.handleUpdateFollowUp},
		{"DELETE /api/followups/{id}", editor, s.handleDeleteFollowUp},

		{"GET /api/knowledge", viewer, s.handleListKnowledge},
		{"POST /api/knowledge", editor, s.handleCreateKnowledge},
		{"POST /api/knowledge/upload", editor, s.handleUploadKnowledge},
		{"GET /api/knowledge/search", viewer, s.handleSearchKnowledge},
		{"GET /api/knowledge/{id}", viewer, s.handleGetKnowledge},
		{"PUT /api/knowledge/{id}", editor, s.handleUpdateKnowledge},
		{"DELETE /api/knowledge/{id}", editor, s.handleDeleteKnowledge},
		{"POST /api/knowledge/{id}/sync", editor, s.handleSyncKnowledge},
		{"GET /api/knowledge/{id}/documents", viewer, s.handleListDocuments},

		{"GET /api/users", admin, s.handleListUsers},
		{"POST /api/users", admin, s.handleCreateUser},
		{"PUT /api/users/{id}/role", admin, s.handleSetUserRole},
		{"PUT /api/users/{id}/password", admin, s.handleSetUserPassword},
		{"DELETE /api/users/{id}", admin, s.handleDeleteUser},
		{"GET /api/audit", admin, s.handleListAudit},
	}
}

// registerAPIRoutes mounts the API on mux.
func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	authMiddleware := auth.HTTPAuthMiddleware(s.store, s.tokens, s.logger.With("component", "http-auth"))
	for _, rt := range s.routes() {
		mux.Handle(rt.pattern, authMiddleware(auth.RequireRoleHTTP(rt.role)(rt.handler)))
	}
}
