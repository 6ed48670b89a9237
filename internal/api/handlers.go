package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/howdo/internal/auth"
	"github.com/kalambet/howdo/internal/document"
	"github.com/kalambet/howdo/internal/render"
	"github.com/kalambet/howdo/internal/storage"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Company  string `json:"company"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
}

type wizardRequest struct {
	UserID       string         `json:"userId"`
	Answers      map[string]any `json:"answers"`
	DocumentType string         `json:"documentType"`
}

func handleRegister(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "email and password are required")
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if errors.Is(err, auth.ErrPasswordTooLong) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", auth.ErrPasswordTooLong)
			return
		}
		if err != nil {
			deps.Logger.Error("hashing password", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "registration failed")
			return
		}
		u := storage.User{
			ID:           newID(),
			Email:        req.Email,
			PasswordHash: hash,
			Name:         strings.TrimSpace(req.Name),
			Company:      strings.TrimSpace(req.Company),
		}
		if err := deps.Store.CreateUser(u); err != nil {
			if errors.Is(err, storage.ErrDuplicateEmail) {
				httpError(w, http.StatusConflict, "conflict", "user with this email already exists")
				return
			}
			deps.Logger.Error("creating user", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "registration failed")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "User registered successfully",
			"user_id": u.ID,
		})
	}
}

func handleLogin(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "email and password are required")
			return
		}

		u, err := deps.Store.GetUserByEmail(req.Email)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			err = auth.RejectUnknownUser(req.Password)
		case err == nil:
			err = auth.CheckPassword(u.PasswordHash, req.Password)
		}
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid credentials")
				return
			}
			deps.Logger.Error("login lookup", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "login failed")
			return
		}

		resp := map[string]any{
			"message": "Login successful",
			"user":    userView{ID: u.ID, Email: u.Email, Name: u.Name, Company: u.Company},
		}
		if deps.Issuer != nil {
			token, exp, err := deps.Issuer.Issue(u.ID)
			if err != nil {
				deps.Logger.Error("issuing token", "error", err)
				httpError(w, http.StatusInternalServerError, "api_error", "login failed")
				return
			}
			resp["token"] = token
			resp["expires_at"] = exp.Unix()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleDocumentTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, documentTypes())
}

func handleWizard(docs documents) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req wizardRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.UserID) == "" || len(req.Answers) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "userId and answers are required")
			return
		}
		if !authorize(w, r, req.UserID) {
			return
		}

		doc, err := docs.create(req.UserID, req.Answers, req.DocumentType)
		switch {
		case errors.Is(err, document.ErrUnknownKind):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case errors.Is(err, errEmptyAnswers):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "userId and answers are required")
			return
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "user not found")
			return
		case err != nil:
			docs.logger.Error("creating document", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create document")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"message":     "Document created successfully",
			"document_id": doc.ID,
		})
	}
}

func handleListDocuments(docs documents) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if !validID(userID) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}
		if !authorize(w, r, userID) {
			return
		}

		list, err := docs.store.ListDocumentsForUser(userID)
		if err != nil {
			docs.logger.Error("listing documents", "user_id", userID, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents")
			return
		}
		writeJSON(w, http.StatusOK, summarize(list))
	}
}

func handleGetDocument(docs documents) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, ok := loadDocument(w, r, docs)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, detail(doc))
	}
}

func handleDeleteDocument(docs documents) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, ok := loadDocument(w, r, docs)
		if !ok {
			return
		}
		if err := docs.store.DeleteDocument(doc.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "document not found")
				return
			}
			docs.logger.Error("deleting document", "document_id", doc.ID, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Document deleted successfully"})
	}
}

func handleExport(docs documents) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := render.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		doc, ok := loadDocument(w, r, docs)
		if !ok {
			return
		}

		out, err := docs.export(r.Context(), doc, f)
		if err != nil {
			docs.logger.Error("export failed", "document_id", doc.ID, "format", f, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to generate document")
			return
		}
		if out.Fallback {
			docs.logger.Warn("pdf export fell back to html", "document_id", doc.ID, "reason", out.FallbackReason)
			w.Header().Set("X-Render-Fallback", string(out.Format))
		}

		disposition := mime.FormatMediaType("attachment", map[string]string{
			"filename": render.Filename(doc.Title, out.Format),
		})
		w.Header().Set("Content-Type", out.ContentType())
		w.Header().Set("Content-Disposition", disposition)
		w.WriteHeader(http.StatusOK)
		w.Write(out.Data)
	}
}

func handlePreview(docs documents) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, ok := loadDocument(w, r, docs)
		if !ok {
			return
		}
		out, err := docs.export(r.Context(), doc, render.FormatHTML)
		if err != nil {
			docs.logger.Error("preview failed", "document_id", doc.ID, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to generate preview")
			return
		}
		w.Header().Set("Content-Type", out.ContentType())
		w.WriteHeader(http.StatusOK)
		w.Write(out.Data)
	}
}

// loadDocument fetches the {id} document and checks the session may read it.
func loadDocument(w http.ResponseWriter, r *http.Request, docs documents) (storage.Document, bool) {
	id := chi.URLParam(r, "id")
	doc, err := docs.store.GetDocument(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return storage.Document{}, false
		}
		docs.logger.Error("loading document", "document_id", id, "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "failed to load document")
		return storage.Document{}, false
	}
	if !authorize(w, r, doc.UserID) {
		return storage.Document{}, false
	}
	return doc, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "request body too large")
			return false
		}
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON: %v", err)
		return false
	}
	return true
}
