package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"codocs/internal/document/model"
	"codocs/internal/document/service"
	"codocs/pkg/apperror"
	"codocs/pkg/logger"

	"github.com/go-chi/chi/v5"
)

type DocumentHandler struct {
	Service *service.DocumentService
}

func NewDocumentHandler(service *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{Service: service}
}

// MountRoutes registers the document endpoints on r.
func (h *DocumentHandler) MountRoutes(r chi.Router) {
	r.Route("/document", func(r chi.Router) {
		r.Post("/create", h.CreateDocument)
		r.Post("/join", h.JoinDocument)
		r.Get("/all", h.ListDocuments)
	})
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req model.CreateDocRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, apperror.Validation("invalid request body"))
		return
	}

	user, docID, err := h.Service.CreateDocument(r.Context(), req.Owner)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create document: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, model.MembershipResponse{
		Message: "Document created successfully",
		User:    user,
		DocID:   docID,
	})
}

func (h *DocumentHandler) JoinDocument(w http.ResponseWriter, r *http.Request) {
	var req model.JoinDocRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, apperror.Validation("invalid request body"))
		return
	}

	user, docID, err := h.Service.JoinDocument(r.Context(), req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to join document %s: %v", req.DocID, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.MembershipResponse{
		Message: "Joined document successfully",
		User:    user,
		DocID:   docID,
	})
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	req := model.ListRequest{UserID: r.URL.Query().Get("userId")}

	user, docs, err := h.Service.ListByOwner(r.Context(), req)
	if err != nil {
		logger.Sugar.Errorf("Error fetching documents: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{User: user, Documents: docs})
}

// decodeBody tolerates an empty body; every field of the request types is optional at this layer.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperror.HTTPStatus(err), model.ErrorResponse{Message: apperror.Message(err)})
}
