// Package server exposes the catalog over HTTP: the adapter frontend
// for browsing and the protected maintenance API for full-structure
// replacement.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vstruct/vstruct/internal/service"
	"github.com/vstruct/vstruct/internal/storage"
)

// ErrAuthorization indicates a maintenance request carried the wrong
// secret.
var ErrAuthorization = errors.New("authorization error")

// Middleware is the pluggable authentication guard applied to every
// route except /info.
type Middleware func(http.Handler) http.Handler

// Handler serves the adapter frontend and the maintenance API.
type Handler struct {
	svc               *service.Service
	logger            *zap.Logger
	version           string
	auth              Middleware
	maintenanceSecret string
}

// NewHandler wires a Handler. A nil auth middleware disables the guard.
func NewHandler(
	svc *service.Service,
	logger *zap.Logger,
	version string,
	auth Middleware,
	maintenanceSecret string,
) *Handler {
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{
		svc:               svc,
		logger:            logger,
		version:           version,
		auth:              auth,
		maintenanceSecret: maintenanceSecret,
	}
}

// Routes mounts the adapter routes under prefix.
func (h *Handler) Routes(prefix string) http.Handler {
	r := chi.NewRouter()
	r.Route(prefix, func(r chi.Router) {
		r.Get("/info", h.info)
		r.Group(func(r chi.Router) {
			r.Use(h.auth)
			r.Get("/structure", h.structure)
			r.Get("/thingNodes/{id}", h.thingNodeByID)
			r.Get("/thingNodes/{id}/metadata/", h.emptyMetadata)
			r.Get("/sources", h.sources)
			r.Get("/sources/{id}", h.sourceByID)
			r.Get("/sources/{id}/metadata/", h.emptyMetadata)
			r.Get("/sinks", h.sinks)
			r.Get("/sinks/{id}", h.sinkByID)
			r.Get("/sinks/{id}/metadata/", h.emptyMetadata)
			r.Put("/structure/update", h.updateStructure)
		})
	})
	return r
}

func (h *Handler) info(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, infoResponse{
		ID:      AdapterID,
		Name:    AdapterName,
		Version: h.version,
	})
}

func (h *Handler) structure(w http.ResponseWriter, r *http.Request) {
	var parentID *uuid.UUID
	if raw := r.URL.Query().Get("parentId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeJSON(w, http.StatusUnprocessableEntity,
				errorResponse{Detail: "parentId must be a UUID"})
			return
		}
		parentID = &id
	}

	nodes, sources, sinks, err := h.svc.GetChildren(r.Context(), parentID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := structureResponse{
		ID:         structureID,
		Name:       AdapterName,
		ThingNodes: make([]thingNodeDTO, 0, len(nodes)),
		Sources:    make([]sourceDTO, 0, len(sources)),
		Sinks:      make([]sinkDTO, 0, len(sinks)),
	}
	for _, tn := range nodes {
		resp.ThingNodes = append(resp.ThingNodes, toThingNodeDTO(tn))
	}
	for _, src := range sources {
		resp.Sources = append(resp.Sources, toSourceDTO(src))
	}
	for _, snk := range sinks {
		resp.Sinks = append(resp.Sinks, toSinkDTO(snk))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) thingNodeByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	tn, err := h.svc.ThingNodeByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toThingNodeDTO(*tn))
}

func (h *Handler) sources(w http.ResponseWriter, r *http.Request) {
	resp := multipleSourcesResponse{Sources: []sourceDTO{}}
	if r.URL.Query().Has("filter") {
		sources, err := h.svc.SourcesByNameSubstring(r.Context(), r.URL.Query().Get("filter"))
		if err != nil {
			h.writeError(w, err)
			return
		}
		for _, src := range sources {
			resp.Sources = append(resp.Sources, toSourceDTO(src))
		}
	}
	resp.ResultCount = len(resp.Sources)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) sourceByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	src, err := h.svc.SourceByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSourceDTO(*src))
}

func (h *Handler) sinks(w http.ResponseWriter, r *http.Request) {
	resp := multipleSinksResponse{Sinks: []sinkDTO{}}
	if r.URL.Query().Has("filter") {
		sinks, err := h.svc.SinksByNameSubstring(r.Context(), r.URL.Query().Get("filter"))
		if err != nil {
			h.writeError(w, err)
			return
		}
		for _, snk := range sinks {
			resp.Sinks = append(resp.Sinks, toSinkDTO(snk))
		}
	}
	resp.ResultCount = len(resp.Sinks)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) sinkByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	snk, err := h.svc.SinkByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSinkDTO(*snk))
}

// emptyMetadata answers the metadata routes. The catalog stores no
// entity metadata, so the list is always empty.
func (h *Handler) emptyMetadata(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, []any{})
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeJSON(w, http.StatusUnprocessableEntity,
			errorResponse{Detail: "id must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encoding response failed", zap.Error(err))
	}
}

// writeError maps the storage error taxonomy onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrAuthorization):
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, status, errorResponse{Detail: err.Error()})
}
