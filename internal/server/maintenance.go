package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/vstruct/vstruct/internal/storage"
	"github.com/vstruct/vstruct/internal/structure"
)

// maintenancePayload carries the shared secret inside the update body.
type maintenancePayload struct {
	MaintenanceSecret string `json:"maintenance_secret"`
}

type updateStructureRequest struct {
	MaintenancePayload maintenancePayload `json:"maintenance_payload"`
	NewStructure       json.RawMessage    `json:"new_structure"`
}

// updateStructure replaces or merges the whole catalog. The secret is
// compared in constant time. With delete_existing_structure=true and
// non-empty tables the old structure is wiped before the update.
func (h *Handler) updateStructure(w http.ResponseWriter, r *http.Request) {
	if h.maintenanceSecret == "" {
		h.writeJSON(w, http.StatusForbidden,
			errorResponse{Detail: "maintenance is not configured"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeJSON(w, http.StatusUnprocessableEntity,
			errorResponse{Detail: "reading request body failed"})
		return
	}
	var req updateStructureRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeJSON(w, http.StatusUnprocessableEntity,
			errorResponse{Detail: "request body is not a valid update payload"})
		return
	}

	if subtle.ConstantTimeCompare(
		[]byte(req.MaintenancePayload.MaintenanceSecret),
		[]byte(h.maintenanceSecret)) != 1 {
		h.writeError(w, ErrAuthorization)
		return
	}

	cs, err := structure.Parse(req.NewStructure)
	if err != nil {
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
		return
	}

	// The flag defaults to true: an update without it replaces the
	// stored structure instead of merging into it.
	deleteExisting := true
	if raw := r.URL.Query().Get("delete_existing_structure"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeJSON(w, http.StatusUnprocessableEntity,
				errorResponse{Detail: "delete_existing_structure must be a boolean"})
			return
		}
		deleteExisting = v
	}

	ctx := r.Context()
	if deleteExisting {
		empty, err := h.svc.TablesEmpty(ctx)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if !empty {
			if err := h.svc.DeleteStructure(ctx); err != nil {
				h.writeError(w, err)
				return
			}
		}
	}

	if err := h.svc.UpdateStructure(ctx, cs); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, err)
			return
		}
		h.logger.Error("maintenance structure update failed", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}

	h.logger.Info("structure updated via maintenance API")
	w.WriteHeader(http.StatusNoContent)
}
