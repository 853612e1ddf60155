package api

import (
	"fmt"
	"net/http"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
	"github.com/felipepmaragno/genai-bridge/internal/registry"
)

const ownedBy = "postech"

func (h *Handler) modelObject(m registry.Model) domain.Model {
	return domain.Model{
		ID:      m.Alias,
		Object:  "model",
		Created: h.started.Unix(),
		OwnedBy: ownedBy,
	}
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	models := h.registry.List()

	resp := domain.ModelsResponse{
		Object: "list",
		Data:   make([]domain.Model, 0, len(models)),
	}
	for _, m := range models {
		resp.Data = append(resp.Data, h.modelObject(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetModel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeDomainError(w, fmt.Errorf("%w: model id is required", domain.ErrNotFound))
		return
	}

	m, err := h.registry.Resolve(id)
	if err != nil {
		writeError(w, http.StatusNotFound, typeInvalidRequest, "model_not_found", fmt.Sprintf("The model %q does not exist", id))
		return
	}
	writeJSON(w, http.StatusOK, h.modelObject(m))
}
