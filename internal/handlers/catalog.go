package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"acadium-backend/internal/catalog"
)

type CatalogHandler struct {
	cat *catalog.Catalog
}

func NewCatalogHandler(cat *catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{cat: cat}
}

type toolListItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	TotalSteps int    `json:"total_steps"`
}

func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	items := make([]toolListItem, 0, len(h.cat.Tools))
	for i := range h.cat.Tools {
		tool := &h.cat.Tools[i]
		items = append(items, toolListItem{
			ID:         tool.ID,
			Name:       tool.Name,
			Category:   tool.Category,
			TotalSteps: tool.TotalSteps(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	tool, ok := h.cat.Tool(chi.URLParam(r, "toolID"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Tool not found", r))
		return
	}
	writeJSON(w, http.StatusOK, tool)
}
