package handlers

import (
	"net/http"

	"fieldcollect-backend/internal/models"
	"fieldcollect-backend/internal/services/catalog"
	"fieldcollect-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// BinDetail is a bin with the route it belongs to
type BinDetail struct {
	models.Bin
	RouteID *string `json:"route_id"`
}

// GetBin returns a catalog bin by ID
func GetBin(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bin, ok := cat.Bin(chi.URLParam(r, "id"))
		if !ok {
			utils.RespondError(w, http.StatusNotFound, "Bin not found")
			return
		}

		detail := BinDetail{Bin: bin}
		if routeID, ok := cat.RouteForBin(bin.ID); ok {
			detail.RouteID = &routeID
		}

		utils.RespondJSON(w, http.StatusOK, detail)
	}
}
