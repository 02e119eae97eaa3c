package handlers

import (
	"net/http"

	"fieldcollect-backend/internal/models"
	"fieldcollect-backend/internal/services/catalog"
	"fieldcollect-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// RouteDetail is a route with its bins in traversal order
type RouteDetail struct {
	models.Route
	Bins []models.Bin `json:"bins"`
}

// GetRoutes returns all routes in catalog order
func GetRoutes(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, cat.Routes())
	}
}

// GetRoute returns a single route with its bins
func GetRoute(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID := chi.URLParam(r, "id")

		route, ok := cat.Route(routeID)
		if !ok {
			utils.RespondError(w, http.StatusNotFound, "Route not found")
			return
		}

		utils.RespondJSON(w, http.StatusOK, RouteDetail{
			Route: route,
			Bins:  cat.BinsForRoute(routeID),
		})
	}
}

// GetRouteBins returns the bins of a route in traversal order
func GetRouteBins(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID := chi.URLParam(r, "id")

		if !cat.IsValidRoute(routeID) {
			utils.RespondError(w, http.StatusNotFound, "Route not found")
			return
		}

		utils.RespondJSON(w, http.StatusOK, cat.BinsForRoute(routeID))
	}
}
