package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/update", handler.Update).Methods("POST")
	api.HandleFunc("/symbols", handler.GetSymbols).Methods("GET")
	api.HandleFunc("/stocks/{symbol}/prices", handler.GetPrices).Methods("GET")
	api.HandleFunc("/stocks/{symbol}/returns", handler.GetReturns).Methods("GET")

	return r
}
