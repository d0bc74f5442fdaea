package api

import (
	"net/http"
)

// RegisterRoutes регистрирует маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.Handle("POST /api/v1/executions", chain(http.HandlerFunc(h.Execute)))
	mux.Handle("POST /api/v1/executions/async", chain(http.HandlerFunc(h.Submit)))
	mux.Handle("GET /api/v1/executions", chain(http.HandlerFunc(h.ListExecutions)))
	mux.Handle("GET /api/v1/executions/{id}", chain(http.HandlerFunc(h.GetExecution)))

	mux.Handle("POST /api/v1/flows/validate", chain(http.HandlerFunc(h.ValidateFlow)))
}
