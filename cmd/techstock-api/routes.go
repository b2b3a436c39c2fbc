package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matthewjhunter/techstock"
)

// newRouter sets up all routes using Go 1.22+ enhanced routing.
func newRouter(engine *techstock.Engine, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	h := &handlers{engine: engine}

	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /articles", h.handleList)
	mux.HandleFunc("GET /articles/search", h.handleSearch)
	mux.HandleFunc("GET /articles/{id}", h.handleGet)
	mux.HandleFunc("POST /articles", h.handleCreate)
	mux.HandleFunc("PUT /articles/{id}", h.handleUpdate)
	mux.HandleFunc("DELETE /articles/{id}", h.handleDelete)

	mux.HandleFunc("POST /fetch-qiita", h.handleFetchQiita)

	return newCORS(allowedOrigins).Handler(logging(instrument(recovery(mux))))
}
