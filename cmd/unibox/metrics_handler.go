package main

import (
	"encoding/json"
	"net/http"

	"unibox/internal/metrics"
)

// handleMetrics serves an indented JSON snapshot of the in-memory metrics
// registry. Caching is disabled so operators always see live numbers.
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(metrics.GetAllMetrics()); err != nil {
			s.logger.WithError(err).Error("Failed to encode metrics response")
		}
	}
}
