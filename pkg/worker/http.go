package worker

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
)

// HTTPEntry provides the mountpoint for the worker status into the
// shared webserver routing tree.
func (s *Server) HTTPEntry() chi.Router {
	r := chi.NewRouter()

	r.Get("/builds", s.httpBuilds)
	return r
}

func (s *Server) httpBuilds(w http.ResponseWriter, r *http.Request) {
	b := s.Builds()
	sort.Slice(b, func(i, j int) bool { return b[i].Queued.Before(b[j].Queued) })
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Slots  int     `json:"slots"`
		Builds []Build `json:"builds"`
	}{cap(s.slots), b})
}
