package scheduler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type jobView struct {
	BuildJob
	Worker string `json:"worker"`
}

// HTTPEntry provides the mountpoint for this service into the shared
// webserver routing tree.
func (s *Scheduler) HTTPEntry() chi.Router {
	r := chi.NewRouter()

	r.Get("/jobs", s.httpJobs)
	r.Get("/nodes", s.httpNodes)
	return r
}

func (s *Scheduler) httpJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.Jobs()
	out := make([]jobView, len(jobs))
	for i, j := range jobs {
		out[i] = jobView{BuildJob: j}
		if j.Worker != nil {
			out[i].Worker = j.Worker.Name
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Scheduler) httpNodes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Nodes())
}
