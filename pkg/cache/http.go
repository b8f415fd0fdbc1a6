package cache

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HTTPEntry provides the mountpoint for the cache into the shared
// routing tree.
func (c *Cache) HTTPEntry() chi.Router {
	r := chi.NewRouter()

	r.Get("/", c.httpIndex)
	r.Get("/{pkg}", c.httpFetch)
	r.Get("/{pkg}/entry", c.httpLookup)
	r.Put("/{pkg}", c.httpPublish)
	r.Delete("/{pkg}", c.httpDrop)

	return r
}

func (c *Cache) httpIndex(w http.ResponseWriter, r *http.Request) {
	idx, err := c.Index()
	if err != nil {
		c.httpJSONError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(idx)
}

func (c *Cache) httpFetch(w http.ResponseWriter, r *http.Request) {
	data, err := c.Fetch(chi.URLParam(r, "pkg"))
	if err != nil {
		c.httpJSONError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/x-tar")
	w.Write(data)
}

func (c *Cache) httpLookup(w http.ResponseWriter, r *http.Request) {
	e, err := c.Lookup(chi.URLParam(r, "pkg"))
	if err != nil {
		c.httpJSONError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(e)
}

// httpPublish takes an uncompressed tar body.  The node and revision
// it came from may be given as query parameters.
func (c *Cache) httpPublish(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		c.httpJSONError(w, http.StatusBadRequest, err)
		return
	}
	e := Entry{
		Node:     r.URL.Query().Get("node"),
		Revision: r.URL.Query().Get("rev"),
	}
	if err := c.Publish(chi.URLParam(r, "pkg"), data, e); err != nil {
		c.httpJSONError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Cache) httpDrop(w http.ResponseWriter, r *http.Request) {
	if err := c.Drop(chi.URLParam(r, "pkg")); err != nil {
		c.httpJSONError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	if errors.Is(err, ErrMiss) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (c *Cache) httpJSONError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	out := struct {
		Error string
	}{
		Error: err.Error(),
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		c.l.Warn("Error encoding JSON error response", "error", err)
	}
}
