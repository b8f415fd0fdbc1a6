// Package http is the admin webserver.  Components mount their own
// routers onto it.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
)

// New initializes the server with its default routers.  The name is
// reported by the index route.
func New(l hclog.Logger, name string) (*Server, error) {
	s := Server{
		l:    l.Named("http"),
		r:    chi.NewRouter(),
		name: name,
		n:    &http.Server{ReadHeaderTimeout: 10 * time.Second},
	}

	s.r.Use(middleware.Logger)
	s.r.Use(middleware.Recoverer)
	s.r.Use(middleware.Heartbeat("/healthz"))

	s.r.Get("/", s.rootIndex)

	return &s, nil
}

// Serve binds, initializes the mux, and serves until ctx ends.
func (s *Server) Serve(ctx context.Context, bind string) error {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on an existing listener until ctx ends.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.l.Info("HTTP is starting", "address", ln.Addr().String())
	s.n.Handler = s.r

	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.n.Shutdown(sctx)
	})
	defer stop()

	if err := s.n.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) rootIndex(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "%s is running, check other handlers for more information", s.name)
}

// Mount attaches a set of routes to the subpath specified by the path
// argument.
func (s *Server) Mount(path string, h http.Handler) {
	s.r.Mount(path, h)
}
