package gateway

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// Server wraps http.Server around a Handler, the same embedding shape as
// the teacher's http.Server wraps media.Manifest.
type Server struct {
	http.Server
	interruptOnce sync.Once
}

// NewServer constructs a Server serving handler at "/sample".
func NewServer(handler http.Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle("GET /sample", handler)
	return &Server{Server: http.Server{Handler: mux}}
}

// ListenAndServe starts the gateway HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	log.Println("starting refstream HTTP gateway on " + addr)
	s.Addr = addr
	return s.Server.ListenAndServe()
}

// Interrupt gracefully shuts the server down, matching the oklog/run
// actor interrupt-func signature.
func (s *Server) Interrupt(err error) {
	s.interruptOnce.Do(func() {
		log.Printf("interrupting refstream HTTP gateway: %v\n", err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if shutdownErr := s.Server.Shutdown(ctx); shutdownErr != nil {
			s.Server.Close()
		}

		log.Println("refstream HTTP gateway shutdown complete")
	})
}
