package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tolelom/duelchain/events"
)

// Server is a JSON-RPC 2.0 HTTP server with a WebSocket event stream on
// /ws.
type Server struct {
	handler  *Handler
	emitter  *events.Emitter
	auth     *Authenticator
	addr     string
	srv      *http.Server
	quit     chan struct{}
	quitOnce sync.Once
}

// NewServer creates a Server on addr. If secret is non-empty, every request
// must carry an HS256 JWT signed with it.
func NewServer(addr string, handler *Handler, emitter *events.Emitter, secret string) *Server {
	s := &Server{
		handler: handler,
		emitter: emitter,
		auth:    NewAuthenticator(secret),
		addr:    addr,
		quit:    make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveHTTP)
	mux.HandleFunc("/ws", s.serveStream)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start binds the port synchronously (so callers know immediately if binding
// fails) then serves requests in a background goroutine. It returns the
// bound address.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("server error: %v", err)
		}
	}()
	log.Infof("listening on %s", ln.Addr())
	return ln.Addr().String(), nil
}

// Stop closes open streams and gracefully shuts down the HTTP server,
// waiting up to 5 seconds for in-flight requests to complete.
func (s *Server) Stop() error {
	s.quitOnce.Do(func() { close(s.quit) })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// HTTPHandler returns the routing handler, for embedding or tests.
func (s *Server) HTTPHandler() http.Handler {
	return s.srv.Handler
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, err := s.auth.Authorize(r); err != nil {
		writeJSONStatus(w, http.StatusUnauthorized, errResponse(nil, CodeUnauthorized, err.Error()))
		return
	}

	// Limit request body to 1 MB to prevent memory exhaustion.
	r.Body = http.MaxBytesReader(w, r.Body, 1*1024*1024)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, err.Error()))
		return
	}
	if req.JSONRPC != "2.0" {
		writeJSON(w, errResponse(req.ID, CodeInvalidRequest, "jsonrpc must be '2.0'"))
		return
	}

	writeJSON(w, s.handler.Dispatch(req))
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
