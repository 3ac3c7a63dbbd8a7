package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// ServerConfig holds configuration for the RPC server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8899" or "127.0.0.1:8899")
	Address string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration

	// RequestTimeout bounds handler execution.
	RequestTimeout time.Duration

	// MaxRequestSize is the maximum size of a request body in bytes.
	MaxRequestSize int64

	// MaxBatchSize caps the number of requests in one batch.
	MaxBatchSize int

	// AllowedOrigins for CORS (empty means allow all).
	AllowedOrigins []string

	// RateLimitRPS is the per-client request rate. Zero disables limiting.
	RateLimitRPS float64

	// RateLimitBurst is the per-client burst capacity.
	RateLimitBurst int

	// Version is reported by getVersion.
	Version string

	Logger *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:        ":8899",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		RequestTimeout: 10 * time.Second,
		MaxRequestSize: 1 << 20,
		MaxBatchSize:   100,
		RateLimitRPS:   100,
		RateLimitBurst: 200,
		Version:        "dev",
	}
}

// Server is a JSON-RPC 2.0 server for the stake pool node.
type Server struct {
	config   *ServerConfig
	handlers *Handlers
	logger   *slog.Logger
	router   chi.Router

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a new RPC server serving backend.
func NewServer(config *ServerConfig, backend Backend) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   config,
		handlers: NewHandlers(backend, config.Version),
		logger:   logger.With("component", "rpc"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(LoggingMiddleware(s.logger))
	r.Use(CORSMiddleware(s.config.AllowedOrigins))
	if s.config.RateLimitRPS > 0 {
		r.Use(NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst).Middleware)
	}
	if s.config.RequestTimeout > 0 {
		r.Use(TimeoutMiddleware(s.config.RequestTimeout))
	}

	r.Post("/", s.handleRequest)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("rpc server already running")
	}

	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Address, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("rpc server stopped", "error", err)
		}
	}()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the RPC server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	return err
}

// handleRequest processes incoming JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxRequestSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeResponse(w, http.StatusRequestEntityTooLarge, &RPCResponse{
			JSONRPC: JSONRPCVersion,
			Error:   NewRPCError(ParseError, "failed to read request body"),
		})
		return
	}

	if len(body) > 0 && body[0] == '[' {
		s.handleBatchRequest(w, r, body)
		return
	}
	response := s.processRequest(r.Context(), body)
	writeResponse(w, http.StatusOK, &response)
}

// handleBatchRequest processes a batch of JSON-RPC requests in order.
func (s *Server) handleBatchRequest(w http.ResponseWriter, r *http.Request, body []byte) {
	var requests []json.RawMessage
	if err := json.Unmarshal(body, &requests); err != nil {
		writeResponse(w, http.StatusOK, &RPCResponse{
			JSONRPC: JSONRPCVersion,
			Error:   NewRPCError(ParseError, "invalid JSON"),
		})
		return
	}
	if len(requests) == 0 {
		writeResponse(w, http.StatusOK, &RPCResponse{
			JSONRPC: JSONRPCVersion,
			Error:   NewRPCError(InvalidRequest, "empty batch"),
		})
		return
	}
	if s.config.MaxBatchSize > 0 && len(requests) > s.config.MaxBatchSize {
		writeResponse(w, http.StatusOK, &RPCResponse{
			JSONRPC: JSONRPCVersion,
			Error:   NewRPCError(InvalidRequest, fmt.Sprintf("batch of %d exceeds limit %d", len(requests), s.config.MaxBatchSize)),
		})
		return
	}

	responses := make([]RPCResponse, 0, len(requests))
	for _, reqBody := range requests {
		response := s.processRequest(r.Context(), reqBody)
		// Notifications get no response.
		if response.ID != nil || response.Error != nil {
			responses = append(responses, response)
		}
	}
	writeResponse(w, http.StatusOK, responses)
}

// processRequest processes a single JSON-RPC request.
func (s *Server) processRequest(ctx context.Context, body []byte) RPCResponse {
	var request RPCRequest
	if err := json.Unmarshal(body, &request); err != nil {
		return RPCResponse{
			JSONRPC: JSONRPCVersion,
			Error:   NewRPCError(ParseError, "invalid JSON"),
		}
	}
	if request.JSONRPC != JSONRPCVersion {
		return RPCResponse{
			JSONRPC: JSONRPCVersion,
			Error:   NewRPCError(InvalidRequest, "invalid jsonrpc version"),
			ID:      request.ID,
		}
	}

	handler := s.handlers.GetHandler(request.Method)
	if handler == nil {
		return RPCResponse{
			JSONRPC: JSONRPCVersion,
			Error:   NewRPCError(MethodNotFound, fmt.Sprintf("method not found: %s", request.Method)),
			ID:      request.ID,
		}
	}

	result, rpcErr := handler(ctx, request.Params)
	if rpcErr != nil {
		s.logger.Debug("rpc error",
			"method", request.Method,
			"code", rpcErr.Code,
			"error", rpcErr.Message,
			"request_id", RequestID(ctx),
		)
		return RPCResponse{
			JSONRPC: JSONRPCVersion,
			Error:   rpcErr,
			ID:      request.ID,
		}
	}
	return RPCResponse{
		JSONRPC: JSONRPCVersion,
		Result:  result,
		ID:      request.ID,
	}
}

func writeResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write rpc response", "error", err)
	}
}
