package middleware

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mrpasztoradam/goadsrt"
)

// Server is the HTTP server of the gateway.
type Server struct {
	config     *Config
	client     *goadsrt.Client
	gateway    *Gateway
	handler    *Handler
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer connects to the PLC and builds the HTTP server. The client's
// read loop is started here; Shutdown stops it.
func NewServer(config *Config) (*Server, error) {
	netID, err := goadsrt.ParseNetID(config.PLC.AMSNetID)
	if err != nil {
		return nil, fmt.Errorf("invalid PLC AMS Net ID: %w", err)
	}

	source := goadsrt.AutoSource()
	if config.PLC.SourceNetID != "" {
		srcNetID, err := goadsrt.ParseNetID(config.PLC.SourceNetID)
		if err != nil {
			return nil, fmt.Errorf("invalid source AMS Net ID: %w", err)
		}
		source = goadsrt.FixedSource(goadsrt.NewAddr(srcNetID, goadsrt.Port(config.PLC.SourcePort)))
	}

	client, reader, err := goadsrt.Connect(
		goadsrt.WithTarget(config.PLC.Target),
		goadsrt.WithSource(source),
		goadsrt.WithTimeouts(goadsrt.Timeouts{
			Connect: config.Timeout(),
			Read:    config.Timeout(),
			Write:   config.Timeout(),
		}),
		goadsrt.WithLogger(goadsrt.NewTextLogger(logLevel(config.Logging.Level))),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PLC: %w", err)
	}
	go reader.Run()

	device := client.Device(goadsrt.NewAddr(netID, goadsrt.Port(config.PLC.AMSPort)))
	gateway := NewGateway(client, device, config)

	s := &Server{
		config:  config,
		client:  client,
		gateway: gateway,
		handler: NewHandler(gateway),
	}
	s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         config.Address(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the HTTP router.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	if s.config.Server.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.Server.CORS.AllowedOrigins,
			AllowedMethods:   s.config.Server.CORS.AllowedMethods,
			AllowedHeaders:   s.config.Server.CORS.AllowedHeaders,
			AllowCredentials: s.config.Server.CORS.AllowCredentials,
			MaxAge:           300,
		}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/symbols/{name}", func(r chi.Router) {
			r.Post("/read", s.handler.HandleReadSymbol)
			r.Post("/write", s.handler.HandleWriteSymbol)
		})

		r.Get("/health", s.handler.HandleHealth)
		r.Get("/info", s.handler.HandleInfo)

		r.Get("/state", s.handler.HandleGetState)
		r.Post("/control", s.handler.HandleControl)
	})

	r.Get("/ws/subscribe", s.handler.HandleWebSocket)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name":"goadsrt HTTP/WebSocket gateway","api":"/api/v1","websocket":"/ws/subscribe"}`)
	})

	s.router = r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	log.Printf("Starting server on %s", s.config.Address())
	log.Printf("PLC target: %s (%s:%d)", s.config.PLC.Target, s.config.PLC.AMSNetID, s.config.PLC.AMSPort)

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server and closes the PLC client.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close PLC client: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// Router returns the chi router (useful for testing).
func (s *Server) Router() *chi.Mux {
	return s.router
}
