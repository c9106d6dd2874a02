// Package monitor serves the live view and control surface over HTTP: the
// profile chart, a frame preview, recording status and the toggle, extract
// and exit commands.
package monitor

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/banshee-data/pulse.report/internal/catalog"
	"github.com/banshee-data/pulse.report/internal/pipeline"
	"github.com/banshee-data/pulse.report/internal/recording"
	"github.com/banshee-data/pulse.report/internal/timeutil"
	"github.com/banshee-data/pulse.report/internal/units"
)

// CommandQueue runs control commands on the capture loop.
type CommandQueue interface {
	Submit(ctx context.Context, cmd pipeline.Command, chooser recording.DirectoryChooser) (pipeline.Reply, error)
	Stats() pipeline.Stats
}

// StatusSource reports recording state.
type StatusSource interface {
	Status() recording.Status
}

// AdminRouter mounts debug routes, such as the catalog's SQL browser.
type AdminRouter interface {
	AttachAdminRoutes(mux *http.ServeMux)
}

// Catalog is the read side of the session catalog.
type Catalog interface {
	Sessions(limit int) ([]catalog.SessionSummary, error)
	Frames(sessionID string) ([]catalog.FrameRow, error)
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	View    *LiveView
	Loop    CommandQueue
	Status  StatusSource
	// OutputDir bounds the directories a toggle request may choose.
	OutputDir string
	// DisplayUnit for durations on the live page.
	DisplayUnit string
	Catalog     Catalog
	Admin       []AdminRouter
	// CommandTimeout bounds how long a request waits for the loop.
	CommandTimeout time.Duration
	Clock          timeutil.Clock
}

// WebServer handles the HTTP interface.
type WebServer struct {
	address   string
	view      *LiveView
	loop      CommandQueue
	status    StatusSource
	outputDir string
	unit      string
	catalog   Catalog
	timeout   time.Duration
	clock     timeutil.Clock
	startedAt time.Time
	server    *http.Server
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	unit := config.DisplayUnit
	if !units.IsValid(unit) {
		unit = units.FS
	}
	timeout := config.CommandTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	view := config.View
	if view == nil {
		view = NewLiveView()
	}
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	ws := &WebServer{
		address:   config.Address,
		view:      view,
		loop:      config.Loop,
		status:    config.Status,
		outputDir: config.OutputDir,
		unit:      unit,
		catalog:   config.Catalog,
		timeout:   timeout,
		clock:     clock,
		startedAt: clock.Now(),
	}

	mux := ws.setupRoutes()
	for _, a := range config.Admin {
		a.AttachAdminRoutes(mux)
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler returns the route multiplexer, for tests and embedding.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleLivePage)
	mux.HandleFunc("/preview.jpg", ws.handlePreview)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/recording/toggle", ws.handleToggle)
	mux.HandleFunc("/api/recording/extract", ws.handleExtract)
	mux.HandleFunc("/api/exit", ws.handleExit)
	mux.HandleFunc("/api/sessions", ws.handleSessions)
	mux.HandleFunc("/api/sessions/frames", ws.handleSessionFrames)

	return mux
}

// Close shuts down the web server immediately.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
