package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AaronLay10/SentientRenderer/internal/events"
	"github.com/AaronLay10/SentientRenderer/internal/renderer"
	sc "github.com/AaronLay10/SentientRenderer/internal/scenecontrol"
	"github.com/AaronLay10/SentientRenderer/internal/version"
)

// Controller is the scene surface the API drives. renderer.Loop implements it.
type Controller interface {
	Scenes(ctx context.Context) ([]sc.SceneStatus, error)
	Scene(ctx context.Context, id sc.SceneID) (sc.SceneStatus, bool, error)
	Request(ctx context.Context, req renderer.SceneRequest, source string) error
	QueueActions(ctx context.Context, master sc.SceneID, actions []sc.Action) error
	References(master sc.SceneID) []sc.SceneReference
	Stats() renderer.Stats
}

var (
	controllerMu sync.RWMutex
	controller   Controller
)

// SetController sets the controller used by the scene endpoints.
func SetController(c Controller) {
	controllerMu.Lock()
	controller = c
	controllerMu.Unlock()
}

func getController() Controller {
	controllerMu.RLock()
	defer controllerMu.RUnlock()
	return controller
}

// requestTimeout bounds how long a handler waits for the loop.
const requestTimeout = 2 * time.Second

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   version.Service,
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, events.Snapshot())
}

func eventsHistoryHandler(w http.ResponseWriter, r *http.Request) {
	store := events.GetStore()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := store.Query(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{OK: false, Error: msg})
}

// NewRouter builds the API routes.
func NewRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler)
	r.Get("/metrics", metricsHandler)

	r.Post("/auth/token", tokenHandler)

	r.Get("/events", RequireAnyRole(eventsHandler))
	r.Get("/events/history", RequireAnyRole(eventsHistoryHandler))
	r.Get("/ws/events", RequireAnyRole(wsEventsHandler))

	r.Route("/scenes", func(r chi.Router) {
		r.Get("/", RequireAnyRole(listScenesHandler))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", RequireAnyRole(getSceneHandler))
			r.Put("/state", RequireAnyRole(setSceneStateHandler))
			r.Put("/mapping", RequireAdmin(setSceneMappingHandler))
			r.Post("/actions", RequireAdmin(sceneActionsHandler))
		})
	})

	return r
}

// Serve runs the API server on port until ctx is done, then shuts it down.
// TLS is used when InitTLS found a certificate.
func Serve(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tlsCfg, err := LoadTLSConfig()
	if err != nil {
		return err
	}
	srv.TLSConfig = tlsCfg

	errCh := make(chan error, 1)
	go func() {
		if tlsCfg != nil {
			log.Printf("API listening on %s (TLS)\n", srv.Addr)
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		log.Printf("API listening on %s\n", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}
