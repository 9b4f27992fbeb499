package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/SentientRenderer/internal/api"
	"github.com/AaronLay10/SentientRenderer/internal/config"
	"github.com/AaronLay10/SentientRenderer/internal/events"
	"github.com/AaronLay10/SentientRenderer/internal/mqtt"
	"github.com/AaronLay10/SentientRenderer/internal/renderer"
	"github.com/AaronLay10/SentientRenderer/internal/storage"
	"github.com/AaronLay10/SentientRenderer/internal/storage/influxdb"
	"github.com/AaronLay10/SentientRenderer/internal/storage/postgres"
	"github.com/AaronLay10/SentientRenderer/internal/storage/sqlite"
	"github.com/AaronLay10/SentientRenderer/internal/version"
)

const (
	defaultConfigPath = "config/renderer.yaml"
	healthInterval    = 5 * time.Second
)

type LogLine struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logEvent writes a JSON log line for steps that run before the event log is up.
func logEvent(level, event, msg string, fields map[string]interface{}) {
	line := LogLine{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Event:     event,
		Message:   msg,
		Fields:    fields,
	}
	b, _ := json.Marshal(line)
	fmt.Println(string(b))
}

func fatal(event, msg string, err error) {
	logEvent("error", event, msg, map[string]interface{}{"error": err.Error()})
	os.Exit(1)
}

func openStore(cfg *config.RendererConfig) (storage.Store, error) {
	switch cfg.StorageBackend() {
	case config.StorageSQLite:
		return sqlite.Open(cfg.SQLitePath(), cfg.Renderer.ID)
	case config.StoragePostgres:
		return postgres.New(cfg.Renderer.ID)
	default:
		return nil, nil
	}
}

func main() {
	configPath := os.Getenv("SENTIENT_RENDERER_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.LoadRendererConfig(configPath)
	if err != nil {
		fatal("system.error", "failed to load renderer config", err)
	}
	if err := cfg.ResolveInfluxToken(); err != nil {
		fatal("system.error", "failed to resolve influx token", err)
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		fatal("system.error", "failed to resolve API credentials", err)
	}

	hostname, _ := os.Hostname()
	logEvent("info", "system.startup", "rendererd starting", map[string]interface{}{
		"service":     version.Service,
		"version":     version.Version,
		"hostname":    hostname,
		"pid":         os.Getpid(),
		"renderer_id": cfg.Renderer.ID,
		"config":      configPath,
	})

	// Event store. A store that fails to open leaves the renderer running
	// without persistence; it is reported through readiness and alerts.
	store, err := openStore(cfg)
	if err != nil {
		logEvent("error", "system.error", "event store unavailable", map[string]interface{}{
			"backend": cfg.StorageBackend(),
			"error":   err.Error(),
		})
		store = nil
	}
	storeOptional := cfg.StorageBackend() == config.StorageNone
	events.SetStore(store)
	events.SetSession(uuid.NewString())

	influx, err := influxdb.Connect(cfg.InfluxDB, cfg.Renderer.ID)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
	case err != nil:
		logEvent("warn", "system.error", "influxdb unavailable", map[string]interface{}{"error": err.Error()})
	default:
		influx.SetOnError(func(err error) {
			events.Emit("warn", "system.error", "influxdb write failed", map[string]interface{}{"error": err.Error()})
		})
	}

	// Renderer link.
	topics := mqtt.Topics{Prefix: cfg.TopicPrefix(), RendererID: cfg.Renderer.ID}
	client := mqtt.NewClient(cfg.ClientID(), topics)
	commands := mqtt.NewCommandPublisher(client, topics)
	publisher := mqtt.NewEventPublisher(client, topics)

	loop := renderer.NewLoop(renderer.Options{
		Control:   commands,
		Sender:    publisher,
		Publisher: publisher,
		Influx:    influx,
		Interval:  cfg.TickInterval(),
	})
	replies := mqtt.NewReplySubscriber(client, topics, loop)
	commands.SetInbox(loop)
	client.OnConnect(commands.Redeliver)

	// Replies received before Run starts wait in the loop inbox. paho keeps
	// retrying in the background when the broker is down.
	client.StartWithRetry(replies.Topic(), replies.Handler())

	// Configured scenes first, then the operator requests recorded by
	// earlier runs. Config requests are not recorded so they never shadow
	// a later operator request on the next restore.
	for _, req := range renderer.ConfigRequests(cfg.Scenes) {
		if err := loop.Apply(req, "config", false); err != nil {
			logEvent("warn", "system.error", "invalid configured scene", map[string]interface{}{
				"scene_id": uint64(req.SceneID),
				"error":    err.Error(),
			})
		}
	}
	restored, rows, err := renderer.RestoreRequests(store, renderer.DefaultRestoreLimit)
	if err != nil {
		logEvent("warn", "system.error", "restore failed", map[string]interface{}{"error": err.Error()})
	}
	renderer.EmitStartupRestore(loop.ApplyRestored(restored), rows, cfg.Renderer.ID)

	events.Emit("info", "system.startup", "", map[string]interface{}{
		"renderer_id": cfg.Renderer.ID,
		"version":     version.Version,
		"storage":     cfg.StorageBackend(),
		"influxdb":    influx.IsConnected(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()

	api.InitAuth(creds)
	api.InitTLS()
	api.InitMetrics()
	api.InitAlerts()
	api.SetRendererID(cfg.Renderer.ID)
	api.SetController(loop)
	api.SetLoopReady(true)
	api.SetStoreConnected(store != nil, storeOptional)
	api.StartAlertMonitor(ctx, healthInterval)

	go func() {
		ticker := time.NewTicker(healthInterval)
		defer ticker.Stop()
		for {
			api.SetMQTTConnected(client.IsConnected())
			api.SetStoreConnected(store != nil && !events.StoreErrorLogged(), storeOptional)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	if err := api.Serve(ctx, cfg.UIPort()); err != nil {
		events.Emit("error", "system.error", "api server failed", map[string]interface{}{"error": err.Error()})
		stop()
	}

	<-ctx.Done()
	<-loopDone
	api.SetLoopReady(false)

	stats := loop.Stats()
	events.Emit("info", "system.shutdown", "", map[string]interface{}{
		"ticks":           stats.Ticks,
		"replies":         stats.Replies,
		"commands_sent":   commands.Sent(),
		"commands_failed": commands.Failed(),
	})

	events.CloseAllSubscribers()
	client.Disconnect()
	if err := influx.Close(); err != nil {
		logEvent("warn", "system.error", "influxdb close failed", map[string]interface{}{"error": err.Error()})
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logEvent("warn", "system.error", "event store close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	logEvent("info", "system.shutdown", "rendererd stopped", nil)
}
