// VisionAvatar - session identity controller for a vision-aware avatar
package main

import (
	"bufio"
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/normanking/visionavatar/internal/bus"
	"github.com/normanking/visionavatar/internal/config"
	"github.com/normanking/visionavatar/internal/logging"
	"github.com/normanking/visionavatar/internal/monitor"
	"github.com/normanking/visionavatar/internal/oracle"
	"github.com/normanking/visionavatar/internal/profile"
	"github.com/normanking/visionavatar/internal/server"
	"github.com/normanking/visionavatar/internal/session"
	"github.com/normanking/visionavatar/internal/vision"
)

// Global logger instance
var syslog *logging.Logger

// loadEnvFile loads API keys from ~/.visionavatar/.env into the process
// environment.
func loadEnvFile() {
	home, err := os.UserHomeDir()
	if err != nil {
		syslog.Warn("env", "Could not get home directory", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	envPath := filepath.Join(home, ".visionavatar", ".env")
	file, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	loadedCount := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), "\"'")

		// Only set if not already in environment
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
			loadedCount++
		}
	}
	if loadedCount > 0 {
		syslog.Info("env", "Loaded environment variables", map[string]interface{}{
			"source": filepath.Base(envPath),
			"count":  loadedCount,
		})
	}
}

func main() {
	// Initialize structured logger FIRST
	var err error
	syslog, err = logging.New(nil) // Uses default config
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer syslog.Close()

	syslog.Info("main", "VisionAvatar starting...", nil)

	loadEnvFile()

	// Get zerolog instance for components that need it
	zlogger := syslog.Zerolog()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		syslog.Warn("config", "Failed to load config, using defaults", map[string]interface{}{
			"error": err.Error(),
		})
		cfg = config.DefaultConfig()
	}
	syslog.Info("config", "Configuration loaded", map[string]interface{}{
		"listenAddr": cfg.Server.ListenAddr,
		"oracleMode": cfg.Oracle.Mode,
	})

	// Create event bus; announcements and greetings land in the structured
	// log so sessions can be reconstructed after the fact
	eventBus := bus.NewEventBus()
	eventBus.SubscribeMultiple([]bus.EventType{
		bus.EventTypeAnnouncement,
		bus.EventTypeGreeting,
		bus.EventTypeIdentityErased,
	}, func(evt bus.Event) {
		syslog.Info("events", string(evt.Type), evt.Data)
	})

	// Open profile store
	store, err := profile.Open(cfg.Store.DBPath, zlogger)
	if err != nil {
		syslog.Error("store", "Failed to open profile store", err, nil)
		os.Exit(1)
	}
	defer store.Close()

	// Create the oracle per configured mode
	var orc oracle.Oracle
	var health oracle.HealthChecker
	switch cfg.Oracle.Mode {
	case "remote":
		remote := oracle.NewRemote(&oracle.RemoteConfig{
			BaseURL: cfg.Oracle.BaseURL,
			APIKey:  cfg.Oracle.APIKey,
			Timeout: cfg.Oracle.Timeout,
		}, zlogger)
		orc = remote
		health = remote
	default:
		sim := oracle.NewSimulated(&oracle.SimulatedConfig{
			MatchProbability: cfg.Simulated.MatchProbability,
			MaxCollection:    cfg.Simulated.MaxCollection,
			SimilarityMin:    cfg.Simulated.SimilarityMin,
			SimilarityMax:    cfg.Simulated.SimilarityMax,
			LiveRate:         cfg.Simulated.LiveRate,
		}, zlogger)
		orc = sim
		health = sim
	}

	// Ensure the recognition collection exists
	collectionID := store.EnsureCollectionID()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := orc.CreateCollection(ctx, collectionID, cfg.Oracle.CollectionDesc); err != nil {
		syslog.Warn("oracle", "Collection setup failed, recognition may not work", map[string]interface{}{
			"error":      err.Error(),
			"collection": collectionID,
		})
	}
	cancel()

	// Create session controller
	controller := session.NewController(session.Config{
		ChangeCooldown:       cfg.Announce.ChangeCooldown,
		RecognitionCooldown:  cfg.Announce.RecognitionCooldown,
		DemographicJumpYears: cfg.Announce.DemographicJumpYears,
	}, store, eventBus, zlogger)

	// Create vision manager
	visionMgr := vision.NewManager(nil, eventBus, zlogger)
	if err := visionMgr.Start(); err != nil {
		syslog.Error("vision", "Failed to start vision manager", err, nil)
		os.Exit(1)
	}
	defer visionMgr.Stop()

	// Create monitor loops
	mon := monitor.New(monitor.Config{
		TickInterval:     cfg.Monitor.FastTickInterval,
		LivenessInterval: cfg.Monitor.LivenessInterval,
		LivenessWindow:   cfg.Monitor.LivenessSample,
	}, orc, visionMgr, controller, eventBus, zlogger)
	mon.SetCollection(collectionID, cfg.Oracle.MatchThreshold)
	defer mon.Stop()

	// Watch config file for cooldown/threshold changes
	watcher, err := config.NewWatcher(zlogger, func(next *config.Config) {
		controller.SetConfig(session.Config{
			ChangeCooldown:       next.Announce.ChangeCooldown,
			RecognitionCooldown:  next.Announce.RecognitionCooldown,
			DemographicJumpYears: next.Announce.DemographicJumpYears,
		})
		mon.SetCollection(store.EnsureCollectionID(), next.Oracle.MatchThreshold)
	})
	if err != nil {
		syslog.Warn("config", "Config watcher unavailable", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		defer watcher.Close()
	}

	// Create HTTP/WebSocket server
	srv := server.New(server.Config{
		ListenAddr: cfg.Server.ListenAddr,
	}, controller, mon, visionMgr, store, health, syslog, zlogger)

	// Serve until interrupted
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		syslog.Info("main", "Shutting down", map[string]interface{}{
			"signal": sig.String(),
		})
	case err := <-errCh:
		if err != nil {
			syslog.Error("server", "Server failed", err, nil)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		syslog.Warn("server", "Shutdown did not complete cleanly", map[string]interface{}{
			"error": err.Error(),
		})
	}

	syslog.Info("main", "Application exited normally", nil)
}
