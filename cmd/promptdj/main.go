package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/promptdj/promptdj/internal/audio"
	"github.com/promptdj/promptdj/internal/backend"
	"github.com/promptdj/promptdj/internal/config"
	"github.com/promptdj/promptdj/internal/layers"
	"github.com/promptdj/promptdj/internal/sink"
	"github.com/promptdj/promptdj/internal/stream"
)

func main() {
	cfg := config.Load()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine, err := sink.NewEngine(cfg.SampleRate)
	if err != nil {
		log.Fatal("audio engine init failed", zap.Error(err))
	}
	defer engine.Close()

	log.Info("promptdj starting up",
		zap.Int("layers", cfg.Layers),
		zap.Int("sample_rate", cfg.SampleRate),
		zap.String("backend", cfg.BackendURL))

	// Monitor stream: optional fan-out of every rendered clip.
	var (
		broadcaster *stream.Broadcaster
		framer      *stream.Framer
	)
	poolOpts := []layers.Option{layers.WithDebounceWindow(cfg.DebounceWindow)}
	if cfg.MonitorPort > 0 {
		broadcaster = stream.NewBroadcaster()
		framer = stream.NewFramer()
		go broadcaster.Run(ctx, framer.Source())
		poolOpts = append(poolOpts, layers.WithMonitor(framer.Tap))
	}

	pool := layers.NewPool(engine, cfg.Layers, cfg.SampleRate, log, poolOpts...)
	defer pool.ReleaseAll()

	// Generation backend
	clientOpts := []backend.Option{backend.WithMaxBackoff(cfg.ReconnectMax)}
	if cfg.ClientID != "" {
		clientOpts = append(clientOpts, backend.WithClientID(cfg.ClientID))
	}
	client := backend.NewClient(cfg.BackendURL, log, clientOpts...)

	client.OnAudioReady(func(pcm []byte, channels, sampleRate int, hint string) {
		// Clips rendered at a foreign rate are resampled to the device
		// rate before submission.
		if sampleRate > 0 && sampleRate != cfg.SampleRate {
			samples := audio.DecodePCM16(pcm, channels)
			samples = audio.Resample(samples, sampleRate, cfg.SampleRate)
			pcm = audio.SamplesToPCM16(samples)
			channels = 1
		}
		var ok bool
		switch hint {
		case backend.HintDrums:
			ok = pool.PlayDrums(pcm, channels)
		case backend.HintCombined:
			ok = pool.PlayCombined(pcm, channels)
		default:
			ok = pool.PlayMelody(pcm, channels)
		}
		if !ok {
			log.Warn("clip dropped", zap.String("owner", hint))
		}
	})
	go client.Run(ctx)

	// Frame clock: drives debounce countdowns.
	go func() {
		ticker := time.NewTicker(cfg.FrameInterval)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				pool.Tick(now.Sub(last).Seconds())
				last = now
			}
		}
	}()

	// Keepalive toward the backend.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				client.Ping()
			}
		}
	}()

	if cfg.MonitorPort > 0 {
		go serveMonitor(ctx, cfg.MonitorPort, log, pool, broadcaster)
	}

	<-ctx.Done()
	log.Info("shutting down")
	pool.StopAll()
}

// serveMonitor exposes the rendered mix and pool status over HTTP.
func serveMonitor(ctx context.Context, port int, log *zap.Logger, pool *layers.Pool, b *stream.Broadcaster) {
	webrtcHandler := stream.NewWebRTCHandler(b, log)

	mux := http.NewServeMux()
	mux.Handle("/stream", stream.NewHTTPHandler(b, log))
	mux.Handle("/offer", webrtcHandler)
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(map[string]any{
			"layers":           pool.Size(),
			"reserved":         pool.ActiveCount(),
			"available":        pool.AvailableCount(),
			"status":           pool.Status(),
			"http_listeners":   b.ListenerCount(),
			"webrtc_listeners": webrtcHandler.PeerCount(),
		})
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		server.Close()
	}()

	log.Info("monitor stream live", zap.Int("port", port))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Error("monitor server error", zap.Error(err))
	}
}
