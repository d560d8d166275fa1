/*
DESCRIPTION
  sandboxd is the engine's CLI entry point (spec.md §6): it parses the
  CLI/environment configuration surface, constructs the Calibration
  Store, Device Adapters, Session Coordinator, Broadcast Server and
  Control & Diagnostics Reporter, and drives cooperative shutdown on
  SIGINT/SIGTERM. Logger construction (lumberjack file sink +
  logging.New) follows cmd/rv/main.go.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

// Command sandboxd runs the AR Sandbox sensor-fusion and
// elevation-broadcast engine.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/arsandbox/engine/broadcast"
	"github.com/arsandbox/engine/calib"
	"github.com/arsandbox/engine/config"
	"github.com/arsandbox/engine/device"
	"github.com/arsandbox/engine/device/color"
	"github.com/arsandbox/engine/device/depth"
	"github.com/arsandbox/engine/device/mock"
	"github.com/arsandbox/engine/diag"
	"github.com/arsandbox/engine/feature"
	"github.com/arsandbox/engine/session"
)

// Exit codes, spec.md §6.
const (
	exitOK                = 0
	exitConfigError       = 2
	exitFatalIO           = 3
	exitCalibrationCorrupt = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	fileLog := &lumberjack.Logger{Filename: "sandboxd.log", MaxSize: 50, MaxBackups: 5, MaxAge: 28}
	log := logging.New(logging.Info, fileLog, false)

	cfg, err := config.ParseArgs(os.Args[1:], os.LookupEnv, log)
	if err != nil {
		log.Error("sandboxd: configuration error", "error", err.Error())
		return exitConfigError
	}
	if cfg.LogPath != "" {
		fileLog.Filename = cfg.LogPath
	}

	log.Info("sandboxd: starting", "profile", cfg.Profile, "serve", cfg.ServeAddr)

	defCal := defaultCalibration(cfg)
	store := calib.NewStore(cfg.CalibDir, cfg.Profile, defCal, log)
	switch loaded, err := store.Load(); {
	case errors.Is(err, calib.ErrMissing):
		log.Info("sandboxd: no stored calibration, starting from configured defaults")
	case errors.Is(err, calib.ErrCalibrationInvalid), errors.Is(err, calib.ErrCorrupt):
		// spec.md §8 scenario 5: a shape-mismatched or corrupt profile is
		// quarantined by Load and the engine runs on its configured
		// default calibration rather than failing to start; the session
		// is not held in Calibrating.
		log.Warning("sandboxd: stored calibration rejected, remaining on configured defaults", "error", err.Error())
	case err != nil:
		log.Error("sandboxd: calibration load failed", "error", err.Error())
		return exitCalibrationCorrupt
	default:
		if _, err := store.Propose(loaded); err != nil {
			log.Error("sandboxd: stored calibration failed validation", "error", err.Error())
			return exitCalibrationCorrupt
		}
	}
	if err := store.Watch(func(calib.Calibration, calib.Revision) {
		log.Info("sandboxd: calibration file changed on disk")
	}); err != nil {
		log.Warning("sandboxd: calibration hot-reload watch failed", "error", err.Error())
	}
	defer store.Close()

	depthAdapter := depth.New("depth0", &mock.DepthCapture{Width: cfg.GridCols, Height: cfg.GridRows, BaseMM: 1000, PeakMM: 700}, depth.DefaultMinMM, depth.DefaultMaxMM, cfg.DeviceTimeout, log)

	var colorPrimary, colorAux device.Adapter
	if !cfg.NoColor {
		colorPrimary = color.New("color0", &mock.ColorCapture{Width: cfg.GridCols, Height: cfg.GridRows, R: 200, G: 170, B: 120}, cfg.DeviceTimeout, log)
	}

	featureOpts := feature.Options{
		Contours: true, Gradient: true, PeaksPits: true, Roughness: true, Histogram: true,
		ContourStepMM: feature.DefaultContourStepMM, ProminenceMM: feature.DefaultProminenceMM,
		HistogramBins: feature.DefaultHistogramBins,
	}
	if cfg.NoFeatures {
		featureOpts = feature.Options{}
	}

	broadcastServer := broadcast.NewServer(cfg.SlowSubscriberLimit, nil, log)

	coord := session.New(depthAdapter, colorPrimary, colorAux, store, broadcastServer, session.Config{
		TickPeriod:  cfg.TickPeriod,
		FeatureOpts: featureOpts,
	}, log)
	broadcastServer.SetController(coord)

	if err := coord.Run(); err != nil {
		log.Error("sandboxd: session run failed", "error", err.Error())
		return exitFatalIO
	}
	defer coord.Close()

	reporter := diag.NewReporter(coord, broadcastServer)

	mux := http.NewServeMux()
	mux.HandleFunc("/frames", broadcastServer.AcceptHandler(subscriberIDFromRequest, subscribeOptionsFromRequest))
	mux.HandleFunc("/status", statusHandler(reporter))

	httpServer := &http.Server{Addr: cfg.ServeAddr, Handler: mux}
	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.ListenAndServe() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Error("sandboxd: http server failed", "error", err.Error())
			return exitFatalIO
		}
	case s := <-sig:
		log.Info("sandboxd: received signal, shutting down", "signal", s.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warning("sandboxd: http shutdown did not complete cleanly", "error", err.Error())
	}
	return exitOK
}

func defaultCalibration(cfg config.Config) calib.Calibration {
	cal := calib.Default()
	cal.Grid = calib.Grid{Cols: cfg.GridCols, Rows: cfg.GridRows}
	cal.Baseline = make([]float32, cfg.GridCols*cfg.GridRows)
	return cal
}

func subscriberIDFromRequest(r *http.Request) string {
	if id := r.URL.Query().Get("id"); id != "" {
		return id
	}
	return r.RemoteAddr
}

func subscribeOptionsFromRequest(r *http.Request) broadcast.SubscribeOptions {
	q := r.URL.Query()
	return broadcast.SubscribeOptions{
		WantColor:    q.Get("want_color") == "true",
		WantFeatures: q.Get("want_features") == "true",
	}
}

func statusHandler(r *diag.Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		st := r.Status()
		fmt.Fprintf(w, "state=%v uptime=%v tick=%v subscribers=%d revision=%d\n",
			st.State, st.Uptime, st.TickCadence, st.SubscriberCount, st.CalibrationRevision)
	}
}
