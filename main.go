// Command spotter watches a paper target through a fixed optic, detects
// new bullet holes as they appear and serves a live stream plus scoring
// surface over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/openrange-dev/spotter/api"
	"github.com/openrange-dev/spotter/internal/analysis"
	"github.com/openrange-dev/spotter/internal/capture"
	"github.com/openrange-dev/spotter/internal/config"
	"github.com/openrange-dev/spotter/internal/target"
	"github.com/openrange-dev/spotter/internal/targetdb"
	"github.com/openrange-dev/spotter/internal/version"
)

var (
	listen      = flag.String("listen", ":8000", "Listen address")
	dbFile      = flag.String("db", "targets.db", "Target database file")
	source      = flag.String("source", "emulate", "Frame source: emulate or replay")
	framesDir   = flag.String("frames", "", "Directory of recorded frames for -source=replay")
	fps         = flag.Float64("fps", 15, "Capture frame rate")
	targetName  = flag.String("target", "precision-11", "Active target name")
	tuningFile  = flag.String("tuning", "", "Optional JSON tuning file")
	seed        = flag.Int64("seed", 0, "Emulator noise seed (0 uses the clock)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	settings := analysis.DefaultSettings()
	if *tuningFile != "" {
		cfg, err := config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		settings = cfg.Apply(settings)
		log.Printf("Applied tuning config from %s", *tuningFile)
	}

	var cam capture.Source
	switch *source {
	case "emulate":
		s := *seed
		if s == 0 {
			s = time.Now().UnixNano()
		}
		em := capture.NewEmulator(s)
		em.SetFPS(*fps)
		cam = em
	case "replay":
		if *framesDir == "" {
			log.Fatal("-frames is required for -source=replay")
		}
		var err error
		cam, err = capture.NewReplay(*framesDir, *fps)
		if err != nil {
			log.Fatalf("failed to open replay source: %v", err)
		}
	default:
		log.Fatalf("unknown source %q", *source)
	}

	db, err := targetdb.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open target database: %v", err)
	}
	defer db.Close()

	tgt, err := db.Load(*targetName)
	if err != nil {
		log.Printf("failed to load target %q, using built-in default: %v", *targetName, err)
		tgt = target.Default()
	}

	engine := analysis.NewEngine(tgt, settings, nil)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the capture routine driving the analysis engine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := cam.Run(ctx, engine.Analyse); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("capture routine failed: %v", err)
		}
		engine.Close()
	}()

	server := api.NewServer(engine, cam, db)
	httpServer := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(server.ServeMux()),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("Started spotter %s on http://%s", version.String(), *listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server failed: %v", err)
			stop()
		}
	}()

	// wait for shutdown signal, then stop the HTTP server so the
	// capture routine can drain
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			httpServer.Close()
		}
	}()

	wg.Wait()
	log.Print("Shutdown complete")
	os.Exit(0)
}
