// Command refstreamd runs the streaming genomics gateway: it wires
// together the config, catalog, metrics, and gateway packages and drives
// them with an oklog/run.Group, the same shape as the teacher's
// cmd/mediaserver/cmd/main.go + mediaserver.RunPicastMediaServer.
package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arlojanssen/refstream/internal/adminconsole"
	"github.com/arlojanssen/refstream/internal/authz"
	"github.com/arlojanssen/refstream/internal/catalog"
	"github.com/arlojanssen/refstream/internal/config"
	"github.com/arlojanssen/refstream/internal/gateway"
	"github.com/arlojanssen/refstream/internal/metrics"
	"github.com/arlojanssen/refstream/internal/planner"
)

func setupLogging() (*os.File, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, err
	}

	logPath := filepath.Join(filepath.Dir(exePath), "refstream.log")
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	log.SetOutput(logFile)
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	return logFile, nil
}

func main() {
	logFile, err := setupLogging()
	if err != nil {
		panic(err)
	}
	defer logFile.Close()

	log.Println("starting refstream gateway")

	cfg := config.Load()

	catalogPath := filepath.Join(cfg.TempDir, "refstream-catalog.json")
	if _, err := catalog.EnsureFile(catalogPath); err != nil {
		log.Fatalf("failed to prepare catalog file: %v", err)
	}

	catalogFile, err := os.Open(catalogPath)
	if err != nil {
		log.Fatalf("failed to open catalog file: %v", err)
	}
	fileCat, err := catalog.LoadFileCatalog(catalogFile)
	catalogFile.Close()
	if err != nil {
		log.Fatalf("failed to load catalog file: %v", err)
	}
	defer fileCat.SaveJSON(catalogPath)

	var cat catalog.Catalog = fileCat
	var cachedCatalog *catalog.CachedCatalog
	if cfg.RedisAddr != "" {
		cachedCatalog = catalog.NewCachedCatalog(fileCat, cfg.RedisAddr, 5*time.Minute)
		cat = cachedCatalog
		defer cachedCatalog.Close()
	}

	processor := &gateway.Processor{
		Tools: planner.ToolPaths{
			AlignmentToolkit: cfg.SamtoolsPath,
			DuplicateMarker:  cfg.BiobambamPath,
			VariantCaller:    cfg.BcftoolsPath,
		},
		TempDir: cfg.TempDir,
		Grace:   cfg.GraceTimeout(),
	}

	var authorizer authz.Authorizer
	if len(cfg.AllowedTokens) > 0 {
		authorizer = authz.NewStaticAuthorizer(cfg.AllowedTokens)
	}

	handler := &gateway.Handler{
		Processor:  processor,
		Catalog:    cat,
		Authorizer: authorizer,
	}

	httpServer := gateway.NewServer(handler)
	metricsServer := metrics.NewServer(cfg.MetricsAddr)
	console := adminconsole.New(cachedCatalog, func() adminconsole.Stats {
		var s adminconsole.Stats
		families, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			return s
		}
		for _, mf := range families {
			if mf.GetName() == "refstream_requests_in_flight" && len(mf.GetMetric()) > 0 {
				s.InFlightRequests = int(mf.GetMetric()[0].GetGauge().GetValue())
			}
		}
		return s
	})

	var rg run.Group

	signalTrap := make(chan os.Signal, 1)
	signal.Notify(signalTrap, syscall.SIGINT, syscall.SIGTERM)
	rg.Add(
		func() error {
			if sig, ok := <-signalTrap; ok {
				log.Printf("refstream rungroup interrupt due to: %v", sig)
				return errors.New(sig.String() + " signal")
			}
			return nil
		},
		func(error) {
			signal.Stop(signalTrap)
			close(signalTrap)
		},
	)

	rg.Add(
		func() error { return httpServer.ListenAndServe(cfg.ListenAddr) },
		httpServer.Interrupt,
	)

	rg.Add(
		metricsServer.ListenAndServe,
		metricsServer.Interrupt,
	)

	rg.Add(console.Run, console.Interrupt)

	log.Println("refstream server group starting")
	err = rg.Run()
	log.Printf("refstream server group exited: %v\n", err)
}
