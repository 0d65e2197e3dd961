package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"asnwatch/pkg/config"
	"asnwatch/pkg/geoenrich"
	"asnwatch/pkg/orchestrator"
	"asnwatch/pkg/reporter"
)

const version = "0.1.0"

func main() {
	cfgPath := flag.String("config", "/etc/asnwatch/asnwatch.yaml", "Path to the YAML configuration file")
	once := flag.Bool("once", false, "Run a single ingest cycle and exit instead of looping")
	dryRun := flag.Bool("dry-run", false, "Write each report to stdout instead of the log")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("asnwatchd version %s\n", version)
		return
	}

	file, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("ERROR: failed to load configuration: %v", err)
	}

	sanityIP, err := file.SanityIPAddr()
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	var rep orchestrator.Reporter = reporter.LogReporter{}
	if *dryRun {
		rep = reporter.NewWriterReporter(os.Stdout)
	}

	cfg := buildOrchestratorConfig(file, sanityIP)

	if file.GeoIPDatabasePath != "" {
		enricher, err := geoenrich.Open(file.GeoIPDatabasePath, "")
		if err != nil {
			log.Printf("WARN: geoip enrichment disabled, could not open database: %v", err)
		} else {
			defer enricher.Close()
			cfg.Enricher = enricher
			log.Printf("INFO: geoip enrichment enabled using %s", file.GeoIPDatabasePath)
		}
	}

	orch := orchestrator.New(cfg, rep)

	if *once {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := orch.RunIngestCycle(ctx); err != nil {
			log.Fatalf("ERROR: ingest cycle failed: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("INFO: asnwatchd %s starting, monitoring ASNs %v", version, file.MonitoredASNs)
	orch.Run(ctx)
	log.Printf("INFO: asnwatchd shutting down")
}
