package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rf-checker/rf-checker-go/internal/app"
	"github.com/rf-checker/rf-checker-go/internal/config"
	"github.com/rf-checker/rf-checker-go/internal/service"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	game := flag.String("game", "", "Steam game name to look up")
	text := flag.String("text", "", "free text passed to the text generator as context")
	probeOnly := flag.Bool("probe-only", false, "print evidence reports without generating text")
	noAI := flag.Bool("no-ai", false, "disable text generation")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] URL...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// keep stdout for the JSON report
	cfg.Log.Output = "stderr"
	if *noAI || *probeOnly {
		cfg.AI.Enabled = false
	}
	logger := config.InitLogger(&cfg.Log)

	pipeline, err := app.Build(cfg, logger, nil)
	if err != nil {
		logger.Fatalf("Failed to build check pipeline: %v", err)
	}
	defer pipeline.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var out interface{}
	if *probeOnly {
		out, err = pipeline.Checks.Probe(ctx, flag.Args())
	} else {
		out, err = pipeline.Checks.Check(ctx, &service.CheckRequest{
			URLs:     flag.Args(),
			GameName: *game,
			Text:     *text,
		})
	}
	if err != nil {
		logger.WithError(err).Error("Check failed")
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		logger.WithError(err).Error("Failed to encode report")
		os.Exit(1)
	}
}
