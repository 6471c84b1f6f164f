// Command gatenode is the single-binary entrypoint for the embedded gate
// access-control edge runtime, replacing the FD teacher's split
// cmd/api + cmd/worker + cmd/ingestor services with one process that owns
// the whole capture -> recognise -> decide -> act pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gatenet/edge-node/internal/apperr"
	"github.com/gatenet/edge-node/internal/config"
	"github.com/gatenet/edge-node/internal/logging"
	"github.com/gatenet/edge-node/internal/supervisor"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code documented in SPEC_FULL.md §6: 0 clean,
// 1 failed startup, 2 unrecoverable runtime error.
func run() int {
	configPath := flag.String("config", "/etc/gatenode/config.toml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return apperr.KindConfiguration.ExitCode()
	}

	log := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("starting gate node", "gate_id", cfg.GateID, "org_id", cfg.OrgID)

	sup, err := supervisor.New(cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		return apperr.Of(err).ExitCode()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sup.Run(ctx); err != nil {
		log.Error("supervisor exited with error", "error", err)
		return apperr.Of(err).ExitCode()
	}

	log.Info("gate node stopped")
	return apperr.KindShutdown.ExitCode()
}
