// Command gxgateway runs the instrument control-plane gateway.
//
// It reads an optional YAML configuration, assigns the instrument address, serves the GXIP
// session ports, the download manager and the control channel, and runs until SIGINT or
// SIGTERM. The process also exits with status 0 after an installed update or a launch
// command, so a supervising launcher can start the software again.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arloliu/go-gxip/gateway"
	"github.com/arloliu/go-gxip/logger"
)

func main() {
	version := flag.Bool("version", false, "Prints the gateway version.")
	cfgPath := flag.String("config", "", "YAML configuration file. Defaults apply when empty.")
	updateMode := flag.Bool("update", false, "Run as the update receiver: an installed update does not exit.")
	logLevel := flag.String("log-level", "", "Overrides the configured log level.")
	flag.Parse()

	if *version {
		major, minor, build := gateway.SplitVersion(gateway.Version)
		fmt.Printf("%d.%d.%d\n", major, minor, build)

		return
	}

	os.Exit(run(*cfgPath, *updateMode, *logLevel))
}

func run(cfgPath string, updateMode bool, logLevel string) int {
	cfg := gateway.DefaultConfig()
	if cfgPath != "" {
		var err error
		if cfg, err = gateway.LoadConfig(cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
			return 2
		}
	}
	if updateMode {
		cfg.Update.Mode = true
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		return 2
	}
	log := logger.NewSlog(level, false)
	logger.SetDefault(log)

	gw, err := gateway.New(cfg, gateway.WithLogger(log))
	if err != nil {
		log.Error("failed to create gateway", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := gw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("gateway stopped", "error", err)
		return 1
	}
	log.Info("shutdown finished")

	return 0
}
