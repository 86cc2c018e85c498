// Package cmd wires configuration, logging and the API server into the localsend-session CLI.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/moyoez/localsend-session/api/models"
	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/types"
)

var flags types.Config

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "localsend-session",
		Short:         "Send and receive files with LocalSend v1 peers on the local network",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.Log, "log", "", "log mode: dev, prod or none")
	pf.StringVar(&flags.UseConfigPath, "config", "config.yaml", "path to config file")
	pf.StringVar(&flags.UseAlias, "alias", "", "device alias announced to peers")
	pf.BoolVar(&flags.UseHttp, "http", false, "use plain http instead of https")
	pf.IntVar(&flags.UsePort, "port", 0, "port to listen on (default 53317)")

	root.AddCommand(newReceiveCommand(), newSendCommand())
	return root
}

// loadConfig merges config file, .env, environment and flags, in that order of precedence (lowest first).
func loadConfig() (types.AppConfig, error) {
	tool.InitLogger()
	tool.SetLogMode(flags.Log)
	if err := tool.LoadDotEnv(); err != nil {
		tool.DefaultLogger.Warnf("Failed to load .env: %v", err)
	}
	cfg, err := tool.LoadConfig(flags.UseConfigPath)
	if err != nil {
		return cfg, err
	}
	if err := tool.ApplyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	tool.ApplyFlagOverrides(&cfg, flags)
	tool.SetCurrentConfig(cfg)

	models.SetSelfDevice(&types.SelfDevice{
		DeviceInfo:  tool.SelfDevice(cfg),
		Fingerprint: cfg.Fingerprint,
		Port:        cfg.Port,
		Https:       cfg.Protocol == "https",
	})
	return cfg, nil
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fang.Execute(ctx, newRootCommand())
}
