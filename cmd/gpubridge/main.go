package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fxnlabs/gpu-bridge/internal/config"
	"github.com/fxnlabs/gpu-bridge/internal/logger"
)

// appState carries what the Before hook built to the command actions.
type appState struct {
	cfg *config.Config
	log *zap.Logger
}

func main() {
	var configPath string
	state := &appState{}

	app := &cli.App{
		Name:  "gpubridge",
		Usage: "A batched cuBLAS dispatch bridge with a host fallback",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Path to the config file",
				EnvVars:     []string{"GPUBRIDGE_CONFIG"},
				Destination: &configPath,
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			if configPath == "" {
				state.cfg = config.Default()
			} else {
				state.cfg, err = config.LoadConfig(configPath)
				if err != nil {
					return err
				}
			}
			state.log, err = logger.New(state.cfg.Logger.Verbosity)
			if err != nil {
				return err
			}
			return nil
		},
		Commands: []*cli.Command{
			startCommand(state),
			probeCommand(state),
			initConfigCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		if state.log != nil {
			state.log.Fatal("failed to run app", zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}
