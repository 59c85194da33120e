package main

import (
	"fmt"

	"github.com/common-nighthawk/go-figure"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fxnlabs/gpu-bridge/internal/node"
)

func startCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Start the bridge runtime and metrics listener",
		Action: func(c *cli.Context) error {
			banner := figure.NewFigure("GPU Bridge", "", true)
			banner.Print()
			fmt.Println("")

			log := state.log.Named("node")
			app := fx.New(
				node.Module(state.cfg, log),
				fx.NopLogger,
			)
			if err := app.Err(); err != nil {
				log.Error("runtime assembly failed", zap.Error(err))
				return err
			}
			app.Run()
			return nil
		},
	}
}
