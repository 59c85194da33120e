package main

import (
	"log/slog"
	"sort"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fxnlabs/gpu-bridge/internal/cublas"
	"github.com/fxnlabs/gpu-bridge/internal/dispatch"
)

func probeCommand(state *appState) *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Detect the numeric backend and list the dispatch table",
		Action: func(c *cli.Context) error {
			log := state.log.Named("probe")

			lib := cublas.Detect(cublas.Options{
				CublasLibrary: state.cfg.CUDA.CublasLibrary,
				CudartLibrary: state.cfg.CUDA.CudartLibrary,
			}, slog.Default())
			log.Info("numeric backend", zap.String("backend", lib.Name()))

			pool := dispatch.NewHandlePool(lib)
			defer pool.Close()
			d := dispatch.NewDispatcher(lib, pool, log)

			names := make([]string, 0, len(d.Registrations()))
			for name := range d.Registrations() {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				log.Info("registered operation", zap.String("op", name))
			}
			return nil
		},
	}
}
