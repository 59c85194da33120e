package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/fxnlabs/gpu-bridge/fixtures"
)

func initConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "init-config",
		Usage: "Write a commented config file template",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Value: "config.yaml",
				Usage: "Destination path for the template",
			},
		},
		Action: func(c *cli.Context) error {
			out := c.String("out")
			if _, err := os.Stat(out); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", out)
			}
			if err := os.WriteFile(out, fixtures.ConfigTemplate, 0644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", out)
			return nil
		},
	}
}
