// Command artemis runs a single educational proof-of-work blockchain node
// (spec.md §1). Argument parsing and config loading are thin external
// collaborators per spec.md §1; this entrypoint only wires them to the
// core.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/felipemeriga/artemis/config"
	"github.com/felipemeriga/artemis/runtime"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	app := &cli.App{
		Name:  "artemis",
		Usage: "run an educational proof-of-work blockchain node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "path to the node's YAML configuration file",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			return run(c.String("config"), logger)
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.WithError(err).Fatal("artemis exited with error")
	}
}

func run(configPath string, logger *logrus.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	node, err := runtime.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node.Start(ctx)
	<-ctx.Done()

	return node.Stop()
}
