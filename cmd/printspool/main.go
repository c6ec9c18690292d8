package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/wiffzack/printspool/internal/api"
	"github.com/wiffzack/printspool/internal/config"
	"github.com/wiffzack/printspool/internal/core"
	"github.com/wiffzack/printspool/internal/logger"
	"github.com/wiffzack/printspool/internal/spool"
	"github.com/wiffzack/printspool/internal/transport"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    "printspool",
		Usage:   "render invoices to ESC/POS receipts and spool them to printers",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				Value:   "config.yaml",
				EnvVars: []string{"PRINTSPOOL_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			renderCommand(),
			previewCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "printspool:", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the print queue with the configured job sources",
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := newApplication(c.Context, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.startQueue(c.Context, cfg.Queue.RecoverOnStart); err != nil {
				return err
			}
			return serve(c.Context, a)
		},
	}
}

// serve runs the job sources and the HTTP server until ctx is done or one
// of them fails.
func serve(ctx context.Context, a *application) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		firstErr error
		once     sync.Once
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				a.logger.Error("component stopped", zap.String("component", name), zap.Error(err))
				once.Do(func() { firstErr = fmt.Errorf("%s: %w", name, err) })
				cancel()
			}
		}()
	}

	cfg := a.cfg
	if cfg.Transport.Stdin {
		run("stdin", func(ctx context.Context) error {
			n, err := transport.ReadLines(ctx, os.Stdin, a.queue, a.logger)
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			a.logger.Info("stdin closed", zap.Int("jobs", n))
			return err
		})
	}

	if cfg.Transport.Redis.Enabled {
		src := transport.NewRedisSource(cfg.Transport.Redis, a.queue, a.logger)
		defer src.Close()
		run("redis", src.Run)
	}

	if cfg.Transport.Kafka.Enabled {
		src := transport.NewKafkaSource(cfg.Transport.Kafka, a.queue, a.logger)
		defer src.Close()
		run("kafka", src.Run)
	}

	if cfg.Server.Enabled {
		deps := api.Deps{
			Queue:     a.queue,
			Builder:   a.service,
			Jobs:      a.journal.Operations(),
			Templates: a.templates,
		}
		if a.metrics != nil {
			deps.Metrics = a.metrics.Handler()
		}
		if reporter, ok := a.sink.(api.StateReporter); ok {
			deps.Printer = reporter
		}
		run("http", api.NewServer(*cfg, deps, a.logger).Run)
	}

	a.logger.Info("printspool started",
		zap.String("spool", cfg.Spool.Backend),
		zap.Bool("http", cfg.Server.Enabled),
		zap.Bool("stdin", cfg.Transport.Stdin),
		zap.Bool("redis", cfg.Transport.Redis.Enabled),
		zap.Bool("kafka", cfg.Transport.Kafka.Enabled),
	)

	<-ctx.Done()
	wg.Wait()
	a.logger.Info("printspool stopping")
	return firstErr
}

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:  "render",
		Usage: "process one job record and exit once it is done",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "record",
				Aliases:  []string{"r"},
				Usage:    "job record as invoiceId[:template[:output]]",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			rec, err := transport.ParseRecord(c.String("record"))
			if err != nil {
				return err
			}

			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := newApplication(c.Context, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			var (
				mu     sync.Mutex
				failed error
			)
			onFail := core.JobHookFunc(func(ev core.JobEvent) {
				if ev.Type == core.EventJobFailed {
					mu.Lock()
					failed = ev.Err
					mu.Unlock()
				}
			})
			if err := a.startQueue(c.Context, false, onFail); err != nil {
				return err
			}

			a.queue.Enqueue(rec.InvoiceID, rec.Template, rec.Output)
			if err := a.queue.WaitIdle(c.Context); err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if failed != nil {
				return fmt.Errorf("job %s failed: %w", rec, failed)
			}
			return nil
		},
	}
}

func previewCommand() *cli.Command {
	return &cli.Command{
		Name:  "preview",
		Usage: "render an invoice as HTML to stdout",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "invoice",
				Aliases:  []string{"i"},
				Usage:    "invoice id",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "template",
				Aliases: []string{"t"},
				Value:   transport.DefaultTemplate,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := newApplication(c.Context, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			artifact, err := a.service.Build(c.Context, c.Int64("invoice"), c.String("template"), core.OutputHTML)
			if err != nil {
				return err
			}
			return spool.NewWriterSink(os.Stdout).Write(c.Context, artifact)
		},
	}
}
