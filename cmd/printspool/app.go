package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wiffzack/printspool/internal/config"
	"github.com/wiffzack/printspool/internal/core"
	"github.com/wiffzack/printspool/internal/db"
	"github.com/wiffzack/printspool/internal/escpos"
	"github.com/wiffzack/printspool/internal/invoice"
	"github.com/wiffzack/printspool/internal/metrics"
	"github.com/wiffzack/printspool/internal/spool"
	"github.com/wiffzack/printspool/internal/webhook"
)

const stopTimeout = 30 * time.Second

// application owns every long-lived component. Fields beyond the print
// service are nil until startQueue runs.
type application struct {
	cfg    *config.Config
	logger *zap.Logger

	invoices  *invoice.SQLSource
	templates *invoice.FileTemplateStore
	sink      core.Sink
	service   *core.PrintService

	database *sql.DB
	journal  *db.Journal
	webhooks *webhook.Sender
	metrics  *metrics.Collector
	queue    *core.Queue
}

// newApplication wires the document pipeline: invoice source, templates,
// renderer and spool sink.
func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	renderer, err := escpos.New(cfg.Render)
	if err != nil {
		return nil, err
	}

	invoices, err := invoice.Open(cfg.Invoices)
	if err != nil {
		return nil, err
	}

	sink, err := spool.New(ctx, cfg.Spool, logger)
	if err != nil {
		invoices.Close()
		return nil, err
	}

	// A printer cannot take HTML, so previews land in the file spool.
	var htmlSink core.Sink = sink
	if cfg.Spool.Backend == "device" {
		htmlSink = spool.NewFileSink(cfg.Spool.Root)
	}

	templates := invoice.NewFileTemplateStore(cfg.Templates.Dir)
	service := core.NewPrintService(invoices, templates, renderer, logger).
		WithSink(core.OutputEscPos, sink).
		WithSink(core.OutputHTML, htmlSink)

	return &application{
		cfg:       cfg,
		logger:    logger,
		invoices:  invoices,
		templates: templates,
		sink:      sink,
		service:   service,
	}, nil
}

// startQueue opens the journal and starts the queue with its hooks. When
// restore is set, jobs left unfinished by the previous run are restored
// before the worker starts.
func (a *application) startQueue(ctx context.Context, restore bool, hooks ...core.JobHook) error {
	database, err := db.Open(a.cfg.Database.Path)
	if err != nil {
		return err
	}
	a.database = database
	a.journal = db.NewJournal(database, a.cfg.Database.RetentionDays, a.logger)

	a.webhooks = webhook.NewSender(a.cfg.Webhook, a.logger)
	a.webhooks.Start()

	a.queue = core.NewQueue(a.service, &a.cfg.Queue, a.logger)
	if a.cfg.Metrics.Enabled {
		a.metrics = metrics.New(a.queue)
		a.queue.AddHook(a.metrics)
	}
	a.queue.AddHook(a.journal)
	a.queue.AddHook(a.webhooks)
	for _, h := range hooks {
		a.queue.AddHook(h)
	}

	if restore {
		n, err := a.journal.Recover(ctx, a.queue.Restore)
		if err != nil {
			return fmt.Errorf("recover journal: %w", err)
		}
		if n > 0 {
			a.logger.Info("restored unfinished jobs", zap.Int("count", n))
		}
	}

	a.queue.Start()
	return nil
}

// Close stops the queue first so the journal and webhooks see its last
// events, then releases everything else.
func (a *application) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.logger.Warn("queue did not stop in time", zap.Error(err))
		}
	}
	if a.webhooks != nil {
		a.webhooks.Stop()
	}
	if a.journal != nil {
		a.journal.Close()
	}
	if a.database != nil {
		if err := a.database.Close(); err != nil {
			a.logger.Warn("failed to close journal database", zap.Error(err))
		}
	}
	if err := a.invoices.Close(); err != nil {
		a.logger.Warn("failed to close invoice source", zap.Error(err))
	}
}
