package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// PrintService runs one job end to end: fetch rows, load the template,
// expand, render and hand the artifact to the sink for its output kind.
type PrintService struct {
	invoices  InvoiceSource
	templates TemplateStore
	renderer  Renderer
	sinks     map[OutputKind]Sink
	logger    *zap.Logger
}

func NewPrintService(invoices InvoiceSource, templates TemplateStore, renderer Renderer, logger *zap.Logger) *PrintService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrintService{
		invoices:  invoices,
		templates: templates,
		renderer:  renderer,
		sinks:     make(map[OutputKind]Sink),
		logger:    logger,
	}
}

// WithSink routes artifacts of the given kind to sink.
func (s *PrintService) WithSink(kind OutputKind, sink Sink) *PrintService {
	s.sinks[kind] = sink
	return s
}

func (s *PrintService) Process(ctx context.Context, job *Job) error {
	artifact, err := s.Build(ctx, job.InvoiceID, job.Template, job.Output)
	if err != nil {
		return err
	}

	sink, ok := s.sinks[job.Output]
	if !ok {
		return fmt.Errorf("no sink configured for %s output: %w", job.Output, ErrIO)
	}
	if err := sink.Write(ctx, artifact); err != nil {
		return err
	}

	s.logger.Debug("artifact written",
		zap.Int64("invoice_id", job.InvoiceID),
		zap.String("job_id", job.ID),
		zap.Int("bytes", len(artifact.Data)),
	)
	return nil
}

// Build produces the artifact for an invoice without writing it anywhere.
func (s *PrintService) Build(ctx context.Context, invoiceID int64, template string, output OutputKind) (*Artifact, error) {
	rows, err := s.invoices.FetchInvoiceRows(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("fetch invoice %d: %w", invoiceID, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("invoice %d: %w", invoiceID, ErrEmptyInvoiceData)
	}

	tmpl, err := s.templates.LoadTemplate(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("load template %q: %w", template, err)
	}

	doc, err := Expand(rows, tmpl, output)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch output {
	case OutputEscPos:
		data, err = s.renderer.Render(doc)
	case OutputHTML:
		data, err = s.renderer.Preview(doc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOutput, output)
	}
	if err != nil {
		return nil, fmt.Errorf("render invoice %d: %w", invoiceID, err)
	}

	return &Artifact{
		InvoiceID: invoiceID,
		Template:  template,
		Output:    output,
		StaffID:   rows[0].StaffID,
		Data:      data,
	}, nil
}
