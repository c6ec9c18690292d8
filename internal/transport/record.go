// Package transport feeds print requests into the queue from line streams,
// a Redis list or a Kafka topic.
package transport

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wiffzack/printspool/internal/core"
)

const DefaultTemplate = "invoice"

var ErrMalformedRecord = errors.New("malformed job record")

// Record is one print request in the form invoiceId[:template[:output]].
type Record struct {
	InvoiceID int64
	Template  string
	Output    core.OutputKind
}

func (r Record) String() string {
	return fmt.Sprintf("%d:%s:%s", r.InvoiceID, r.Template, r.Output)
}

type Enqueuer interface {
	Enqueue(invoiceID int64, template string, output core.OutputKind) core.Job
}

func ParseRecord(s string) (Record, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return Record{}, fmt.Errorf("%w: %q has too many fields", ErrMalformedRecord, s)
	}

	id, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: invoice id %q", ErrMalformedRecord, parts[0])
	}

	rec := Record{InvoiceID: id, Template: DefaultTemplate, Output: core.OutputEscPos}
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		rec.Template = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		kind, ok := core.ParseOutputKind(strings.TrimSpace(parts[2]))
		if !ok {
			return Record{}, fmt.Errorf("%w: output %q", ErrMalformedRecord, parts[2])
		}
		rec.Output = kind
	}
	return rec, nil
}

// submit parses and enqueues one record. Malformed records are logged and
// skipped.
func submit(raw, source string, enq Enqueuer, logger *zap.Logger) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}

	rec, err := ParseRecord(raw)
	if err != nil {
		logger.Warn("skipping job record", zap.String("source", source), zap.String("record", raw), zap.Error(err))
		return false
	}

	job := enq.Enqueue(rec.InvoiceID, rec.Template, rec.Output)
	logger.Debug("job submitted",
		zap.String("source", source),
		zap.Int64("invoice_id", rec.InvoiceID),
		zap.String("job_id", job.ID),
	)
	return true
}
