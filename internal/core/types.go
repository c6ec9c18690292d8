package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type OutputKind string

const (
	OutputEscPos OutputKind = "escpos"
	OutputHTML   OutputKind = "html"
)

func ParseOutputKind(s string) (OutputKind, bool) {
	switch OutputKind(s) {
	case OutputEscPos:
		return OutputEscPos, true
	case OutputHTML:
		return OutputHTML, true
	}
	return "", false
}

// InvoiceRow is one line item of an invoice as returned by the invoice
// data source. Rows of the same invoice share number, date and total.
type InvoiceRow struct {
	InvoiceNumber  int64
	Date           time.Time
	Quantity       int
	Amount         decimal.Decimal
	Description    string
	InvoiceTotal   decimal.Decimal
	TaxCode        string
	TaxAmount      decimal.Decimal
	TaxDescription string
	TableCode      string
	StaffID        string
	RegisterID     string
	CashNumber     string
	QRPayload      string

	FirstName *string
	LastName  *string
	Street    *string
	ZipCode   *string
	City      *string
	Company   *string
}

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusFailed     JobStatus = "failed"
)

type Job struct {
	ID         string
	InvoiceID  int64
	Template   string
	Output     OutputKind
	Tries      int
	EnqueuedAt time.Time

	seq uint64
}

type JobEventType string

const (
	EventJobQueued    JobEventType = "job_queued"
	EventJobStarted   JobEventType = "job_started"
	EventJobCompleted JobEventType = "job_completed"
	EventJobRetrying  JobEventType = "job_retrying"
	EventJobFailed    JobEventType = "job_failed"
)

type JobEvent struct {
	Type      JobEventType
	Job       Job
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

// Artifact is the result of one processed job, ready for a sink.
type Artifact struct {
	InvoiceID int64
	Template  string
	Output    OutputKind
	StaffID   string
	Data      []byte
}

type InvoiceSource interface {
	FetchInvoiceRows(ctx context.Context, invoiceID int64) ([]InvoiceRow, error)
}

type TemplateStore interface {
	LoadTemplate(ctx context.Context, name string) (string, error)
}

type Renderer interface {
	Render(doc string) ([]byte, error)
	Preview(doc string) ([]byte, error)
}

type Sink interface {
	Write(ctx context.Context, a *Artifact) error
}

type Processor interface {
	Process(ctx context.Context, job *Job) error
}

type JobHook interface {
	OnJobEvent(ev JobEvent)
}

type JobHookFunc func(ev JobEvent)

func (f JobHookFunc) OnJobEvent(ev JobEvent) { f(ev) }
