package db

import (
	"time"
)

type JobRecord struct {
	ID           string     `json:"id"`
	InvoiceID    int64      `json:"invoice_id"`
	Template     string     `json:"template"`
	Output       string     `json:"output"`
	Status       string     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type PrintCounter struct {
	Date   string `json:"date"`
	Output string `json:"output"`
	Count  int64  `json:"count"`
}

type JobFilter struct {
	Status    string
	InvoiceID int64
	Limit     int
	Offset    int
}
