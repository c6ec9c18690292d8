package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wiffzack/printspool/internal/core"
	"github.com/wiffzack/printspool/internal/db"
	"github.com/wiffzack/printspool/internal/transport"
)

// Queue is the part of *core.Queue the API drives.
type Queue interface {
	Enqueue(invoiceID int64, template string, output core.OutputKind) core.Job
	Stats() core.QueueStats
}

// JobStore is the part of *db.JobOperations the API reads.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*db.JobRecord, error)
	ListJobs(ctx context.Context, filter db.JobFilter) ([]*db.JobRecord, error)
	ListCounters(ctx context.Context, since time.Time) ([]*db.PrintCounter, error)
}

type CreateJobRequest struct {
	InvoiceID int64  `json:"invoice_id" binding:"required,gt=0"`
	Template  string `json:"template"`
	Output    string `json:"output"`
}

type ListJobsQuery struct {
	Status    string `form:"status"`
	InvoiceID int64  `form:"invoice_id"`
	Limit     int    `form:"limit" binding:"omitempty,min=0,max=500"`
	Offset    int    `form:"offset" binding:"omitempty,min=0"`
}

type JobResponse struct {
	ID         string    `json:"id"`
	InvoiceID  int64     `json:"invoice_id"`
	Template   string    `json:"template"`
	Output     string    `json:"output"`
	Status     string    `json:"status"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type JobHandler struct {
	queue Queue
	store JobStore
}

func NewJobHandler(queue Queue, store JobStore) *JobHandler {
	return &JobHandler{queue: queue, store: store}
}

// CreateJob accepts either a JSON body or a plain-text record of the form
// invoiceId[:template[:output]].
func (h *JobHandler) CreateJob(c *gin.Context) {
	var rec transport.Record

	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req CreateJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec = transport.Record{InvoiceID: req.InvoiceID, Template: req.Template, Output: core.OutputEscPos}
		if rec.Template == "" {
			rec.Template = transport.DefaultTemplate
		}
		if req.Output != "" {
			kind, ok := core.ParseOutputKind(req.Output)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown output: " + req.Output})
				return
			}
			rec.Output = kind
		}
	} else {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1024))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		rec, err = transport.ParseRecord(string(body))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	job := h.queue.Enqueue(rec.InvoiceID, rec.Template, rec.Output)
	c.JSON(http.StatusAccepted, jobToResponse(job))
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if query.Limit <= 0 {
		query.Limit = 50
	}

	jobs, err := h.store.ListJobs(c.Request.Context(), db.JobFilter{
		Status:    query.Status,
		InvoiceID: query.InvoiceID,
		Limit:     query.Limit,
		Offset:    query.Offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	if jobs == nil {
		jobs = []*db.JobRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   jobs,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.store.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) GetQueue(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue.Stats())
}

// GetCounters reports completed jobs per day and output for the last
// `days` days, 30 by default.
func (h *JobHandler) GetCounters(c *gin.Context) {
	var query struct {
		Days int `form:"days" binding:"omitempty,min=1,max=366"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if query.Days == 0 {
		query.Days = 30
	}

	since := time.Now().UTC().AddDate(0, 0, -query.Days+1)
	counters, err := h.store.ListCounters(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list counters"})
		return
	}
	if counters == nil {
		counters = []*db.PrintCounter{}
	}
	c.JSON(http.StatusOK, gin.H{"counters": counters})
}

func jobToResponse(job core.Job) JobResponse {
	return JobResponse{
		ID:         job.ID,
		InvoiceID:  job.InvoiceID,
		Template:   job.Template,
		Output:     string(job.Output),
		Status:     string(core.JobStatusPending),
		EnqueuedAt: job.EnqueuedAt,
	}
}

func (h *JobHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/jobs", h.CreateJob)
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/:id", h.GetJob)
	r.GET("/queue", h.GetQueue)
	r.GET("/counters", h.GetCounters)
}
