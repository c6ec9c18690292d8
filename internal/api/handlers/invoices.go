package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wiffzack/printspool/internal/core"
	"github.com/wiffzack/printspool/internal/transport"
)

const htmlContentType = "text/html; charset=iso-8859-1"

// Builder renders an invoice synchronously. *core.PrintService satisfies it.
type Builder interface {
	Build(ctx context.Context, invoiceID int64, template string, output core.OutputKind) (*core.Artifact, error)
}

// TemplateLister reports the template names a job may reference.
type TemplateLister interface {
	Names() []string
}

// InvoiceHandler serves the per-invoice shortcuts used by point-of-sale
// terminals: queue a receipt, or render its HTML preview inline.
type InvoiceHandler struct {
	queue     Queue
	builder   Builder
	templates TemplateLister
	logger    *zap.Logger
}

// NewInvoiceHandler accepts a nil templates lister, in which case the
// template listing is empty.
func NewInvoiceHandler(queue Queue, builder Builder, templates TemplateLister, logger *zap.Logger) *InvoiceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceHandler{queue: queue, builder: builder, templates: templates, logger: logger}
}

func (h *InvoiceHandler) Print(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}

	job := h.queue.Enqueue(id, templateParam(c), core.OutputEscPos)
	c.JSON(http.StatusAccepted, jobToResponse(job))
}

func (h *InvoiceHandler) Preview(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}

	template := templateParam(c)
	artifact, err := h.builder.Build(c.Request.Context(), id, template, core.OutputHTML)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrDataNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
		case errors.Is(err, core.ErrTemplateNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
		default:
			h.logger.Error("preview failed",
				zap.Int64("invoice_id", id),
				zap.String("template", template),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render invoice"})
		}
		return
	}

	c.Data(http.StatusOK, htmlContentType, artifact.Data)
}

func (h *InvoiceHandler) ListTemplates(c *gin.Context) {
	names := []string{}
	if h.templates != nil {
		names = append(names, h.templates.Names()...)
	}
	sort.Strings(names)
	c.JSON(http.StatusOK, gin.H{"templates": names})
}

func parseInvoiceID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
		return 0, false
	}
	return id, true
}

func templateParam(c *gin.Context) string {
	return c.DefaultQuery("template", transport.DefaultTemplate)
}

func (h *InvoiceHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/invoice/print/:id", h.Print)
	r.GET("/invoice/html/:id", h.Preview)
	r.GET("/templates", h.ListTemplates)
}
