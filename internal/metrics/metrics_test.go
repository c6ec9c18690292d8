package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiffzack/printspool/internal/core"
)

type fixedStats core.QueueStats

func (s fixedStats) Stats() core.QueueStats { return core.QueueStats(s) }

func ev(typ core.JobEventType, err error) core.JobEvent {
	return core.JobEvent{
		Type:     typ,
		Job:      core.Job{ID: "j", InvoiceID: 1, Output: core.OutputEscPos},
		Err:      err,
		Duration: 20 * time.Millisecond,
	}
}

func TestCollector_CountsEvents(t *testing.T) {
	c := New(nil)

	c.OnJobEvent(ev(core.EventJobStarted, nil))
	c.OnJobEvent(ev(core.EventJobRetrying, core.ErrIO))
	c.OnJobEvent(ev(core.EventJobStarted, nil))
	c.OnJobEvent(ev(core.EventJobFailed, core.ErrEmptyInvoiceData))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobEvents.WithLabelValues("job_started", "escpos")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobEvents.WithLabelValues("job_retrying", "escpos")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsDropped.WithLabelValues("data_not_found")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.jobsDropped.WithLabelValues("io")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.jobDuration))
}

func TestCollector_QueueGauges(t *testing.T) {
	c := New(fixedStats{Queued: 4, InFlight: 1, Delayed: 2})

	n, err := testutil.GatherAndCount(c.Registry(), "printspool_queue_depth", "printspool_queue_in_flight", "printspool_queue_delayed")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "printspool_queue_depth 4")
	assert.Contains(t, string(body), "printspool_queue_delayed 2")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestCollector_WiredToQueue(t *testing.T) {
	q := core.NewQueue(nil, nil, nil)
	c := New(q)
	q.AddHook(c)

	q.Enqueue(1, "invoice", core.OutputHTML)
	q.Enqueue(2, "invoice", core.OutputHTML)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobEvents.WithLabelValues("job_queued", "html")))
	n, err := testutil.GatherAndCount(c.Registry(), "printspool_queue_depth")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
