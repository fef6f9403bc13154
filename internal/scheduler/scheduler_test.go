package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/energy-dashboard/internal/ingest"
)

type blockingRunner struct {
	name    string
	release chan struct{}
	runs    atomic.Int32
	panics  bool
}

func (r *blockingRunner) Name() string { return r.name }

func (r *blockingRunner) Run(context.Context) ingest.Report {
	r.runs.Add(1)
	if r.release != nil {
		<-r.release
	}
	if r.panics {
		panic("upstream returned garbage")
	}
	return ingest.Report{Source: r.name, State: ingest.Done.String()}
}

type countingCache struct{ n atomic.Int32 }

func (c *countingCache) Invalidate() { c.n.Add(1) }

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newScheduler(runners []ingest.Runner, caches ...Invalidator) (*Scheduler, *clock) {
	clk := &clock{now: time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)}
	s := New(runners, caches, 24*time.Hour)
	s.Now = clk.Now
	return s, clk
}

// pollUntilCompleted polls until a cycle is reconciled and returns that status.
func pollUntilCompleted(t *testing.T, s *Scheduler, sess *Session) Status {
	t.Helper()
	var st Status
	require.Eventually(t, func() bool {
		st = s.Poll(sess)
		return st.Completed
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func TestPollDoesNotBlockOnRunningCycle(t *testing.T) {
	r := &blockingRunner{name: "demand", release: make(chan struct{})}
	s, _ := newScheduler([]ingest.Runner{r})
	sess := &Session{}

	done := make(chan Status, 1)
	go func() { done <- s.Poll(sess) }()

	select {
	case st := <-done:
		assert.True(t, st.Updating)
		assert.False(t, st.Completed)
		assert.NotEmpty(t, st.RunID)
	case <-time.After(time.Second):
		t.Fatal("poll blocked on the pipelines")
	}

	st := s.Poll(sess)
	assert.True(t, st.Updating)
	close(r.release)
}

func TestPollInvalidatesExactlyOnce(t *testing.T) {
	r := &blockingRunner{name: "carbon", release: make(chan struct{})}
	cache := &countingCache{}
	s, _ := newScheduler([]ingest.Runner{r}, cache)
	sess := &Session{}

	first := s.Poll(sess)
	require.True(t, first.Updating)
	assert.Zero(t, cache.n.Load(), "caches stay valid while the cycle runs")

	close(r.release)
	st := pollUntilCompleted(t, s, sess)
	assert.True(t, st.Rerender)
	assert.False(t, st.Updating)
	assert.Equal(t, first.RunID, st.RunID)
	require.Len(t, st.Reports, 1)
	assert.Equal(t, "carbon", st.Reports[0].Source)

	for i := 0; i < 3; i++ {
		later := s.Poll(sess)
		assert.False(t, later.Completed)
		assert.False(t, later.Updating)
	}
	assert.Equal(t, int32(1), cache.n.Load())
	assert.Equal(t, int32(1), r.runs.Load())
	assert.True(t, sess.Applied)
}

func TestPollRelaunchesWhenStale(t *testing.T) {
	r := &blockingRunner{name: "weather"}
	s, clk := newScheduler([]ingest.Runner{r})
	sess := &Session{}

	s.Poll(sess)
	pollUntilCompleted(t, s, sess)
	launchedAt := sess.LastUpdate

	clk.now = clk.now.Add(23 * time.Hour)
	assert.False(t, s.Poll(sess).Updating)
	assert.Equal(t, launchedAt, sess.LastUpdate)

	clk.now = clk.now.Add(time.Hour)
	st := s.Poll(sess)
	assert.True(t, st.Updating)
	assert.Equal(t, clk.now, sess.LastUpdate)
	assert.False(t, sess.Applied)

	pollUntilCompleted(t, s, sess)
	assert.Equal(t, int32(2), r.runs.Load())
}

func TestPanickingPipelineBecomesFailedReport(t *testing.T) {
	ok := &blockingRunner{name: "demand"}
	bad := &blockingRunner{name: "carbon", panics: true}
	s, _ := newScheduler([]ingest.Runner{ok, bad})

	reports := s.RunAll(context.Background(), "test")
	require.Len(t, reports, 2)
	assert.False(t, reports[0].Failed())
	assert.True(t, reports[1].Failed())
	assert.Contains(t, reports[1].Error, "upstream returned garbage")
	assert.Equal(t, "carbon", reports[1].Source)
}

func TestCronRunsJobs(t *testing.T) {
	var polls, purges atomic.Int32
	c := NewCron(time.UTC, 20*time.Millisecond, func() { polls.Add(1) }, 20*time.Millisecond, func() { purges.Add(1) })
	require.NoError(t, c.Start())
	defer c.Stop()

	assert.Eventually(t, func() bool {
		return polls.Load() > 0 && purges.Load() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCronWithoutJobs(t *testing.T) {
	assert.Error(t, NewCron(nil, 0, nil, time.Minute, nil).Start())
}
