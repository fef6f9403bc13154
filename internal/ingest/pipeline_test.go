package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/energy-dashboard/internal/energy"
	"github.com/i474232898/energy-dashboard/internal/store"
)

// scriptedStore fails the upsert calls whose 1-based index maps to an error.
type scriptedStore struct {
	*store.MemoryStore
	calls int
	fail  map[int]error
}

func (s *scriptedStore) Upsert(ctx context.Context, table energy.Table, rows []energy.Row) error {
	s.calls++
	if err, ok := s.fail[s.calls]; ok {
		return err
	}
	return s.MemoryStore.Upsert(ctx, table, rows)
}

func weatherRows(n int) []energy.Row {
	rows := make([]energy.Row, n)
	for i := range rows {
		rows[i] = energy.Row{
			energy.ColDatetime:   fmt.Sprintf("2024-03-01T%02d:00:00", i%24),
			energy.ColRegionID:   i/24 + 1,
			energy.ColRegionName: energy.Regions[(i/24)%len(energy.Regions)].Name,
			"temperature":        float64(i),
		}
	}
	return rows
}

func TestUploadBatches(t *testing.T) {
	s := store.NewMemoryStore()
	rep := NewUploader(s, 100).Upload(context.Background(), energy.TableWeather, "weather", weatherRows(250))

	assert.Equal(t, UploadReport{Batches: 3, Written: 3, Rows: 250}, rep)
	assert.Equal(t, 250, s.Len(energy.TableWeather))
}

func TestUploadToleratesDuplicatesAndPartialFailure(t *testing.T) {
	s := &scriptedStore{
		MemoryStore: store.NewMemoryStore(),
		fail: map[int]error{
			1: fmt.Errorf("upsert: %w", energy.ErrConflict),
			2: errors.New("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"),
			3: errors.New("connection reset by peer"),
		},
	}
	rep := NewUploader(s, 10).Upload(context.Background(), energy.TableWeather, "weather", weatherRows(45))

	assert.Equal(t, 5, rep.Batches)
	assert.Equal(t, 2, rep.UpToDate)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 2, rep.Written)
	assert.Equal(t, 15, rep.Rows)
	assert.Equal(t, 15, s.Len(energy.TableWeather), "later batches are written after a failure")
}

func TestUploadWithoutStore(t *testing.T) {
	rep := NewUploader(nil, 0).Upload(context.Background(), energy.TableWeather, "weather", weatherRows(3))
	assert.Equal(t, UploadReport{Batches: 1, Failed: 1}, rep)
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(energy.ErrConflict))
	assert.True(t, IsConflict(errors.New("Duplicate entry")))
	assert.False(t, IsConflict(errors.New("timeout")))
	assert.False(t, IsConflict(nil))
}

// fakeSource emits a fixed payload through a configurable gate.
type fakeSource struct {
	needed   bool
	gateErr  error
	fetchErr error
	payload  []energy.Row
	fetches  int
}

func (f *fakeSource) Name() string        { return "fake" }
func (f *fakeSource) Table() energy.Table { return energy.TableWeather }

func (f *fakeSource) Gate(context.Context) (Window, bool, error) {
	return Window{}, f.needed, f.gateErr
}

func (f *fakeSource) Fetch(context.Context, Window) ([]energy.Row, error) {
	f.fetches++
	return f.payload, f.fetchErr
}

func (f *fakeSource) Normalize(p []energy.Row) ([]energy.Row, int, error) {
	var out []energy.Row
	dropped := 0
	for _, r := range p {
		if r.Datetime() == "" {
			dropped++
			continue
		}
		out = append(out, r)
	}
	return out, dropped, nil
}

func TestPipelineRunTwiceIsIdempotent(t *testing.T) {
	s := store.NewMemoryStore()
	src := &fakeSource{needed: true, payload: weatherRows(30)}
	p := NewPipeline[[]energy.Row](src, NewUploader(s, 7))

	assert.Equal(t, Idle, p.State())

	first := p.Run(context.Background())
	require.False(t, first.Failed())
	assert.Equal(t, Done, p.State())
	assert.Equal(t, 30, first.Rows)
	assert.Equal(t, 30, s.Len(energy.TableWeather))

	second := p.Run(context.Background())
	require.False(t, second.Failed())
	assert.Equal(t, 30, s.Len(energy.TableWeather))
	assert.Equal(t, "done", second.State)
}

func TestPipelineSkipsWhenFresh(t *testing.T) {
	src := &fakeSource{needed: false}
	p := NewPipeline[[]energy.Row](src, NewUploader(store.NewMemoryStore(), 0))

	rep := p.Run(context.Background())
	assert.True(t, rep.Skipped)
	assert.Equal(t, Skip, p.State())
	assert.Zero(t, src.fetches)
}

func TestPipelineFailuresEndRun(t *testing.T) {
	tests := []struct {
		name string
		src  *fakeSource
	}{
		{"gate", &fakeSource{gateErr: errors.New("store down")}},
		{"fetch", &fakeSource{needed: true, fetchErr: errors.New("502 bad gateway")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			p := NewPipeline[[]energy.Row](tt.src, NewUploader(s, 0))

			rep := p.Run(context.Background())
			assert.True(t, rep.Failed())
			assert.Equal(t, Done, p.State())
			assert.Zero(t, s.Len(energy.TableWeather))
		})
	}
}

func TestPipelineCountsDroppedRows(t *testing.T) {
	payload := append(weatherRows(2), energy.Row{"temperature": 1.0})
	s := store.NewMemoryStore()
	p := NewPipeline[[]energy.Row](&fakeSource{needed: true, payload: payload}, NewUploader(s, 0))

	rep := p.Run(context.Background())
	assert.Equal(t, 1, rep.Dropped)
	assert.Equal(t, 2, rep.Rows)
	assert.Equal(t, 2, s.Len(energy.TableWeather))
}
