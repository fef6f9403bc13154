package ingest

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/i474232898/energy-dashboard/internal/common"
	"github.com/i474232898/energy-dashboard/internal/energy"
	"github.com/i474232898/energy-dashboard/internal/metrics"
)

// DefaultBatchSize is the number of rows sent per upsert.
const DefaultBatchSize = 500

// UploadReport counts the outcome of one upload.
type UploadReport struct {
	Batches  int `json:"batches"`
	Written  int `json:"written"`
	UpToDate int `json:"upToDate"`
	Failed   int `json:"failed"`
	Rows     int `json:"rows"`
}

// Uploader writes normalized rows to the store in fixed-size batches.
type Uploader struct {
	store     energy.Store
	batchSize int
}

func NewUploader(store energy.Store, batchSize int) *Uploader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Uploader{store: store, batchSize: batchSize}
}

// IsConflict reports whether err is a duplicate-key failure.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, energy.ErrConflict) {
		return true
	}
	return common.HasAny(strings.ToLower(err.Error()), "23505", "duplicate")
}

// Upload upserts rows batch by batch. A failed batch is logged and skipped;
// earlier batches stay written. Conflicts count the batch as already up to date.
func (u *Uploader) Upload(ctx context.Context, table energy.Table, source string, rows []energy.Row) UploadReport {
	var rep UploadReport
	logger := log.WithFields(log.Fields{"source": source, "table": table})

	for i := 0; i < len(rows); i += u.batchSize {
		end := i + u.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[i:end]
		n := i/u.batchSize + 1
		rep.Batches++

		err := energy.ErrNoStore
		if u.store != nil {
			err = u.store.Upsert(ctx, table, batch)
		}

		switch {
		case err == nil:
			rep.Written++
			rep.Rows += len(batch)
			metrics.IngestBatches.WithLabelValues(source, "written").Inc()
			metrics.IngestRows.WithLabelValues(source, "written").Add(float64(len(batch)))
			logger.Debugf("batch %d uploaded (%d rows)", n, len(batch))
		case IsConflict(err):
			rep.UpToDate++
			metrics.IngestBatches.WithLabelValues(source, "up_to_date").Inc()
			logger.Infof("batch %d: data already up to date", n)
		default:
			rep.Failed++
			metrics.IngestBatches.WithLabelValues(source, "failed").Inc()
			logger.WithError(err).Errorf("batch %d upload failed", n)
		}
	}
	return rep
}
