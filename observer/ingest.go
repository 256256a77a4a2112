package observer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vheim/sage/ingest"
)

// RecordIngest records the metrics for one completed ingestion run.
// Call it after Pipeline.Run; pass the error (or nil) so failed runs count
// with their failure status.
func (inst *Instruments) RecordIngest(ctx context.Context, dir string, res ingest.Result, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}

	inst.IngestRuns.Add(ctx, 1, metric.WithAttributes(
		AttrIngestDir.String(dir),
		attribute.String("status", status),
	))
	if err == nil {
		inst.IngestChunks.Add(ctx, int64(res.Written), metric.WithAttributes(
			AttrIngestDir.String(dir),
		))
	}
	inst.IngestDuration.Record(ctx, float64(res.Took.Milliseconds()), metric.WithAttributes(
		AttrIngestDir.String(dir),
		attribute.String("status", status),
	))
}
