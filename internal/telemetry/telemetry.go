// Package telemetry exposes OpenTelemetry counters for core operations.
//
// Metrics are recorded against the global meter provider. By default that
// is a no-op; `Init` installs a periodic stdout exporter when EDDA_OTEL is
// set, so instrumentation stays off the hot path otherwise.
package telemetry

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/fagemx/edda"

var (
	meter           = otel.Meter(meterName)
	eventsAppended  metric.Int64Counter
	recordsIngested metric.Int64Counter
	blobsWritten    metric.Int64Counter
)

func init() {
	makeInstruments()
}

func makeInstruments() {
	eventsAppended, _ = meter.Int64Counter("edda.ledger.events_appended",
		metric.WithDescription("Events appended to the ledger"))
	recordsIngested, _ = meter.Int64Counter("edda.transcript.records_ingested",
		metric.WithDescription("Transcript records kept by delta ingest"))
	blobsWritten, _ = meter.Int64Counter("edda.blob.writes",
		metric.WithDescription("Blobs written to the content-addressed store"))
}

// Init installs a stdout metric exporter when EDDA_OTEL is set. Returns a
// shutdown function flushing pending metrics; a no-op when disabled.
func Init(ctx context.Context) (func(context.Context) error, error) {
	if os.Getenv("EDDA_OTEL") == "" {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(10*time.Second))),
	)
	otel.SetMeterProvider(provider)
	meter = otel.Meter(meterName)
	makeInstruments()
	return provider.Shutdown, nil
}

// EventAppended counts one ledger append.
func EventAppended(ctx context.Context, backend, eventType string) {
	eventsAppended.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("event_type", eventType),
		))
}

// RecordsIngested counts kept transcript records for a session.
func RecordsIngested(ctx context.Context, sessionID string, kept int64) {
	recordsIngested.Add(ctx, kept,
		metric.WithAttributes(attribute.String("session_id", sessionID)))
}

// BlobWritten counts one blob store write.
func BlobWritten(ctx context.Context, size int64) {
	blobsWritten.Add(ctx, 1,
		metric.WithAttributes(attribute.Int64("size_bytes", size)))
}
