package port

import "time"

// Telemetry receives pipeline events. internal/metrics exports them to Prometheus.
type Telemetry interface {
	ChunksIndexed(docID string, n int)
	RetrievalCompleted(results int, elapsed time.Duration)
	CollaboratorFailed(collaborator string)
}

// NopTelemetry discards every event.
type NopTelemetry struct{}

func (NopTelemetry) ChunksIndexed(string, int) {}

func (NopTelemetry) RetrievalCompleted(int, time.Duration) {}

func (NopTelemetry) CollaboratorFailed(string) {}
