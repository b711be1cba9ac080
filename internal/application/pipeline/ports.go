package pipeline

import (
	"context"
	"time"

	"github.com/swiftlogix/order-pipeline/internal/domain"
)

// OrderRepo is the order store as the pipeline worker and terminator see it.
type OrderRepo interface {
	UpdateStatus(ctx context.Context, id string, status domain.Status, lastError string, incRetry bool) error
	SetRoute(ctx context.Context, id string, route map[string]any) error
	GetStatus(ctx context.Context, id string) (domain.Status, error)
	MarkEventProcessed(ctx context.Context, id, eventID string) error
	IsEventProcessed(ctx context.Context, id, eventID string) (bool, error)
	AssignDriverIfAbsent(ctx context.Context, id, driverID string) (string, error)
}

// EventLog is the append-only audit trail: best-effort, never returns an error.
type EventLog interface {
	Append(ctx context.Context, orderID, eventType string, details map[string]any)
}

// DriverPicker is the terminator's read-only lookup of an available driver candidate.
type DriverPicker interface {
	PickDriver(ctx context.Context) (string, error)
}

// IdempotencyCache is the optional Redis-backed bounded recent-event-id set
// that strengthens the order store's single-horizon last_event_id gate. A
// nil cache degrades gracefully to the Postgres-only gate.
type IdempotencyCache interface {
	// SeenRecently returns true if eventID for orderID was already
	// observed, marking it as seen for ttl if not.
	SeenRecently(ctx context.Context, orderID, eventID string, ttl time.Duration) (bool, error)
}

// Stage identifies one of the three backend calls the worker sequences.
type Stage string

const (
	StageCMS Stage = "CMS"
	StageROS Stage = "ROS"
	StageWMS Stage = "WMS"
)

// StageResult is what an adapter returns on success. Route is only
// populated by the ROS stage and is persisted verbatim under payload.route.
type StageResult struct {
	Route map[string]any
}

// Adapter is the thin contract the worker injects for each backend:
// execute one call for an order and report success or failure, decoupled
// from how CMS/ROS/WMS are actually reached.
type Adapter interface {
	Execute(ctx context.Context, orderID string) (StageResult, error)
}

// Notifier is the shared best-effort push client used for both status
// transitions and driver assignment notifications.
type Notifier interface {
	NotifyStatus(ctx context.Context, orderID string, status domain.Status)
	NotifyDriver(ctx context.Context, driverID, orderID string, payload map[string]any)
}

// MetricsSink records pipeline stage/terminal outcomes for Prometheus
// export. A nil sink is valid and simply does nothing.
type MetricsSink interface {
	ObserveStageDuration(stage Stage, d time.Duration)
	IncTransition(from, to domain.Status)
	IncDLQ(reason string)
}

// Clock abstracts time so tests can avoid real sleeps when DemoDelays is on.
type Clock interface {
	Sleep(d time.Duration)
	Now() time.Time
}

type sysClock struct{}

func (sysClock) Sleep(d time.Duration) { time.Sleep(d) }
func (sysClock) Now() time.Time        { return time.Now() }

// SysClock is the production Clock implementation.
var SysClock Clock = sysClock{}
