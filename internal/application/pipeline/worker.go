package pipeline

import (
	"context"
	"fmt"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/swiftlogix/order-pipeline/internal/domain"
)

// Outcome tells the transport layer (the RabbitMQ consumer) what to do
// after Worker.Process returns. The original delivery is always acked; a
// non-nil Republish means a new envelope must be published either to the
// retry queue or straight to the DLQ. Republishing instead of nacking
// keeps the per-attempt delay under our control rather than the broker's.
type Outcome struct {
	Republish *RepublishInstruction
}

// RepublishInstruction carries everything the broker layer needs to emit
// the next envelope.
type RepublishInstruction struct {
	ToDLQ      bool
	Envelope   domain.Envelope
	NextRetry  int
	Expiration time.Duration // zero when ToDLQ
	DLQReason  string        // only set when ToDLQ
}

// Worker drives one order delivery through the pipeline: state machine,
// idempotency/skip gates, CMS->ROS->WMS sequencing, and failure
// classification, decoupled from the broker transport that delivers
// envelopes to it.
type Worker struct {
	orders         OrderRepo
	events         EventLog
	cache          IdempotencyCache
	adapters       map[Stage]Adapter
	notifier       Notifier
	terminator     *Terminator
	metrics        MetricsSink
	clock          Clock
	demoDelays     bool
	maxRetries     int
	baseRetryTTL   time.Duration
	maxRetryTTL    time.Duration
	idempotencyTTL time.Duration
}

type WorkerConfig struct {
	Orders         OrderRepo
	Events         EventLog
	Cache          IdempotencyCache // may be nil
	Adapters       map[Stage]Adapter
	Notifier       Notifier
	Terminator     *Terminator
	Metrics        MetricsSink // may be nil
	Clock          Clock       // defaults to SysClock when nil
	DemoDelays     bool
	MaxRetries     int
	BaseRetryTTL   time.Duration
	MaxRetryTTL    time.Duration
	IdempotencyTTL time.Duration // defaults to 24h when zero
}

func NewWorker(cfg WorkerConfig) *Worker {
	clock := cfg.Clock
	if clock == nil {
		clock = SysClock
	}
	idempotencyTTL := cfg.IdempotencyTTL
	if idempotencyTTL == 0 {
		idempotencyTTL = 24 * time.Hour
	}
	return &Worker{
		orders:         cfg.Orders,
		events:         cfg.Events,
		cache:          cfg.Cache,
		adapters:       cfg.Adapters,
		notifier:       cfg.Notifier,
		terminator:     cfg.Terminator,
		metrics:        cfg.Metrics,
		clock:          clock,
		demoDelays:     cfg.DemoDelays,
		maxRetries:     cfg.MaxRetries,
		baseRetryTTL:   cfg.BaseRetryTTL,
		maxRetryTTL:    cfg.MaxRetryTTL,
		idempotencyTTL: idempotencyTTL,
	}
}

// Process runs one delivery through the full pipeline: gates first, then
// the three backend stages in order, then termination. retries is the
// x-retries value carried on the delivery's headers.
func (w *Worker) Process(ctx context.Context, env domain.Envelope, retries int) Outcome {
	log := zlog.With().Str("order_id", env.OrderID).Str("event_id", env.EventID).Logger()

	// Idempotency gate.
	processed, err := w.alreadyProcessed(ctx, env.OrderID, env.EventID)
	if err != nil {
		log.Error().Err(err).Msg("idempotency check failed, proceeding conservatively")
	} else if processed {
		w.events.Append(ctx, env.OrderID, "DUPLICATE_SKIP", map[string]any{"event_id": env.EventID})
		return Outcome{}
	}

	// Skip gate: order already reached a terminal state.
	status, err := w.orders.GetStatus(ctx, env.OrderID)
	if err == nil && status.Done() {
		w.events.Append(ctx, env.OrderID, "SKIP_ALREADY_DONE", map[string]any{"status": string(status)})
		return Outcome{}
	}

	w.transition(ctx, env.OrderID, domain.StatusProcessing, "", false)
	w.events.Append(ctx, env.OrderID, "PROCESSING", nil)

	for _, stage := range StageOrder {
		if outcome, done := w.runStage(ctx, env, stage, retries); done {
			return outcome
		}
	}

	w.terminator.Complete(ctx, env.OrderID)

	if err := w.orders.MarkEventProcessed(ctx, env.OrderID, env.EventID); err != nil {
		log.Error().Err(err).Msg("mark event processed failed")
	}
	return Outcome{}
}

func (w *Worker) alreadyProcessed(ctx context.Context, orderID, eventID string) (bool, error) {
	if w.cache != nil {
		seen, err := w.cache.SeenRecently(ctx, orderID, eventID, w.idempotencyTTL)
		if err == nil && seen {
			return true, nil
		}
		// Cache miss or cache failure falls through to the durable,
		// single-horizon Postgres gate below.
	}
	return w.orders.IsEventProcessed(ctx, orderID, eventID)
}

// runStage executes one CMS/ROS/WMS stage. done=true means the caller must
// return the returned Outcome immediately (a failure occurred and the
// retry/DLQ decision has been made); done=false means the stage succeeded
// and the loop should continue to the next stage.
func (w *Worker) runStage(ctx context.Context, env domain.Envelope, stage Stage, retries int) (Outcome, bool) {
	callingStatus := CallingStatus(stage)
	w.transition(ctx, env.OrderID, callingStatus, "", false)
	w.events.Append(ctx, env.OrderID, string(callingStatus), nil)

	adapter, ok := w.adapters[stage]
	if !ok {
		err := fmt.Errorf("no adapter registered for stage %s", stage)
		return w.failStage(ctx, env, stage, retries, err), true
	}

	start := w.clock.Now()
	result, err := adapter.Execute(ctx, env.OrderID)
	if w.metrics != nil {
		w.metrics.ObserveStageDuration(stage, w.clock.Now().Sub(start))
	}
	if err != nil {
		return w.failStage(ctx, env, stage, retries, err), true
	}

	if stage == StageROS && result.Route != nil {
		if err := w.orders.SetRoute(ctx, env.OrderID, result.Route); err != nil {
			zlog.Error().Err(err).Str("order_id", env.OrderID).Msg("persist route failed")
		} else {
			w.events.Append(ctx, env.OrderID, "ROUTE_SAVED", map[string]any{"route": result.Route})
		}
	}

	okStatus := OKStatus(stage)
	w.transition(ctx, env.OrderID, okStatus, "", false)
	w.events.Append(ctx, env.OrderID, string(okStatus), nil)

	if w.demoDelays {
		w.clock.Sleep(200 * time.Millisecond)
	}

	return Outcome{}, false
}

func (w *Worker) failStage(ctx context.Context, env domain.Envelope, stage Stage, retries int, stageErr error) Outcome {
	errStatus := ClassifyError(stage, stageErr)
	w.transition(ctx, env.OrderID, errStatus, stageErr.Error(), true)
	w.events.Append(ctx, env.OrderID, string(errStatus), map[string]any{"error": stageErr.Error()})

	nextRetry := retries + 1
	if nextRetry > w.maxRetries {
		// Label by classified status, not raw error text, to keep the
		// metric's cardinality bounded.
		if w.metrics != nil {
			w.metrics.IncDLQ(string(errStatus))
		}
		w.transition(ctx, env.OrderID, domain.StatusDLQ, stageErr.Error(), false)
		w.events.Append(ctx, env.OrderID, "DLQ", map[string]any{"reason": stageErr.Error()})
		return Outcome{Republish: &RepublishInstruction{
			ToDLQ:     true,
			Envelope:  env,
			NextRetry: retries,
			DLQReason: stageErr.Error(),
		}}
	}

	expiration := NextRetryExpiration(nextRetry, w.baseRetryTTL, w.maxRetryTTL)
	w.events.Append(ctx, env.OrderID, "RETRY_SCHEDULED", map[string]any{
		"retry":  nextRetry,
		"ttl_ms": expiration.Milliseconds(),
	})
	return Outcome{Republish: &RepublishInstruction{
		Envelope:   env,
		NextRetry:  nextRetry,
		Expiration: expiration,
	}}
}

func (w *Worker) transition(ctx context.Context, orderID string, status domain.Status, lastError string, incRetry bool) {
	if err := w.orders.UpdateStatus(ctx, orderID, status, lastError, incRetry); err != nil {
		zlog.Error().Err(err).Str("order_id", orderID).Str("status", string(status)).Msg("update status failed")
	}
	if w.notifier != nil {
		w.notifier.NotifyStatus(ctx, orderID, status)
	}
	if w.metrics != nil {
		w.metrics.IncTransition("", status)
	}
}
