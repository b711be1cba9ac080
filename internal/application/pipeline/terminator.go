package pipeline

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/swiftlogix/order-pipeline/internal/domain"
)

// Terminator finishes the pipeline for an order: it transitions the order
// to READY_FOR_DRIVER, assigns a driver, and pushes a best-effort driver
// notification.
type Terminator struct {
	orders   OrderRepo
	events   EventLog
	drivers  DriverPicker
	notifier Notifier
}

func NewTerminator(orders OrderRepo, events EventLog, drivers DriverPicker, notifier Notifier) *Terminator {
	return &Terminator{orders: orders, events: events, drivers: drivers, notifier: notifier}
}

// Complete runs the terminal sequence for orderID after WMS has succeeded.
func (t *Terminator) Complete(ctx context.Context, orderID string) {
	if err := t.orders.UpdateStatus(ctx, orderID, domain.StatusReadyForDriver, "", false); err != nil {
		zlog.Error().Err(err).Str("order_id", orderID).Msg("transition to READY_FOR_DRIVER failed")
	}
	t.events.Append(ctx, orderID, string(domain.StatusReadyForDriver), nil)
	if t.notifier != nil {
		t.notifier.NotifyStatus(ctx, orderID, domain.StatusReadyForDriver)
	}

	candidate, err := t.drivers.PickDriver(ctx)
	if err != nil {
		zlog.Error().Err(err).Str("order_id", orderID).Msg("pick driver failed")
		t.events.Append(ctx, orderID, "DRIVER_ASSIGN_FAILED", map[string]any{"reason": err.Error()})
		return
	}
	if candidate == "" {
		t.events.Append(ctx, orderID, "DRIVER_ASSIGN_FAILED", map[string]any{"reason": "no_driver_found"})
		return
	}

	effective, err := t.orders.AssignDriverIfAbsent(ctx, orderID, candidate)
	if err != nil {
		zlog.Error().Err(err).Str("order_id", orderID).Msg("assign driver failed")
		t.events.Append(ctx, orderID, "DRIVER_ASSIGN_FAILED", map[string]any{"reason": err.Error()})
		return
	}

	t.events.Append(ctx, orderID, "DRIVER_ASSIGNED", map[string]any{"driver_id": effective})

	if t.notifier != nil {
		t.notifier.NotifyDriver(ctx, effective, orderID, map[string]any{"status": string(domain.StatusReadyForDriver)})
	}
}
