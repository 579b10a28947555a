package services

import (
	"context"
	"fmt"
	"log/slog"

	"pulse/internal/core/contracts"
	"pulse/internal/core/domain"
	"pulse/internal/platform/metrics"
	"pulse/pkg/logging"
)

// Fanout encodes an event once and enqueues it on every target connection.
// Each delivery is isolated: a full or closed connection is logged, counted
// and skipped.
type Fanout struct {
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewFanout(log *slog.Logger, m *metrics.Metrics) *Fanout {
	return &Fanout{log: log, metrics: m}
}

// Deliver returns the number of connections the event was enqueued on.
func (f *Fanout) Deliver(ctx context.Context, event string, payload any, targets []contracts.Client) int {
	if len(targets) == 0 {
		return 0
	}
	frame, err := domain.NewEnvelope(event, payload)
	if err != nil {
		f.log.ErrorContext(ctx, "fanout - deliver - encode failed", logging.Event(event), logging.Err(err))
		return 0
	}
	delivered := 0
	for _, c := range targets {
		if err := f.send(ctx, event, frame, c); err != nil {
			continue
		}
		delivered++
	}
	return delivered
}

// ToRoom delivers to the subscribers for which keep returns true.
func (f *Fanout) ToRoom(ctx context.Context, event string, payload any, subs []contracts.Subscriber, keep func(contracts.Subscriber) bool) int {
	targets := make([]contracts.Client, 0, len(subs))
	for _, s := range subs {
		if keep == nil || keep(s) {
			targets = append(targets, s.Client)
		}
	}
	return f.Deliver(ctx, event, payload, targets)
}

// Reply sends a single event to one connection.
func (f *Fanout) Reply(ctx context.Context, c contracts.Client, event string, payload any) error {
	frame, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return f.send(ctx, event, frame, c)
}

// Error surfaces err to the originating connection only.
func (f *Fanout) Error(ctx context.Context, c contracts.Client, event, clientMsgID string, err error) {
	msg := domain.ErrorMessage{
		Code:        domain.ErrorCode(err),
		Message:     err.Error(),
		Event:       event,
		ClientMsgID: clientMsgID,
	}
	// Store and internal failures carry driver detail that stays in the logs.
	switch msg.Code {
	case domain.CodeInternal:
		msg.Message = "internal error"
	case domain.CodePersistence:
		msg.Message = "storage unavailable, please retry"
	}
	_ = f.Reply(ctx, c, domain.EventError, msg)
}

func (f *Fanout) send(ctx context.Context, event string, frame []byte, c contracts.Client) error {
	if err := c.Send(ctx, frame); err != nil {
		f.metrics.Delivered(event, false)
		f.log.WarnContext(ctx, "fanout - deliver - dropped",
			logging.Event(event), logging.Connection(c.ID()), logging.Err(err))
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailure, err)
	}
	f.metrics.Delivered(event, true)
	return nil
}
