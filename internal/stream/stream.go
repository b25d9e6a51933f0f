// Package stream provides the change-data-capture feed the notification
// core subscribes to: row-level insert/update events scoped by table and
// optional column-equality filters. Delivery is best-effort at-least-once
// with single-row causal order; missed events during a gap are not
// replayed, so consumers reconcile from an authoritative fetch.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// Op identifies the row operation carried by an event.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	// OpAny subscribes to every operation on a table.
	OpAny Op = "*"
)

// Tables carried on the stream.
const (
	TableTickets        = "tickets"
	TableTicketMessages = "ticket_messages"
	TableReferrals      = "ticket_referrals"
	TableAppSettings    = "app_settings"
)

// ChangeEvent is one row-level change. Old is absent for inserts.
type ChangeEvent struct {
	ID         string          `json:"id"`
	Table      string          `json:"table"`
	Op         Op              `json:"op"`
	Old        json.RawMessage `json:"old,omitempty"`
	New        json.RawMessage `json:"new"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// DecodeNew unmarshals the new row into dst.
func (e *ChangeEvent) DecodeNew(dst any) error {
	return jsoniter.Unmarshal(e.New, dst)
}

// DecodeOld unmarshals the old row into dst. Returns false when absent.
func (e *ChangeEvent) DecodeOld(dst any) (bool, error) {
	if len(e.Old) == 0 {
		return false, nil
	}
	return true, jsoniter.Unmarshal(e.Old, dst)
}

// Filter restricts a subscription to rows whose new image matches every
// listed column value.
type Filter map[string]string

// Matches reports whether the event's new row satisfies the filter.
func (f Filter) Matches(e ChangeEvent) bool {
	if len(f) == 0 {
		return true
	}
	var row map[string]any
	if err := jsoniter.Unmarshal(e.New, &row); err != nil {
		return false
	}
	for column, want := range f {
		val, ok := row[column]
		if !ok || val == nil {
			return false
		}
		if fmt.Sprint(val) != want {
			return false
		}
	}
	return true
}

// Handler receives matching events.
type Handler func(ChangeEvent)

// Subscription is a live listener registration. Close is idempotent and
// must be called when the owning scope ends; leaked subscriptions mean
// duplicate notifications.
type Subscription interface {
	Close()
}

// Broker fans change events out to subscribers.
type Broker interface {
	Publish(ctx context.Context, event ChangeEvent) error
	Subscribe(table string, op Op, filter Filter, handler Handler) (Subscription, error)
	Close()
}

// NewEvent builds an event from row values, serializing them the same way
// the store column images are shaped.
func NewEvent(table string, op Op, oldRow, newRow any) (ChangeEvent, error) {
	event := ChangeEvent{
		ID:         uuid.NewString(),
		Table:      table,
		Op:         op,
		OccurredAt: time.Now(),
	}
	if oldRow != nil {
		raw, err := jsoniter.Marshal(oldRow)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("encode old row: %w", err)
		}
		event.Old = raw
	}
	raw, err := jsoniter.Marshal(newRow)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("encode new row: %w", err)
	}
	event.New = raw
	return event, nil
}

func matches(e ChangeEvent, table string, op Op, filter Filter) bool {
	if e.Table != table {
		return false
	}
	if op != OpAny && e.Op != op {
		return false
	}
	return filter.Matches(e)
}
