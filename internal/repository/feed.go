package repository

import (
	"context"

	"github.com/spec-kit/helpdesk/internal/stream"
)

// publishChange emits a row-level change event after a successful write.
// Delivery is best effort: the durable write already happened, and
// consumers reconcile from authoritative fetches when they miss events.
func publishChange(ctx context.Context, feed stream.Broker, table string, op stream.Op, oldRow, newRow any) {
	if feed == nil {
		return
	}
	event, err := stream.NewEvent(table, op, oldRow, newRow)
	if err != nil {
		return
	}
	_ = feed.Publish(ctx, event)
}
