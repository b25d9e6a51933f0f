package stream

import (
	"context"
	"testing"
)

type ticketRow struct {
	ID              string  `json:"id"`
	Status          string  `json:"status"`
	AssignedAdminID *string `json:"assigned_admin_id"`
}

func publishRow(t *testing.T, b Broker, table string, op Op, oldRow, newRow any) {
	t.Helper()
	event, err := NewEvent(table, op, oldRow, newRow)
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	if err := b.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestMemoryBrokerTableAndOpScoping(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	var inserts, updates, anyCount int
	mustSubscribe(t, b, TableTickets, OpInsert, nil, func(ChangeEvent) { inserts++ })
	mustSubscribe(t, b, TableTickets, OpUpdate, nil, func(ChangeEvent) { updates++ })
	mustSubscribe(t, b, TableTickets, OpAny, nil, func(ChangeEvent) { anyCount++ })

	publishRow(t, b, TableTickets, OpInsert, nil, ticketRow{ID: "t1", Status: "OPEN"})
	publishRow(t, b, TableTickets, OpUpdate, ticketRow{ID: "t1", Status: "OPEN"}, ticketRow{ID: "t1", Status: "IN_PROGRESS"})
	publishRow(t, b, TableTicketMessages, OpInsert, nil, map[string]any{"id": "m1"})

	if inserts != 1 || updates != 1 || anyCount != 2 {
		t.Fatalf("counts = insert %d update %d any %d, want 1/1/2", inserts, updates, anyCount)
	}
}

func TestMemoryBrokerColumnFilter(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	var matched int
	mustSubscribe(t, b, TableReferrals, OpInsert, Filter{"referred_admin_id": "a2"}, func(ChangeEvent) { matched++ })

	publishRow(t, b, TableReferrals, OpInsert, nil, map[string]any{"id": "r1", "referred_admin_id": "a2"})
	publishRow(t, b, TableReferrals, OpInsert, nil, map[string]any{"id": "r2", "referred_admin_id": "a3"})
	publishRow(t, b, TableReferrals, OpInsert, nil, map[string]any{"id": "r3"})

	if matched != 1 {
		t.Fatalf("matched = %d, want 1", matched)
	}
}

func TestMemoryBrokerSubscriptionClose(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	var delivered int
	sub := mustSubscribe(t, b, TableTickets, OpInsert, nil, func(ChangeEvent) { delivered++ })

	publishRow(t, b, TableTickets, OpInsert, nil, ticketRow{ID: "t1"})
	sub.Close()
	sub.Close() // idempotent
	publishRow(t, b, TableTickets, OpInsert, nil, ticketRow{ID: "t2"})

	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1 after close", delivered)
	}
}

func TestChangeEventDecode(t *testing.T) {
	admin := "a1"
	event, err := NewEvent(TableTickets, OpUpdate,
		ticketRow{ID: "t1", Status: "OPEN"},
		ticketRow{ID: "t1", Status: "IN_PROGRESS", AssignedAdminID: &admin})
	if err != nil {
		t.Fatalf("build event: %v", err)
	}

	var newRow ticketRow
	if err := event.DecodeNew(&newRow); err != nil {
		t.Fatalf("decode new: %v", err)
	}
	if newRow.Status != "IN_PROGRESS" || newRow.AssignedAdminID == nil || *newRow.AssignedAdminID != "a1" {
		t.Fatalf("new row = %+v", newRow)
	}

	var oldRow ticketRow
	hasOld, err := event.DecodeOld(&oldRow)
	if err != nil || !hasOld {
		t.Fatalf("decode old = (%v, %v), want present", hasOld, err)
	}
	if oldRow.Status != "OPEN" {
		t.Fatalf("old row = %+v", oldRow)
	}

	insert, err := NewEvent(TableTickets, OpInsert, nil, ticketRow{ID: "t2"})
	if err != nil {
		t.Fatalf("build insert: %v", err)
	}
	hasOld, err = insert.DecodeOld(&oldRow)
	if err != nil || hasOld {
		t.Fatalf("insert old = (%v, %v), want absent", hasOld, err)
	}
}

func mustSubscribe(t *testing.T, b Broker, table string, op Op, filter Filter, handler Handler) Subscription {
	t.Helper()
	sub, err := b.Subscribe(table, op, filter, handler)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return sub
}
