package history

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"webrelay/internal/eventing"
	"webrelay/internal/relays/application/events"
	relays "webrelay/internal/relays/domain"
)

func issued(id string, relay int, replaced string) events.CommandIssued {
	return events.CommandIssued{
		CommandID:   id,
		Relay:       relay,
		TargetState: true,
		ReplacedID:  replaced,
		OccurredAt:  time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestRecorder_Lifecycle(t *testing.T) {
	bus := eventing.NewInMemoryBus()
	rec := NewRecorder(10)
	rec.Register(bus)
	ctx := context.Background()

	_ = bus.Publish(ctx, issued("a", 1, ""))
	_ = bus.Publish(ctx, issued("b", 2, "a"))
	_ = bus.Publish(ctx, events.CommandDelivered{CommandID: "b", Relay: 2, OccurredAt: time.Now()})
	_ = bus.Publish(ctx, events.CommandAcked{CommandID: "b", Relay: 2, Status: "received", OccurredAt: time.Now()})
	_ = bus.Publish(ctx, events.AckIgnored{CommandID: "zzz", Reason: "not in flight"})

	list := rec.List(0)
	if len(list) != 2 {
		t.Fatalf("expected 2 records, got %d", len(list))
	}
	if list[0].CommandID != "b" || list[0].Status != relays.StatusAcked || list[0].AckStatus != "received" {
		t.Fatalf("unexpected newest record %+v", list[0])
	}
	if list[0].DeliveredAt == nil || list[0].AckedAt == nil {
		t.Fatalf("expected delivered and acked timestamps")
	}
	if list[1].CommandID != "a" || list[1].Status != relays.StatusOverwritten || list[1].ReplacedBy != "b" {
		t.Fatalf("unexpected overwritten record %+v", list[1])
	}
	if rec.IgnoredAcks() != 1 {
		t.Fatalf("expected 1 ignored ack, got %d", rec.IgnoredAcks())
	}
}

func TestRecorder_OverwrittenThenAcked(t *testing.T) {
	rec := NewRecorder(10)
	ctx := context.Background()
	_ = rec.Handle(ctx, issued("a", 1, ""))
	_ = rec.Handle(ctx, issued("b", 1, "a"))
	_ = rec.Handle(ctx, events.CommandAcked{CommandID: "a", Status: "ok"})

	list := rec.List(0)
	if list[1].Status != relays.StatusAcked {
		t.Fatalf("expected overwritten command to become acked, got %s", list[1].Status)
	}
}

func TestRecorder_AckBeforeIssued(t *testing.T) {
	rec := NewRecorder(10)
	ctx := context.Background()
	_ = rec.Handle(ctx, events.CommandDelivered{CommandID: "a", Relay: 1, OccurredAt: time.Now()})
	_ = rec.Handle(ctx, events.CommandAcked{CommandID: "a", Relay: 1, TargetState: true, Status: "received", OccurredAt: time.Now()})
	_ = rec.Handle(ctx, issued("a", 1, ""))

	list := rec.List(0)
	if len(list) != 1 {
		t.Fatalf("expected 1 record, got %d", len(list))
	}
	got := list[0]
	if got.Status != relays.StatusAcked || got.DeliveredAt == nil || got.AckedAt == nil {
		t.Fatalf("expected acked record with timestamps, got %+v", got)
	}
	if got.IssuedAt.IsZero() || !got.TargetState {
		t.Fatalf("expected issued fields filled in, got %+v", got)
	}
}

func TestRecorder_Expired(t *testing.T) {
	rec := NewRecorder(10)
	ctx := context.Background()
	_ = rec.Handle(ctx, issued("a", 1, ""))
	_ = rec.Handle(ctx, events.CommandExpired{CommandID: "a", OccurredAt: time.Now()})
	if got := rec.List(1)[0]; got.Status != relays.StatusExpired || got.ExpiredAt == nil {
		t.Fatalf("expected expired record, got %+v", got)
	}
}

func TestRecorder_EvictsOldest(t *testing.T) {
	rec := NewRecorder(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = rec.Handle(ctx, issued(fmt.Sprintf("c%d", i), 1, ""))
	}
	list := rec.List(0)
	if len(list) != 3 {
		t.Fatalf("expected 3 records, got %d", len(list))
	}
	if list[0].CommandID != "c4" || list[2].CommandID != "c2" {
		t.Fatalf("unexpected order %+v", list)
	}
	if got := rec.List(2); len(got) != 2 {
		t.Fatalf("expected limit 2, got %d", len(got))
	}
}

func TestBuildXLSX(t *testing.T) {
	duration := 1500
	records := []Record{{
		CommandID:   "abc",
		Relay:       2,
		TargetState: true,
		Duration:    &duration,
		Status:      relays.StatusAcked,
		IssuedAt:    time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}}
	data, err := BuildXLSX(records, time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("build xlsx: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	value, err := f.GetCellValue("commands", "A2")
	if err != nil || value != "abc" {
		t.Fatalf("expected A2=abc, got %q err=%v", value, err)
	}
	value, _ = f.GetCellValue("commands", "D2")
	if value != "1500" {
		t.Fatalf("expected D2=1500, got %q", value)
	}
}

func TestBuildPDF(t *testing.T) {
	data, err := BuildPDF([]Record{{CommandID: "abc", Relay: 1, IssuedAt: time.Now()}}, time.Now())
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("expected PDF header")
	}
}
