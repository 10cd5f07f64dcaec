package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/storage"
)

func rawRow(orderID string, purchase, delivered, estimated time.Time) domain.OrderItemRecord {
	return domain.OrderItemRecord{
		OrderID:     orderID,
		OrderItemID: 1,
		OrderStatus: domain.OrderStatusDelivered,
		PurchaseAt:  timePtr(purchase),
		DeliveredAt: timePtr(delivered),
		EstimatedAt: timePtr(estimated),
		Price:       45,
		CustomerLat: floatPtr(-23.55),
		CustomerLng: floatPtr(-46.63),
		SellerLat:   floatPtr(-22.90),
		SellerLng:   floatPtr(-47.06),
	}
}

func TestDeliverySource_FiltersAndOrders(t *testing.T) {
	day := time.Date(2018, 1, 10, 10, 0, 0, 0, time.UTC)

	old := rawRow("old", time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC), day, day)
	canceled := rawRow("canceled", day, day, day)
	canceled.OrderStatus = "canceled"
	noEstimate := rawRow("no-estimate", day, day, day)
	noEstimate.EstimatedAt = nil

	src := NewDeliverySource([]domain.OrderItemRecord{
		rawRow("a", day, day.AddDate(0, 0, 8), day.AddDate(0, 0, 15)),
		rawRow("b", day.AddDate(0, 0, 1), day.AddDate(0, 0, 20), day.AddDate(0, 0, 14)),
		old, canceled, noEstimate,
	})

	got, err := src.FetchDeliveries(context.Background(), storage.FetchQuery{
		Since: time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("FetchDeliveries failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].OrderID != "b" || got[1].OrderID != "a" {
		t.Errorf("expected newest purchase first, got %s, %s", got[0].OrderID, got[1].OrderID)
	}

	b := got[0]
	if b.EDDDeltaDays == nil || *b.EDDDeltaDays != 6 {
		t.Errorf("EDDDeltaDays: got %v, want 6", b.EDDDeltaDays)
	}
	if !b.LateToEDD || b.DaysLateToEDD != 6 {
		t.Errorf("expected late by 6 days, got late=%v days=%d", b.LateToEDD, b.DaysLateToEDD)
	}
	if b.PerformanceCategory != domain.PerformanceLate {
		t.Errorf("PerformanceCategory: got %s", b.PerformanceCategory)
	}
	if b.PriceBin != "Low" {
		t.Errorf("PriceBin: got %q, want Low", b.PriceBin)
	}
	if b.DistanceKm == nil || *b.DistanceKm < 70 || *b.DistanceKm > 95 {
		t.Errorf("DistanceKm out of range: %v", b.DistanceKm)
	}

	a := got[1]
	if a.EarlyDays != 7 || a.PerformanceCategory != domain.PerformanceVeryEarly {
		t.Errorf("expected very early by 7, got %d %s", a.EarlyDays, a.PerformanceCategory)
	}
}

func TestDeliverySource_Limit(t *testing.T) {
	day := time.Date(2018, 1, 10, 0, 0, 0, 0, time.UTC)
	src := NewDeliverySource(nil)
	for _, id := range []string{"a", "b", "c"} {
		src.Add(rawRow(id, day, day, day))
	}

	got, err := src.FetchDeliveries(context.Background(), storage.FetchQuery{Limit: 2})
	if err != nil {
		t.Fatalf("FetchDeliveries failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 rows, got %d", len(got))
	}

	_, err = src.FetchDeliveries(context.Background(), storage.FetchQuery{Limit: -1})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDeliverySource_MissingCoordinates(t *testing.T) {
	day := time.Date(2018, 1, 10, 0, 0, 0, 0, time.UTC)
	r := rawRow("a", day, day, day)
	r.SellerLat = nil

	got, err := NewDeliverySource([]domain.OrderItemRecord{r}).FetchDeliveries(context.Background(), storage.FetchQuery{})
	if err != nil {
		t.Fatalf("FetchDeliveries failed: %v", err)
	}
	if got[0].DistanceKm != nil {
		t.Errorf("expected nil distance, got %v", *got[0].DistanceKm)
	}
}

func TestCalendarDays(t *testing.T) {
	from := time.Date(2018, 1, 10, 23, 30, 0, 0, time.UTC)
	to := time.Date(2018, 1, 11, 0, 15, 0, 0, time.UTC)
	if d := calendarDays(&from, &to); d == nil || *d != 1 {
		t.Errorf("calendarDays across midnight: got %v, want 1", d)
	}
	if d := calendarDays(&to, &from); d == nil || *d != -1 {
		t.Errorf("calendarDays reversed: got %v, want -1", d)
	}
	if d := calendarDays(nil, &from); d != nil {
		t.Errorf("expected nil for missing operand")
	}
}

func TestGenerateDeliveries_Deterministic(t *testing.T) {
	opts := DefaultFixtureOptions()
	opts.Orders = 200

	a := GenerateDeliveries(opts)
	b := GenerateDeliveries(opts)
	if len(a) < opts.Orders {
		t.Fatalf("expected at least %d rows, got %d", opts.Orders, len(a))
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different fixtures")
	}

	opts.Seed = 7
	if reflect.DeepEqual(a, GenerateDeliveries(opts)) {
		t.Error("different seeds produced identical fixtures")
	}

	for _, r := range a {
		if r.PurchaseAt == nil || r.EstimatedAt == nil {
			t.Fatalf("row %s missing purchase or estimate", r.OrderID)
		}
		if r.PurchaseAt.Before(opts.From) || r.PurchaseAt.After(opts.To) {
			t.Errorf("purchase %v outside window", r.PurchaseAt)
		}
	}
}

func TestAnalyticsStore_WriteAndGet(t *testing.T) {
	store := NewAnalyticsStore()
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)

	tables := []*domain.AggregateTable{
		{Dimension: domain.DimensionState, MinSupport: 100, Rows: []domain.AggregateRow{{Key: "AL", Count: 397, LateRatePct: 23.9}}},
		{Dimension: domain.DimensionMonth, MinSupport: 100},
	}
	if err := store.WriteAggregates(ctx, "run-1", at, tables); err != nil {
		t.Fatalf("WriteAggregates failed: %v", err)
	}

	got, err := store.GetAggregates(ctx, "run-1", domain.DimensionState)
	if err != nil {
		t.Fatalf("GetAggregates failed: %v", err)
	}
	if len(got.Rows) != 1 || got.Rows[0].Key != "AL" {
		t.Errorf("unexpected rows: %+v", got.Rows)
	}

	// Mutating the result must not change the store.
	got.Rows[0].Key = "XX"
	again, _ := store.GetAggregates(ctx, "run-1", domain.DimensionState)
	if again.Rows[0].Key != "AL" {
		t.Error("store returned shared rows")
	}

	if _, err := store.GetAggregates(ctx, "run-1", domain.DimensionMonth); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("empty table: expected ErrNotFound, got %v", err)
	}
	if err := store.WriteAggregates(ctx, "run-1", at, tables); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if ts, ok := store.ComputedAt("run-1"); !ok || !ts.Equal(at) {
		t.Errorf("ComputedAt: got %v %v", ts, ok)
	}
}

func TestRunStore_InsertAndLatest(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	if _, err := store.GetLatest(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on empty store, got %v", err)
	}

	day := time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		r := &domain.RunSummary{RunID: id, StartedAt: day.AddDate(0, 0, i), Status: domain.RunStatusSuccess}
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert %s failed: %v", id, err)
		}
	}

	if err := store.Insert(ctx, &domain.RunSummary{RunID: "run-a"}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	latest, err := store.GetLatest(ctx)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.RunID != "run-c" {
		t.Errorf("GetLatest: got %s, want run-c", latest.RunID)
	}

	runs, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-c" || runs[1].RunID != "run-b" {
		t.Errorf("List order wrong: %v", runs)
	}

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
