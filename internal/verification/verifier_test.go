package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"delivery-sla-lab/internal/cache"
	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/extract"
	"delivery-sla-lab/internal/storage/memory"
)

func ptrFloat64(v float64) *float64 {
	return &v
}

func ptrInt(v int) *int {
	return &v
}

func sampleRecord() domain.OrderItemRecord {
	p := time.Date(2017, 10, 2, 10, 56, 33, 0, time.UTC)
	d := p.AddDate(0, 0, 8)
	e := p.AddDate(0, 0, 16)
	return domain.OrderItemRecord{
		OrderID:             "e481f51c",
		OrderItemID:         1,
		OrderStatus:         domain.OrderStatusDelivered,
		PurchaseAt:          &p,
		DeliveredAt:         &d,
		EstimatedAt:         &e,
		TotalDeliveryDays:   ptrInt(8),
		EDDDeltaDays:        ptrInt(-8),
		EarlyDays:           8,
		Price:               29.99,
		DistanceKm:          ptrFloat64(18.6),
		CustomerState:       "SP",
		PerformanceCategory: domain.PerformanceVeryEarly,
		PriceBin:            "Very Low",
	}
}

func TestCompareRecords_ExactMatch(t *testing.T) {
	a, b := sampleRecord(), sampleRecord()
	if divs := CompareRecords(&a, &b); len(divs) != 0 {
		t.Errorf("expected no divergences, got %+v", divs)
	}
}

func TestCompareRecords_WithinTolerance(t *testing.T) {
	a, b := sampleRecord(), sampleRecord()
	b.Price += 1e-9
	b.DistanceKm = ptrFloat64(18.6 + 1e-8)
	if divs := CompareRecords(&a, &b); len(divs) != 0 {
		t.Errorf("expected no divergences within tolerance, got %+v", divs)
	}
}

func TestCompareRecords_Divergences(t *testing.T) {
	a, b := sampleRecord(), sampleRecord()
	b.EDDDeltaDays = ptrInt(-7)
	b.DistanceKm = nil
	b.PriceBin = "Low"

	divs := CompareRecords(&a, &b)
	if len(divs) != 3 {
		t.Fatalf("expected 3 divergences, got %d: %+v", len(divs), divs)
	}

	fields := map[string]FieldDivergence{}
	for _, d := range divs {
		fields[d.Field] = d
	}
	if d, ok := fields["EDDDeltaDays"]; !ok || d.Expected != -8 || d.Actual != -7 {
		t.Errorf("EDDDeltaDays divergence: %+v", d)
	}
	if d, ok := fields["DistanceKm"]; !ok || d.Actual != nil {
		t.Errorf("DistanceKm divergence: %+v", d)
	}
	if _, ok := fields["PriceBin"]; !ok {
		t.Error("missing PriceBin divergence")
	}
}

func TestCompareDatasets_MissingAndExtra(t *testing.T) {
	r1, r2, r3 := sampleRecord(), sampleRecord(), sampleRecord()
	r2.OrderItemID = 2
	r3.OrderID = "other"

	changed := r2
	changed.CustomerState = "RJ"

	cached := &domain.Dataset{Records: []domain.OrderItemRecord{r1, r2}}
	fresh := &domain.Dataset{Records: []domain.OrderItemRecord{r3, changed}}

	report := CompareDatasets(cached, fresh)
	if report.Match() {
		t.Fatal("expected mismatch")
	}
	if report.MatchedRows != 0 || report.DivergentRows != 1 {
		t.Errorf("matched=%d divergent=%d", report.MatchedRows, report.DivergentRows)
	}
	if len(report.MissingRows) != 1 || report.MissingRows[0] != "e481f51c|1" {
		t.Errorf("missing: %v", report.MissingRows)
	}
	if len(report.ExtraRows) != 1 || report.ExtraRows[0] != "other|1" {
		t.Errorf("extra: %v", report.ExtraRows)
	}
}

func TestVerify_CacheRoundTripMatchesFreshExtraction(t *testing.T) {
	opts := memory.DefaultFixtureOptions()
	opts.Orders = 200
	src := memory.NewDeliverySource(memory.GenerateDeliveries(opts))
	since := time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

	store := cache.NewStore(t.TempDir())
	ex := extract.New(src, store, since, nil)
	ctx := context.Background()

	// Populate the cache.
	if _, err := ex.Extract(ctx, extract.Options{}); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	report, err := Verify(ctx,
		func(ctx context.Context) (*domain.Dataset, error) { return store.Load() },
		func(ctx context.Context) (*domain.Dataset, error) {
			res, err := ex.Extract(ctx, extract.Options{NoCache: true})
			if err != nil {
				return nil, err
			}
			return res.Dataset, nil
		})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.Match() {
		t.Errorf("cache diverged from fresh extraction: %+v", report.Results)
	}
	if report.MatchedRows != report.FreshRows || report.FreshRows == 0 {
		t.Errorf("matched %d of %d rows", report.MatchedRows, report.FreshRows)
	}
}

func TestVerify_LoaderError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Verify(context.Background(),
		func(context.Context) (*domain.Dataset, error) { return nil, boom },
		func(context.Context) (*domain.Dataset, error) { return &domain.Dataset{}, nil })
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped loader error, got %v", err)
	}
}
