package idhash

import (
	"testing"
	"time"

	"delivery-sla-lab/internal/domain"
)

func timePtr(t time.Time) *time.Time {
	return &t
}

func sampleDataset() *domain.Dataset {
	p := time.Date(2017, 5, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Dataset{Records: []domain.OrderItemRecord{
		{OrderID: "a", OrderItemID: 1, PurchaseAt: timePtr(p), DeliveredAt: timePtr(p.AddDate(0, 0, 9)), EstimatedAt: timePtr(p.AddDate(0, 0, 20))},
		{OrderID: "a", OrderItemID: 2, PurchaseAt: timePtr(p), DeliveredAt: timePtr(p.AddDate(0, 0, 9)), EstimatedAt: timePtr(p.AddDate(0, 0, 20))},
		{OrderID: "b", OrderItemID: 1, PurchaseAt: timePtr(p.AddDate(0, 1, 0))},
	}}
}

func TestComputeRecordKey(t *testing.T) {
	if got := ComputeRecordKey("e481f51cbdc54678b7cc49136f2d6af7", 3); got != "e481f51cbdc54678b7cc49136f2d6af7|3" {
		t.Errorf("ComputeRecordKey: got %s", got)
	}
}

func TestComputeDatasetVersion(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(ds *domain.Dataset)
		same   bool
	}{
		{
			name:   "identical",
			mutate: func(ds *domain.Dataset) {},
			same:   true,
		},
		{
			name: "row order ignored",
			mutate: func(ds *domain.Dataset) {
				ds.Records[0], ds.Records[2] = ds.Records[2], ds.Records[0]
			},
			same: true,
		},
		{
			name: "derived columns ignored",
			mutate: func(ds *domain.Dataset) {
				ds.Records[0].PriceBin = "High"
			},
			same: true,
		},
		{
			name: "delivery change detected",
			mutate: func(ds *domain.Dataset) {
				ds.Records[1].DeliveredAt = timePtr(ds.Records[1].DeliveredAt.Add(24 * time.Hour))
			},
			same: false,
		},
		{
			name: "dropped row detected",
			mutate: func(ds *domain.Dataset) {
				ds.Records = ds.Records[:2]
			},
			same: false,
		},
	}

	base := ComputeDatasetVersion(sampleDataset())
	if len(base) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(base))
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := sampleDataset()
			tt.mutate(ds)
			got := ComputeDatasetVersion(ds)
			if (got == base) != tt.same {
				t.Errorf("same=%v, got %s vs %s", tt.same, got, base)
			}
		})
	}
}

func TestComputeDatasetVersion_Empty(t *testing.T) {
	if ComputeDatasetVersion(nil) != ComputeDatasetVersion(&domain.Dataset{}) {
		t.Error("nil and empty dataset should hash equally")
	}
}
