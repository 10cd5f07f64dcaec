package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"delivery-sla-lab/internal/binning"
	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/storage"
)

// DeliverySource is an in-memory implementation of storage.DeliverySource.
// It holds raw warehouse rows and derives the columns the warehouse query
// computes: calendar-day durations, distance, performance category and price bin.
type DeliverySource struct {
	mu   sync.RWMutex
	rows []domain.OrderItemRecord
}

// NewDeliverySource creates a source over a copy of rows.
func NewDeliverySource(rows []domain.OrderItemRecord) *DeliverySource {
	s := &DeliverySource{}
	s.rows = append(s.rows, rows...)
	return s
}

// Add appends raw rows.
func (s *DeliverySource) Add(rows ...domain.OrderItemRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
}

// FetchDeliveries implements storage.DeliverySource.
func (s *DeliverySource) FetchDeliveries(ctx context.Context, q storage.FetchQuery) ([]domain.OrderItemRecord, error) {
	if q.Limit < 0 {
		return nil, storage.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var result []domain.OrderItemRecord
	for _, r := range s.rows {
		if r.OrderStatus != domain.OrderStatusDelivered || r.DeliveredAt == nil || r.EstimatedAt == nil {
			continue
		}
		if r.PurchaseAt == nil || r.PurchaseAt.Before(q.Since) {
			continue
		}
		result = append(result, r)
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.PurchaseAt.Equal(*b.PurchaseAt) {
			return a.PurchaseAt.After(*b.PurchaseAt)
		}
		if a.OrderID != b.OrderID {
			return a.OrderID < b.OrderID
		}
		return a.OrderItemID < b.OrderItemID
	})
	ds := &domain.Dataset{Records: result}
	ds.Head(q.Limit)

	price := binning.NewFixedPriceBinner()
	for i := range ds.Records {
		derive(&ds.Records[i], price)
	}
	return ds.Records, nil
}

// derive fills the columns the warehouse computes in-query.
func derive(r *domain.OrderItemRecord, price *binning.FixedBinner) {
	r.ApprovalDays = calendarDays(r.PurchaseAt, r.ApprovedAt)
	r.HandlingDays = calendarDays(r.ApprovedAt, r.CarrierAt)
	r.InTransitDays = calendarDays(r.CarrierAt, r.DeliveredAt)
	r.TotalDeliveryDays = calendarDays(r.PurchaseAt, r.DeliveredAt)
	r.EDDHorizonDays = calendarDays(r.PurchaseAt, r.EstimatedAt)
	r.EDDDeltaDays = calendarDays(r.EstimatedAt, r.DeliveredAt)
	r.LateToEDD = r.DeliveredAt.After(*r.EstimatedAt)

	r.EarlyDays, r.DaysLateToEDD = 0, 0
	if d := r.EDDDeltaDays; d != nil {
		if *d < 0 {
			r.EarlyDays = -*d
		} else {
			r.DaysLateToEDD = *d
		}
		r.PerformanceCategory = binning.ClassifyPerformance(*d)
	}

	r.DistanceKm = distanceKm(r.SellerLat, r.SellerLng, r.CustomerLat, r.CustomerLng)
	r.PriceBin = price.Label(r.Price)
}

// calendarDays is the difference in UTC calendar dates, to - from.
func calendarDays(from, to *time.Time) *int {
	if from == nil || to == nil {
		return nil
	}
	f := from.UTC()
	t := to.UTC()
	fd := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	td := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	d := int(td.Sub(fd).Hours() / 24)
	return &d
}

// distanceKm is the great-circle distance, nil when a coordinate is missing.
func distanceKm(lat1, lng1, lat2, lng2 *float64) *float64 {
	if lat1 == nil || lng1 == nil || lat2 == nil || lng2 == nil {
		return nil
	}
	km := geo.Distance(orb.Point{*lng1, *lat1}, orb.Point{*lng2, *lat2}) / 1000
	return &km
}

var _ storage.DeliverySource = (*DeliverySource)(nil)
