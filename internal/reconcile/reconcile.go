// Package reconcile repairs out-of-order lifecycle timestamps and recomputes
// the stage durations and EDD fields derived from them.
//
// Corrections are column transforms over parallel arrays:
//
//	carrier  = min(carrier, delivered)
//	approved = min(approved, carrier)
//
// A missing operand disables the clamp for that record and leaves any duration
// that depends on it nil.
package reconcile

import (
	"time"

	"delivery-sla-lab/internal/domain"
)

const day = 24 * time.Hour

// Report counts corrections applied in one pass.
type Report struct {
	Records                 int
	CarrierClamped          int // carrier handoff moved back to delivery
	ApprovalClamped         int // approval moved back to carrier handoff
	DeliveredBeforePurchase int // anomaly, counted but not corrected
}

// ClampAfter returns ts with every value later than the matching bound replaced
// by that bound, plus the number of replacements. Both slices must have equal length.
func ClampAfter(ts, bound []*time.Time) ([]*time.Time, int) {
	out := make([]*time.Time, len(ts))
	clamped := 0
	for i := range ts {
		out[i] = ts[i]
		if ts[i] == nil || bound[i] == nil {
			continue
		}
		if ts[i].After(*bound[i]) {
			b := *bound[i]
			out[i] = &b
			clamped++
		}
	}
	return out, clamped
}

// WholeDays returns floor((to - from) / 24h) per row, nil where either side is missing.
func WholeDays(from, to []*time.Time) []*int {
	out := make([]*int, len(from))
	for i := range from {
		if from[i] == nil || to[i] == nil {
			continue
		}
		d := DaysBetween(*from[i], *to[i])
		out[i] = &d
	}
	return out
}

// DaysBetween returns the signed number of whole days from a to b, rounded toward
// negative infinity. For non-negative spans this equals truncation.
func DaysBetween(a, b time.Time) int {
	d := b.Sub(a)
	days := d / day
	if d < 0 && d%day != 0 {
		days--
	}
	return int(days)
}

// Reconcile applies both clamps and recomputes durations and EDD fields in place.
func Reconcile(ds *domain.Dataset) Report {
	rep := Report{Records: ds.Len()}
	if rep.Records == 0 {
		return rep
	}

	purchase := ds.TimeColumn(func(r *domain.OrderItemRecord) *time.Time { return r.PurchaseAt })
	approved := ds.TimeColumn(func(r *domain.OrderItemRecord) *time.Time { return r.ApprovedAt })
	carrier := ds.TimeColumn(func(r *domain.OrderItemRecord) *time.Time { return r.CarrierAt })
	delivered := ds.TimeColumn(func(r *domain.OrderItemRecord) *time.Time { return r.DeliveredAt })
	estimated := ds.TimeColumn(func(r *domain.OrderItemRecord) *time.Time { return r.EstimatedAt })

	// Order matters: approval is bounded by the already-clamped carrier column.
	carrier, rep.CarrierClamped = ClampAfter(carrier, delivered)
	approved, rep.ApprovalClamped = ClampAfter(approved, carrier)

	approvalDays := WholeDays(purchase, approved)
	handlingDays := WholeDays(approved, carrier)
	inTransitDays := WholeDays(carrier, delivered)
	totalDays := WholeDays(purchase, delivered)
	horizonDays := WholeDays(purchase, estimated)
	eddDelta := WholeDays(estimated, delivered)

	for i := range ds.Records {
		r := &ds.Records[i]
		r.ApprovedAt = approved[i]
		r.CarrierAt = carrier[i]

		r.ApprovalDays = approvalDays[i]
		r.HandlingDays = handlingDays[i]
		r.InTransitDays = inTransitDays[i]
		r.TotalDeliveryDays = totalDays[i]
		r.EDDHorizonDays = horizonDays[i]
		r.EDDDeltaDays = eddDelta[i]

		r.LateToEDD = delivered[i] != nil && estimated[i] != nil && delivered[i].After(*estimated[i])
		r.EarlyDays, r.DaysLateToEDD = 0, 0
		if d := eddDelta[i]; d != nil {
			if *d < 0 {
				r.EarlyDays = -*d
			} else {
				r.DaysLateToEDD = *d
			}
		}

		if totalDays[i] != nil && *totalDays[i] < 0 {
			rep.DeliveredBeforePurchase++
		}
	}

	return rep
}
