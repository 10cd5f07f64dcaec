package domain

import "time"

// OrderItemRecord is one delivered order line item after the warehouse join.
// Corresponds to the flat delivery extract (one row per order_id, order_item_id).
type OrderItemRecord struct {
	OrderID     string
	OrderItemID int
	ProductID   string
	SellerID    string
	CustomerID  string
	OrderStatus string // "delivered" after extraction filter

	// Lifecycle timestamps (nullable in source)
	PurchaseAt  *time.Time
	ApprovedAt  *time.Time
	CarrierAt   *time.Time // handed to carrier
	DeliveredAt *time.Time // delivered to customer
	EstimatedAt *time.Time // promised delivery date (EDD)

	// Stage durations in whole days, nil when an endpoint is missing
	ApprovalDays      *int // approved - purchase
	HandlingDays      *int // carrier - approved
	InTransitDays     *int // delivered - carrier
	TotalDeliveryDays *int // delivered - purchase
	EDDHorizonDays    *int // estimated - purchase

	// SLA against EDD
	LateToEDD     bool // delivered > estimated
	EDDDeltaDays  *int // delivered - estimated, negative = early
	EarlyDays     int  // max(-delta, 0)
	DaysLateToEDD int  // max(delta, 0)

	Price        float64
	FreightValue float64

	// Product
	CategoryName        string
	CategoryNameEnglish string
	WeightG             *float64
	LengthCm            *float64
	HeightCm            *float64
	WidthCm             *float64
	VolumeCm3           *float64 // length * width * height
	DensityRatio        *float64 // price / (volume + epsilon)

	// Geography
	CustomerState string
	CustomerCity  string
	SellerState   string
	SellerCity    string
	CustomerLat   *float64
	CustomerLng   *float64
	SellerLat     *float64
	SellerLng     *float64
	DistanceKm    *float64 // seller to customer, nil without geolocation match

	// Temporal buckets (purchase timestamp, UTC)
	OrderYear  int
	OrderMonth int
	OrderDOW   int    // 1 = Sunday .. 7 = Saturday
	YearMonth  string // "2018-03"

	// Categorical labels
	PerformanceCategory PerformanceCategory
	PriceBin            string
	DistanceBin         string
}

// Dataset is the in-memory delivery table that flows through the analysis stages.
type Dataset struct {
	Records []OrderItemRecord
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Float64Column returns a column of nullable float values selected by fn.
func (d *Dataset) Float64Column(fn func(*OrderItemRecord) *float64) []*float64 {
	col := make([]*float64, len(d.Records))
	for i := range d.Records {
		col[i] = fn(&d.Records[i])
	}
	return col
}

// TimeColumn returns a column of nullable timestamps selected by fn.
func (d *Dataset) TimeColumn(fn func(*OrderItemRecord) *time.Time) []*time.Time {
	col := make([]*time.Time, len(d.Records))
	for i := range d.Records {
		col[i] = fn(&d.Records[i])
	}
	return col
}

// Filter keeps only records for which keep returns true. Order is preserved.
func (d *Dataset) Filter(keep func(*OrderItemRecord) bool) int {
	kept := d.Records[:0]
	for i := range d.Records {
		if keep(&d.Records[i]) {
			kept = append(kept, d.Records[i])
		}
	}
	removed := len(d.Records) - len(kept)
	d.Records = kept
	return removed
}

// Head truncates the dataset to at most n records. n <= 0 is a no-op.
func (d *Dataset) Head(n int) {
	if n > 0 && n < len(d.Records) {
		d.Records = d.Records[:n]
	}
}

// Order status constants
const (
	OrderStatusDelivered = "delivered"
)
