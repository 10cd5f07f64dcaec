package cache

import (
	"time"

	"delivery-sla-lab/internal/domain"
)

// formatVersion is bumped whenever the column set changes.
const formatVersion = 2

// deliveryRow is the on-disk row. Nullable record fields are OPTIONAL columns;
// timestamps are stored as UTC microseconds.
type deliveryRow struct {
	OrderID     string `parquet:"name=order_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrderItemID int32  `parquet:"name=order_item_id, type=INT32"`
	ProductID   string `parquet:"name=product_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	SellerID    string `parquet:"name=seller_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	CustomerID  string `parquet:"name=customer_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrderStatus string `parquet:"name=order_status, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`

	PurchaseAt  *int64 `parquet:"name=order_purchase_timestamp, type=INT64, convertedtype=TIMESTAMP_MICROS, repetitiontype=OPTIONAL"`
	ApprovedAt  *int64 `parquet:"name=order_approved_at, type=INT64, convertedtype=TIMESTAMP_MICROS, repetitiontype=OPTIONAL"`
	CarrierAt   *int64 `parquet:"name=order_delivered_carrier_date, type=INT64, convertedtype=TIMESTAMP_MICROS, repetitiontype=OPTIONAL"`
	DeliveredAt *int64 `parquet:"name=order_delivered_customer_date, type=INT64, convertedtype=TIMESTAMP_MICROS, repetitiontype=OPTIONAL"`
	EstimatedAt *int64 `parquet:"name=order_estimated_delivery_date, type=INT64, convertedtype=TIMESTAMP_MICROS, repetitiontype=OPTIONAL"`

	ApprovalDays      *int32 `parquet:"name=approval_days, type=INT32, repetitiontype=OPTIONAL"`
	HandlingDays      *int32 `parquet:"name=handling_days, type=INT32, repetitiontype=OPTIONAL"`
	InTransitDays     *int32 `parquet:"name=in_transit_days, type=INT32, repetitiontype=OPTIONAL"`
	TotalDeliveryDays *int32 `parquet:"name=total_delivery_days, type=INT32, repetitiontype=OPTIONAL"`
	EDDHorizonDays    *int32 `parquet:"name=edd_horizon_days, type=INT32, repetitiontype=OPTIONAL"`
	EDDDeltaDays      *int32 `parquet:"name=edd_delta_days, type=INT32, repetitiontype=OPTIONAL"`

	LateToEDD     bool  `parquet:"name=late_to_edd, type=BOOLEAN"`
	EarlyDays     int32 `parquet:"name=early_days, type=INT32"`
	DaysLateToEDD int32 `parquet:"name=days_late_to_edd, type=INT32"`

	Price        float64 `parquet:"name=price, type=DOUBLE"`
	FreightValue float64 `parquet:"name=freight_value, type=DOUBLE"`

	CategoryName        string   `parquet:"name=product_category_name, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	CategoryNameEnglish string   `parquet:"name=product_category_name_english, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	WeightG             *float64 `parquet:"name=product_weight_g, type=DOUBLE, repetitiontype=OPTIONAL"`
	LengthCm            *float64 `parquet:"name=product_length_cm, type=DOUBLE, repetitiontype=OPTIONAL"`
	HeightCm            *float64 `parquet:"name=product_height_cm, type=DOUBLE, repetitiontype=OPTIONAL"`
	WidthCm             *float64 `parquet:"name=product_width_cm, type=DOUBLE, repetitiontype=OPTIONAL"`
	VolumeCm3           *float64 `parquet:"name=product_volume_cm3, type=DOUBLE, repetitiontype=OPTIONAL"`
	DensityRatio        *float64 `parquet:"name=density_ratio, type=DOUBLE, repetitiontype=OPTIONAL"`

	CustomerState string   `parquet:"name=customer_state, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	CustomerCity  string   `parquet:"name=customer_city, type=BYTE_ARRAY, convertedtype=UTF8"`
	SellerState   string   `parquet:"name=seller_state, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SellerCity    string   `parquet:"name=seller_city, type=BYTE_ARRAY, convertedtype=UTF8"`
	CustomerLat   *float64 `parquet:"name=customer_lat, type=DOUBLE, repetitiontype=OPTIONAL"`
	CustomerLng   *float64 `parquet:"name=customer_lng, type=DOUBLE, repetitiontype=OPTIONAL"`
	SellerLat     *float64 `parquet:"name=seller_lat, type=DOUBLE, repetitiontype=OPTIONAL"`
	SellerLng     *float64 `parquet:"name=seller_lng, type=DOUBLE, repetitiontype=OPTIONAL"`
	DistanceKm    *float64 `parquet:"name=distance_km, type=DOUBLE, repetitiontype=OPTIONAL"`

	OrderYear  int32  `parquet:"name=order_year, type=INT32"`
	OrderMonth int32  `parquet:"name=order_month, type=INT32"`
	OrderDOW   int32  `parquet:"name=order_dow, type=INT32"`
	YearMonth  string `parquet:"name=year_month, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`

	PerformanceCategory string `parquet:"name=performance_category, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	PriceBin            string `parquet:"name=price_bin, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	DistanceBin         string `parquet:"name=distance_bin, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

func micros(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UnixMicro()
	return &v
}

func fromMicros(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.UnixMicro(*v).UTC()
	return &t
}

func int32Ptr(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func toRow(r *domain.OrderItemRecord) deliveryRow {
	return deliveryRow{
		OrderID:     r.OrderID,
		OrderItemID: int32(r.OrderItemID),
		ProductID:   r.ProductID,
		SellerID:    r.SellerID,
		CustomerID:  r.CustomerID,
		OrderStatus: r.OrderStatus,

		PurchaseAt:  micros(r.PurchaseAt),
		ApprovedAt:  micros(r.ApprovedAt),
		CarrierAt:   micros(r.CarrierAt),
		DeliveredAt: micros(r.DeliveredAt),
		EstimatedAt: micros(r.EstimatedAt),

		ApprovalDays:      int32Ptr(r.ApprovalDays),
		HandlingDays:      int32Ptr(r.HandlingDays),
		InTransitDays:     int32Ptr(r.InTransitDays),
		TotalDeliveryDays: int32Ptr(r.TotalDeliveryDays),
		EDDHorizonDays:    int32Ptr(r.EDDHorizonDays),
		EDDDeltaDays:      int32Ptr(r.EDDDeltaDays),

		LateToEDD:     r.LateToEDD,
		EarlyDays:     int32(r.EarlyDays),
		DaysLateToEDD: int32(r.DaysLateToEDD),

		Price:        r.Price,
		FreightValue: r.FreightValue,

		CategoryName:        r.CategoryName,
		CategoryNameEnglish: r.CategoryNameEnglish,
		WeightG:             r.WeightG,
		LengthCm:            r.LengthCm,
		HeightCm:            r.HeightCm,
		WidthCm:             r.WidthCm,
		VolumeCm3:           r.VolumeCm3,
		DensityRatio:        r.DensityRatio,

		CustomerState: r.CustomerState,
		CustomerCity:  r.CustomerCity,
		SellerState:   r.SellerState,
		SellerCity:    r.SellerCity,
		CustomerLat:   r.CustomerLat,
		CustomerLng:   r.CustomerLng,
		SellerLat:     r.SellerLat,
		SellerLng:     r.SellerLng,
		DistanceKm:    r.DistanceKm,

		OrderYear:  int32(r.OrderYear),
		OrderMonth: int32(r.OrderMonth),
		OrderDOW:   int32(r.OrderDOW),
		YearMonth:  r.YearMonth,

		PerformanceCategory: string(r.PerformanceCategory),
		PriceBin:            r.PriceBin,
		DistanceBin:         r.DistanceBin,
	}
}

func (row *deliveryRow) toRecord() domain.OrderItemRecord {
	return domain.OrderItemRecord{
		OrderID:     row.OrderID,
		OrderItemID: int(row.OrderItemID),
		ProductID:   row.ProductID,
		SellerID:    row.SellerID,
		CustomerID:  row.CustomerID,
		OrderStatus: row.OrderStatus,

		PurchaseAt:  fromMicros(row.PurchaseAt),
		ApprovedAt:  fromMicros(row.ApprovedAt),
		CarrierAt:   fromMicros(row.CarrierAt),
		DeliveredAt: fromMicros(row.DeliveredAt),
		EstimatedAt: fromMicros(row.EstimatedAt),

		ApprovalDays:      intPtr(row.ApprovalDays),
		HandlingDays:      intPtr(row.HandlingDays),
		InTransitDays:     intPtr(row.InTransitDays),
		TotalDeliveryDays: intPtr(row.TotalDeliveryDays),
		EDDHorizonDays:    intPtr(row.EDDHorizonDays),
		EDDDeltaDays:      intPtr(row.EDDDeltaDays),

		LateToEDD:     row.LateToEDD,
		EarlyDays:     int(row.EarlyDays),
		DaysLateToEDD: int(row.DaysLateToEDD),

		Price:        row.Price,
		FreightValue: row.FreightValue,

		CategoryName:        row.CategoryName,
		CategoryNameEnglish: row.CategoryNameEnglish,
		WeightG:             row.WeightG,
		LengthCm:            row.LengthCm,
		HeightCm:            row.HeightCm,
		WidthCm:             row.WidthCm,
		VolumeCm3:           row.VolumeCm3,
		DensityRatio:        row.DensityRatio,

		CustomerState: row.CustomerState,
		CustomerCity:  row.CustomerCity,
		SellerState:   row.SellerState,
		SellerCity:    row.SellerCity,
		CustomerLat:   row.CustomerLat,
		CustomerLng:   row.CustomerLng,
		SellerLat:     row.SellerLat,
		SellerLng:     row.SellerLng,
		DistanceKm:    row.DistanceKm,

		OrderYear:  int(row.OrderYear),
		OrderMonth: int(row.OrderMonth),
		OrderDOW:   int(row.OrderDOW),
		YearMonth:  row.YearMonth,

		PerformanceCategory: domain.PerformanceCategory(row.PerformanceCategory),
		PriceBin:            row.PriceBin,
		DistanceBin:         row.DistanceBin,
	}
}
