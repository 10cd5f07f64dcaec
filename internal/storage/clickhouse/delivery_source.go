package clickhouse

import (
	"context"
	"fmt"
	"time"

	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/storage"
)

// DeliverySource implements storage.DeliverySource over the warehouse star schema.
type DeliverySource struct {
	conn    *Conn
	dataset string // warehouse dataset holding fact_order_items and dims
}

// NewDeliverySource creates a source reading from the given warehouse dataset.
func NewDeliverySource(conn *Conn, dataset string) *DeliverySource {
	return &DeliverySource{conn: conn, dataset: dataset}
}

// Compile-time interface check.
var _ storage.DeliverySource = (*DeliverySource)(nil)

// deliveryQuery joins the fact table with orders, products, customers, sellers
// and geolocation (twice). Durations, categories and buckets are computed in-query;
// the reconciler recomputes durations after correcting timestamps.
const deliveryQuery = `
WITH order_timeline AS (
	SELECT
		toString(o.order_id) AS order_id,
		toString(o.order_status) AS order_status,
		toInt32(oi.order_item_id) AS order_item_id,
		toString(oi.product_sk) AS product_id,
		toString(oi.seller_sk) AS seller_id,
		toString(oi.customer_sk) AS customer_id,

		CAST(o.order_purchase_timestamp AS Nullable(DateTime('UTC'))) AS purchase_at,
		CAST(o.order_approved_at AS Nullable(DateTime('UTC'))) AS approved_at,
		CAST(o.order_delivered_carrier_date AS Nullable(DateTime('UTC'))) AS carrier_at,
		CAST(o.order_delivered_customer_date AS Nullable(DateTime('UTC'))) AS delivered_at,
		CAST(o.order_estimated_delivery_date AS Nullable(DateTime('UTC'))) AS estimated_at,

		CAST(dateDiff('day', toDate(purchase_at), toDate(approved_at)) AS Nullable(Int32)) AS approval_days,
		CAST(dateDiff('day', toDate(approved_at), toDate(carrier_at)) AS Nullable(Int32)) AS handling_days,
		CAST(dateDiff('day', toDate(carrier_at), toDate(delivered_at)) AS Nullable(Int32)) AS in_transit_days,
		CAST(dateDiff('day', toDate(purchase_at), toDate(delivered_at)) AS Nullable(Int32)) AS total_delivery_days,
		CAST(dateDiff('day', toDate(purchase_at), toDate(estimated_at)) AS Nullable(Int32)) AS edd_horizon_days,

		toUInt8(ifNull(delivered_at > estimated_at, 0)) AS late_to_edd_flag,
		CAST(dateDiff('day', toDate(estimated_at), toDate(delivered_at)) AS Nullable(Int32)) AS edd_delta_days,

		toFloat64(oi.price) AS price,
		toFloat64(oi.freight_value) AS freight_value,
		toString(ifNull(p.product_category_name, '')) AS category_name,
		toString(ifNull(p.product_category_name_english, '')) AS category_name_english,
		CAST(p.product_weight_g AS Nullable(Float64)) AS weight_g,
		CAST(p.product_length_cm AS Nullable(Float64)) AS length_cm,
		CAST(p.product_height_cm AS Nullable(Float64)) AS height_cm,
		CAST(p.product_width_cm AS Nullable(Float64)) AS width_cm,

		toString(ifNull(c.customer_state, '')) AS customer_state,
		toString(ifNull(c.customer_city, '')) AS customer_city,
		toString(ifNull(s.seller_state, '')) AS seller_state,
		toString(ifNull(s.seller_city, '')) AS seller_city,
		CAST(c_geo.geolocation_lat AS Nullable(Float64)) AS customer_lat,
		CAST(c_geo.geolocation_lng AS Nullable(Float64)) AS customer_lng,
		CAST(s_geo.geolocation_lat AS Nullable(Float64)) AS seller_lat,
		CAST(s_geo.geolocation_lng AS Nullable(Float64)) AS seller_lng,

		CAST(toFloat64(geoDistance(seller_lng, seller_lat, customer_lng, customer_lat)) / 1000 AS Nullable(Float64)) AS distance_km,

		toInt32(toYear(assumeNotNull(purchase_at))) AS order_year,
		toInt32(toMonth(assumeNotNull(purchase_at))) AS order_month,
		toInt32(toDayOfWeek(assumeNotNull(purchase_at), 3)) AS order_dow,
		formatDateTime(assumeNotNull(purchase_at), '%%Y-%%m') AS year_month
	FROM %[1]s AS oi
	INNER JOIN %[2]s AS o ON oi.order_sk = o.order_sk
	LEFT JOIN %[3]s AS p ON oi.product_sk = p.product_sk
	LEFT JOIN %[4]s AS c ON oi.customer_sk = c.customer_sk
	LEFT JOIN %[5]s AS s ON oi.seller_sk = s.seller_sk
	LEFT JOIN %[6]s AS c_geo ON c.customer_zip_code_prefix = c_geo.geolocation_zip_code_prefix
	LEFT JOIN %[6]s AS s_geo ON s.seller_zip_code_prefix = s_geo.geolocation_zip_code_prefix
	WHERE o.order_status = 'delivered'
		AND o.order_delivered_customer_date IS NOT NULL
		AND o.order_estimated_delivery_date IS NOT NULL
		AND o.order_purchase_timestamp >= ?
)
SELECT
	*,
	multiIf(
		assumeNotNull(edd_delta_days) <= -3, 'very_early',
		assumeNotNull(edd_delta_days) <= 0, 'on_time',
		assumeNotNull(edd_delta_days) <= 7, 'late',
		'very_late'
	) AS performance_category,
	multiIf(
		price <= 30, 'Very Low',
		price <= 60, 'Low',
		price <= 120, 'Medium',
		price <= 250, 'High',
		'Very High'
	) AS price_bin
FROM order_timeline
ORDER BY purchase_at DESC, order_id ASC, order_item_id ASC
%[7]s
SETTINGS join_use_nulls = 1
`

// buildDeliveryQuery renders the extract query for the dataset.
func buildDeliveryQuery(dataset string, limit int) (string, error) {
	tables := []string{"fact_order_items", "dim_orders", "dim_product", "dim_customer", "dim_seller", "dim_geolocation"}
	args := make([]interface{}, 0, len(tables)+1)
	for _, t := range tables {
		q, err := qualify(dataset, t)
		if err != nil {
			return "", err
		}
		args = append(args, q)
	}

	limitClause := ""
	if limit > 0 {
		limitClause = fmt.Sprintf("LIMIT %d", limit)
	}
	args = append(args, limitClause)

	return fmt.Sprintf(deliveryQuery, args...), nil
}

// FetchDeliveries implements storage.DeliverySource.
func (s *DeliverySource) FetchDeliveries(ctx context.Context, q storage.FetchQuery) ([]domain.OrderItemRecord, error) {
	if q.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit", storage.ErrInvalidInput)
	}
	query, err := buildDeliveryQuery(s.dataset, q.Limit)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, query, q.Since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

// deliveryRow mirrors the query columns in order.
type deliveryRow struct {
	orderID, orderStatus                      string
	orderItemID                               int32
	productID, sellerID, customerID           string
	purchaseAt, approvedAt, carrierAt         *time.Time
	deliveredAt, estimatedAt                  *time.Time
	approvalDays, handlingDays, inTransitDays *int32
	totalDays, horizonDays                    *int32
	lateFlag                                  uint8
	eddDelta                                  *int32
	price, freight                            float64
	categoryName, categoryNameEnglish         string
	weight, length, height, width             *float64
	customerState, customerCity               string
	sellerState, sellerCity                   string
	customerLat, customerLng                  *float64
	sellerLat, sellerLng                      *float64
	distanceKm                                *float64
	orderYear, orderMonth, orderDOW           int32
	yearMonth                                 string
	performanceCategory, priceBin             string
}

func (r *deliveryRow) dest() []interface{} {
	return []interface{}{
		&r.orderID, &r.orderStatus, &r.orderItemID, &r.productID, &r.sellerID, &r.customerID,
		&r.purchaseAt, &r.approvedAt, &r.carrierAt, &r.deliveredAt, &r.estimatedAt,
		&r.approvalDays, &r.handlingDays, &r.inTransitDays, &r.totalDays, &r.horizonDays,
		&r.lateFlag, &r.eddDelta,
		&r.price, &r.freight, &r.categoryName, &r.categoryNameEnglish,
		&r.weight, &r.length, &r.height, &r.width,
		&r.customerState, &r.customerCity, &r.sellerState, &r.sellerCity,
		&r.customerLat, &r.customerLng, &r.sellerLat, &r.sellerLng,
		&r.distanceKm,
		&r.orderYear, &r.orderMonth, &r.orderDOW, &r.yearMonth,
		&r.performanceCategory, &r.priceBin,
	}
}

func (r *deliveryRow) record() domain.OrderItemRecord {
	rec := domain.OrderItemRecord{
		OrderID:             r.orderID,
		OrderItemID:         int(r.orderItemID),
		ProductID:           r.productID,
		SellerID:            r.sellerID,
		CustomerID:          r.customerID,
		OrderStatus:         r.orderStatus,
		PurchaseAt:          utc(r.purchaseAt),
		ApprovedAt:          utc(r.approvedAt),
		CarrierAt:           utc(r.carrierAt),
		DeliveredAt:         utc(r.deliveredAt),
		EstimatedAt:         utc(r.estimatedAt),
		ApprovalDays:        intPtr(r.approvalDays),
		HandlingDays:        intPtr(r.handlingDays),
		InTransitDays:       intPtr(r.inTransitDays),
		TotalDeliveryDays:   intPtr(r.totalDays),
		EDDHorizonDays:      intPtr(r.horizonDays),
		LateToEDD:           r.lateFlag == 1,
		EDDDeltaDays:        intPtr(r.eddDelta),
		Price:               r.price,
		FreightValue:        r.freight,
		CategoryName:        r.categoryName,
		CategoryNameEnglish: r.categoryNameEnglish,
		WeightG:             r.weight,
		LengthCm:            r.length,
		HeightCm:            r.height,
		WidthCm:             r.width,
		CustomerState:       r.customerState,
		CustomerCity:        r.customerCity,
		SellerState:         r.sellerState,
		SellerCity:          r.sellerCity,
		CustomerLat:         r.customerLat,
		CustomerLng:         r.customerLng,
		SellerLat:           r.sellerLat,
		SellerLng:           r.sellerLng,
		DistanceKm:          r.distanceKm,
		OrderYear:           int(r.orderYear),
		OrderMonth:          int(r.orderMonth),
		OrderDOW:            int(r.orderDOW),
		YearMonth:           r.yearMonth,
		PerformanceCategory: domain.PerformanceCategory(r.performanceCategory),
		PriceBin:            r.priceBin,
	}
	if d := rec.EDDDeltaDays; d != nil {
		if *d < 0 {
			rec.EarlyDays = -*d
		} else {
			rec.DaysLateToEDD = *d
		}
	}
	return rec
}

func scanDeliveries(rows chRows) ([]domain.OrderItemRecord, error) {
	var records []domain.OrderItemRecord
	for rows.Next() {
		var r deliveryRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("scan delivery row: %w", err)
		}
		records = append(records, r.record())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery rows: %w", err)
	}
	return records, nil
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
