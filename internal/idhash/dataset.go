package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"delivery-sla-lab/internal/domain"
)

// ComputeRecordKey returns the natural key of an order line item.
// Formula: order_id|order_item_id
func ComputeRecordKey(orderID string, orderItemID int) string {
	return fmt.Sprintf("%s|%d", orderID, orderItemID)
}

// ComputeDatasetVersion computes a deterministic fingerprint of the delivery
// table using SHA256 over the sorted per-row lines
// order_id|order_item_id|purchase|delivered|estimated.
// Row order does not affect the result. Returns hex-encoded hash (64 characters).
func ComputeDatasetVersion(ds *domain.Dataset) string {
	lines := make([]string, 0, ds.Len())
	if ds != nil {
		for i := range ds.Records {
			r := &ds.Records[i]
			lines = append(lines, fmt.Sprintf("%s|%s|%s|%s",
				ComputeRecordKey(r.OrderID, r.OrderItemID),
				unixOrEmpty(r.PurchaseAt),
				unixOrEmpty(r.DeliveredAt),
				unixOrEmpty(r.EstimatedAt),
			))
		}
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func unixOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return fmt.Sprintf("%d", t.Unix())
}
