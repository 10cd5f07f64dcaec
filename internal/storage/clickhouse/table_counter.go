package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"delivery-sla-lab/internal/storage"
)

// TableCounter implements storage.TableCounter using count().
type TableCounter struct {
	conn *Conn
}

// NewTableCounter creates a new TableCounter.
func NewTableCounter(conn *Conn) *TableCounter {
	return &TableCounter{conn: conn}
}

// Compile-time interface check.
var _ storage.TableCounter = (*TableCounter)(nil)

// CountRows accepts "table" or "dataset.table".
func (c *TableCounter) CountRows(ctx context.Context, table string) (int64, error) {
	dataset, name := "", table
	if i := strings.IndexByte(table, '.'); i >= 0 {
		dataset, name = table[:i], table[i+1:]
	}
	qualified, err := qualify(dataset, name)
	if err != nil {
		return 0, err
	}

	var count uint64
	if err := c.conn.QueryRow(ctx, "SELECT count() FROM "+qualified).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", qualified, err)
	}
	return int64(count), nil
}
