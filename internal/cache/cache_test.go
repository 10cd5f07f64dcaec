package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-sla-lab/internal/domain"
)

func ptr[T any](v T) *T {
	return &v
}

func sampleDataset() *domain.Dataset {
	purchase := time.Date(2018, 5, 2, 14, 33, 12, 0, time.UTC)
	delivered := time.Date(2018, 5, 11, 9, 0, 0, 0, time.UTC)
	estimated := time.Date(2018, 5, 18, 0, 0, 0, 0, time.UTC)

	return &domain.Dataset{Records: []domain.OrderItemRecord{
		{
			OrderID:             "e481f51cbdc54678b7cc49136f2d6af7",
			OrderItemID:         1,
			ProductID:           "87285b34884572647811a353c7ac498a",
			SellerID:            "3504c0cb71d7fa48d967e0e4c94d59d9",
			CustomerID:          "9ef432eb6251297304e76186b10a928d",
			OrderStatus:         "delivered",
			PurchaseAt:          &purchase,
			ApprovedAt:          ptr(purchase.Add(10 * time.Minute)),
			CarrierAt:           ptr(purchase.Add(50 * time.Hour)),
			DeliveredAt:         &delivered,
			EstimatedAt:         &estimated,
			ApprovalDays:        ptr(0),
			HandlingDays:        ptr(2),
			InTransitDays:       ptr(6),
			TotalDeliveryDays:   ptr(8),
			EDDHorizonDays:      ptr(15),
			EDDDeltaDays:        ptr(-7),
			EarlyDays:           7,
			Price:               29.99,
			FreightValue:        8.72,
			CategoryName:        "utilidades_domesticas",
			CategoryNameEnglish: "housewares",
			WeightG:             ptr(500.0),
			LengthCm:            ptr(19.0),
			HeightCm:            ptr(8.0),
			WidthCm:             ptr(13.0),
			VolumeCm3:           ptr(1976.0),
			DensityRatio:        ptr(29.99 / (1976.0 + 1e-6)),
			CustomerState:       "SP",
			CustomerCity:        "sao paulo",
			SellerState:         "SP",
			SellerCity:          "maua",
			CustomerLat:         ptr(-23.576),
			CustomerLng:         ptr(-46.587),
			SellerLat:           ptr(-23.680),
			SellerLng:           ptr(-46.444),
			DistanceKm:          ptr(18.6327),
			OrderYear:           2018,
			OrderMonth:          5,
			OrderDOW:            4,
			YearMonth:           "2018-05",
			PerformanceCategory: domain.PerformanceVeryEarly,
			PriceBin:            "Very Low",
			DistanceBin:         "Very Short",
		},
		{
			OrderID:             "53cdb2fc8bc7dce0b6741e2150273451",
			OrderItemID:         2,
			OrderStatus:         "delivered",
			PurchaseAt:          &purchase,
			DeliveredAt:         &delivered,
			EstimatedAt:         &estimated,
			LateToEDD:           true,
			Price:               118.7,
			CustomerState:       "BA",
			PerformanceCategory: domain.PerformanceLate,
			PriceBin:            "Medium",
		},
	}}
}

func TestStore_RoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	ds := sampleDataset()

	require.False(t, store.Exists())
	require.NoError(t, store.Save(ds))
	require.True(t, store.Exists())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, ds.Len(), got.Len())
	assert.Equal(t, ds.Records, got.Records)
}

func TestStore_RoundTripEmpty(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save(&domain.Dataset{}))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestStore_LoadMissing(t *testing.T) {
	_, err := NewStore(t.TempDir()).Load()
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestStore_LoadCorrupt(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, os.WriteFile(store.Path(), []byte("not a cache file"), 0o644))

	_, err := store.Load()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss))
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestStore_LoadTruncated(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save(sampleDataset()))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), data[:len(data)/2], 0o644))

	_, err = store.Load()
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestStore_VersionMismatch(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.save(sampleDataset(), formatVersion+1))

	_, err := store.Load()
	assert.True(t, errors.Is(err, ErrVersionMismatch))
}

func TestStore_FileIsParquet(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save(sampleDataset()))

	assert.Equal(t, "df_delivery.parquet", filepath.Base(store.Path()))
	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, "PAR1", string(data[:4]))
	assert.Equal(t, "PAR1", string(data[len(data)-4:]))
}

func TestStore_SaveOverwrites(t *testing.T) {
	store := NewStore(t.TempDir())
	ds := sampleDataset()
	require.NoError(t, store.Save(ds))

	ds.Head(1)
	require.NoError(t, store.Save(ds))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
}
