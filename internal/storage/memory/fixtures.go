package memory

import (
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"delivery-sla-lab/internal/domain"
)

// FixtureOptions controls synthetic order generation.
type FixtureOptions struct {
	Seed   int64
	Orders int
	From   time.Time
	To     time.Time
}

// DefaultFixtureOptions covers the 2017-2018 window the analysis focuses on.
func DefaultFixtureOptions() FixtureOptions {
	return FixtureOptions{
		Seed:   42,
		Orders: 5000,
		From:   time.Date(2016, 10, 1, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2018, 8, 31, 0, 0, 0, 0, time.UTC),
	}
}

type fixtureState struct {
	code     string
	city     string
	lat, lng float64
	weight   int // relative order volume
	lateBias int // extra transit days on bad days
}

var fixtureStates = []fixtureState{
	{"SP", "sao paulo", -23.55, -46.63, 40, 0},
	{"RJ", "rio de janeiro", -22.91, -43.17, 13, 3},
	{"MG", "belo horizonte", -19.92, -43.94, 12, 1},
	{"RS", "porto alegre", -30.03, -51.23, 6, 2},
	{"PR", "curitiba", -25.43, -49.27, 5, 1},
	{"SC", "florianopolis", -27.59, -48.55, 4, 2},
	{"BA", "salvador", -12.97, -38.50, 4, 5},
	{"DF", "brasilia", -15.79, -47.88, 2, 2},
	{"GO", "goiania", -16.68, -49.25, 2, 2},
	{"ES", "vitoria", -20.32, -40.34, 2, 3},
	{"PE", "recife", -8.05, -34.90, 2, 5},
	{"CE", "fortaleza", -3.73, -38.52, 2, 6},
	{"MA", "sao luis", -2.53, -44.30, 1, 8},
	{"AL", "maceio", -9.67, -35.74, 1, 9},
}

var fixtureCategories = []struct{ pt, en string }{
	{"cama_mesa_banho", "bed_bath_table"},
	{"beleza_saude", "health_beauty"},
	{"esporte_lazer", "sports_leisure"},
	{"moveis_decoracao", "furniture_decor"},
	{"informatica_acessorios", "computers_accessories"},
	{"utilidades_domesticas", "housewares"},
	{"relogios_presentes", "watches_gifts"},
	{"telefonia", "telephony"},
	{"ferramentas_jardim", "garden_tools"},
	{"automotivo", "auto"},
}

// GenerateDeliveries builds raw warehouse rows resembling a marketplace extract.
// The same options always produce the same rows. A small share of rows carry
// the anomalies the reconciler corrects (carrier after delivery, approval after
// carrier) and some are not delivered.
func GenerateDeliveries(opts FixtureOptions) []domain.OrderItemRecord {
	f := gofakeit.New(opts.Seed)

	totalWeight := 0
	for _, s := range fixtureStates {
		totalWeight += s.weight
	}
	pickState := func() fixtureState {
		n := f.Number(1, totalWeight)
		for _, s := range fixtureStates {
			n -= s.weight
			if n <= 0 {
				return s
			}
		}
		return fixtureStates[0]
	}

	var rows []domain.OrderItemRecord
	for i := 0; i < opts.Orders; i++ {
		customer := pickState()
		seller := fixtureStates[0]
		if f.Number(1, 100) > 70 {
			seller = pickState()
		}

		purchase := f.DateRange(opts.From, opts.To).UTC().Truncate(time.Second)
		approved := purchase.Add(time.Duration(f.Number(5, 48*60)) * time.Minute)
		carrier := approved.Add(time.Duration(f.Number(12, 6*24)) * time.Hour)

		custLat := customer.lat + f.Float64Range(-0.3, 0.3)
		custLng := customer.lng + f.Float64Range(-0.3, 0.3)
		sellLat := seller.lat + f.Float64Range(-0.3, 0.3)
		sellLng := seller.lng + f.Float64Range(-0.3, 0.3)
		km := 0.0
		if d := distanceKm(&sellLat, &sellLng, &custLat, &custLng); d != nil {
			km = *d
		}

		transitDays := 2 + int(km/300) + f.Number(0, 6)
		if f.Number(1, 100) <= 15 {
			transitDays += customer.lateBias + f.Number(0, 10)
		}
		delivered := carrier.Add(time.Duration(transitDays)*24*time.Hour + time.Duration(f.Number(0, 600))*time.Minute)

		purchaseDay := time.Date(purchase.Year(), purchase.Month(), purchase.Day(), 0, 0, 0, 0, time.UTC)
		estimated := purchaseDay.AddDate(0, 0, f.Number(15, 30))

		status := domain.OrderStatusDelivered
		switch roll := f.Number(1, 100); {
		case roll <= 2:
			status = "canceled"
		case roll <= 3:
			status = "shipped"
		}

		// Anomalies the reconciler corrects.
		switch roll := f.Number(1, 200); {
		case roll <= 3:
			carrier = delivered.Add(time.Duration(f.Number(1, 72)) * time.Hour)
		case roll <= 5:
			approved = carrier.Add(time.Duration(f.Number(1, 48)) * time.Hour)
		}

		orderID := strings.ReplaceAll(f.UUID(), "-", "")
		customerID := strings.ReplaceAll(f.UUID(), "-", "")
		sellerID := strings.ReplaceAll(f.UUID(), "-", "")

		items := 1
		if f.Number(1, 100) > 85 {
			items = f.Number(2, 3)
		}
		for item := 1; item <= items; item++ {
			cat := fixtureCategories[f.Number(0, len(fixtureCategories)-1)]
			r := domain.OrderItemRecord{
				OrderID:             orderID,
				OrderItemID:         item,
				ProductID:           strings.ReplaceAll(f.UUID(), "-", ""),
				SellerID:            sellerID,
				CustomerID:          customerID,
				OrderStatus:         status,
				PurchaseAt:          timePtr(purchase),
				ApprovedAt:          timePtr(approved),
				CarrierAt:           timePtr(carrier),
				EstimatedAt:         timePtr(estimated),
				Price:               roundCents(fixturePrice(f)),
				FreightValue:        roundCents(f.Float64Range(5, 60)),
				CategoryName:        cat.pt,
				CategoryNameEnglish: cat.en,
				CustomerState:       customer.code,
				CustomerCity:        customer.city,
				SellerState:         seller.code,
				SellerCity:          seller.city,
				CustomerLat:         floatPtr(custLat),
				CustomerLng:         floatPtr(custLng),
				SellerLat:           floatPtr(sellLat),
				SellerLng:           floatPtr(sellLng),
			}
			if status == domain.OrderStatusDelivered {
				r.DeliveredAt = timePtr(delivered)
			}
			if f.Number(1, 100) > 2 {
				r.WeightG = floatPtr(float64(f.Number(100, 15000)))
				r.LengthCm = floatPtr(float64(f.Number(10, 100)))
				r.HeightCm = floatPtr(float64(f.Number(2, 60)))
				r.WidthCm = floatPtr(float64(f.Number(8, 80)))
			}
			rows = append(rows, r)
		}
	}
	return rows
}

// fixturePrice skews toward cheap items with a long tail.
func fixturePrice(f *gofakeit.Faker) float64 {
	switch roll := f.Number(1, 100); {
	case roll <= 35:
		return f.Float64Range(5, 40)
	case roll <= 75:
		return f.Float64Range(40, 130)
	case roll <= 95:
		return f.Float64Range(130, 400)
	default:
		return f.Float64Range(400, 3000)
	}
}

func roundCents(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func floatPtr(v float64) *float64 {
	return &v
}
