package features

import (
	"fmt"
	"time"

	"delivery-sla-lab/internal/domain"
)

// DensityEpsilon keeps the density ratio finite for zero-volume products.
const DensityEpsilon = 1e-6

// Volume returns length * width * height, nil if any dimension is missing.
func Volume(length, width, height *float64) *float64 {
	if length == nil || width == nil || height == nil {
		return nil
	}
	v := *length * *width * *height
	return &v
}

// DensityRatio returns price / (volume + DensityEpsilon), nil without a volume.
func DensityRatio(price float64, volume *float64) *float64 {
	if volume == nil {
		return nil
	}
	d := price / (*volume + DensityEpsilon)
	return &d
}

// DayOfWeek maps a timestamp to 1 = Sunday .. 7 = Saturday.
func DayOfWeek(t time.Time) int {
	return int(t.Weekday()) + 1
}

// YearMonth formats the "YYYY-MM" trend key.
func YearMonth(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// Compute adds volume, density and temporal buckets in place.
// Distance comes from the source and is left untouched.
func Compute(ds *domain.Dataset) {
	for i := range ds.Records {
		r := &ds.Records[i]

		r.VolumeCm3 = Volume(r.LengthCm, r.WidthCm, r.HeightCm)
		r.DensityRatio = DensityRatio(r.Price, r.VolumeCm3)

		if r.PurchaseAt != nil {
			p := r.PurchaseAt.UTC()
			r.OrderYear = p.Year()
			r.OrderMonth = int(p.Month())
			r.OrderDOW = DayOfWeek(p)
			r.YearMonth = YearMonth(p)
		}
	}
}

// DayNames indexes weekday names by DayOfWeek value.
var DayNames = map[int]string{
	1: "Sunday",
	2: "Monday",
	3: "Tuesday",
	4: "Wednesday",
	5: "Thursday",
	6: "Friday",
	7: "Saturday",
}
