package fleet

import (
	"sort"

	"github.com/shopspring/decimal"
)

// FuelStats summarizes the fuel records of one vehicle
type FuelStats struct {
	RecordCount          int              `json:"record_count"`
	TotalLiters          decimal.Decimal  `json:"total_liters"`
	TotalCost            decimal.Decimal  `json:"total_cost"`
	AveragePricePerLiter decimal.Decimal  `json:"average_price_per_liter"`
	KmDriven             int              `json:"km_driven"`
	ConsumptionPer100Km  *decimal.Decimal `json:"consumption_per_100km,omitempty"`
}

var hundred = decimal.NewFromInt(100)

// ComputeFuelStats aggregates records in odometer order. Consumption uses the
// liters bought after the first record over the distance between the first
// and last reading, so the first fill is never counted.
func ComputeFuelStats(records []FuelRecord) FuelStats {
	stats := FuelStats{
		RecordCount:          len(records),
		TotalLiters:          decimal.Zero,
		TotalCost:            decimal.Zero,
		AveragePricePerLiter: decimal.Zero,
	}
	if len(records) == 0 {
		return stats
	}

	sorted := make([]FuelRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].KmAtFueling != sorted[j].KmAtFueling {
			return sorted[i].KmAtFueling < sorted[j].KmAtFueling
		}
		return sorted[i].FuelDate.Before(sorted[j].FuelDate)
	})

	afterFirst := decimal.Zero
	for i, r := range sorted {
		stats.TotalLiters = stats.TotalLiters.Add(r.Liters)
		stats.TotalCost = stats.TotalCost.Add(r.TotalCost)
		if i > 0 {
			afterFirst = afterFirst.Add(r.Liters)
		}
	}
	if stats.TotalLiters.IsPositive() {
		stats.AveragePricePerLiter = stats.TotalCost.Div(stats.TotalLiters).Round(2)
	}

	stats.KmDriven = sorted[len(sorted)-1].KmAtFueling - sorted[0].KmAtFueling
	if stats.KmDriven > 0 {
		c := afterFirst.Div(decimal.NewFromInt(int64(stats.KmDriven))).Mul(hundred).Round(2)
		stats.ConsumptionPer100Km = &c
	}
	return stats
}
