package overlay

import "math"

// ramp builds a bracket table from the interior cut points of DefaultRamp.
// The first bracket starts at 0 and the last is unbounded.
func ramp(cuts ...float64) []Bracket {
	brackets := make([]Bracket, 0, len(cuts)+1)
	lower := 0.0
	for i, c := range cuts {
		brackets = append(brackets, Bracket{Min: lower, Max: c, Color: DefaultRamp[i]})
		lower = c
	}
	return append(brackets, Bracket{Min: lower, Max: math.Inf(1), Color: DefaultRamp[len(cuts)]})
}

// Builtin returns the LA County (06037) tract overlays. Sources are relative
// to the server data directory.
func Builtin() []Definition {
	return []Definition{
		{
			ID:       "travel-time",
			Title:    "Avg. Travel Time to Work (Minutes)",
			Source:   "census/06037_travel_time.csv",
			Property: "avg_travel_time",
			Brackets: ramp(26.79, 28.85, 30.27, 31.34, 32.41, 33.44, 34.49, 35.41, 36.65, 38.13, 40.7),
			Format:   Format{Decimals: 1},
		},
		{
			ID:       "car-commute-time",
			Title:    "Average Car Commute Time (Minutes)",
			Source:   "census/06037_car_commute_time.csv",
			Property: "car_avg_travel_time",
			Brackets: ramp(26.28, 28.15, 29.51, 30.47, 31.3, 32.12, 33.01, 33.92, 35.05, 36.38, 38.57),
			Format:   Format{Decimals: 1},
		},
		{
			ID:       "car-commuter-percentage",
			Title:    "Car Commuter Percentage (%)",
			Source:   "census/06037_car_commuter_percentage.csv",
			Property: "car_commuter_percentage",
			Brackets: ramp(0.55, 0.62, 0.67, 0.72, 0.75, 0.78, 0.8, 0.83, 0.85, 0.87, 0.9),
			Format:   Format{Style: StylePercent},
		},
		{
			ID:       "car-transport-emissions",
			Title:    "Car Commute Emissions (metric tons CO2e per household)",
			Source:   "census/06037_car_transport_emissions_per_household.csv",
			Property: "car_co2_metric_tons_per_household",
			Brackets: ramp(1.61, 2.06, 2.44, 2.7, 3.02, 3.33, 3.59, 3.88, 4.2, 4.55, 5.12),
			Format:   Format{Decimals: 1},
		},
		{
			ID:       "latch-emissions",
			Title:    "LATCH Transport Emissions per Household",
			Source:   "census/06037_latch_emissions.csv",
			Property: "co2_metric_tons_per_household",
			Brackets: ramp(2.76, 3.07, 3.28, 3.42, 3.56, 3.71, 3.85, 4.0, 4.16, 4.32, 4.58),
			Format:   Format{Decimals: 2, Suffix: " tons"},
		},
		{
			ID:       "median-household-income",
			Title:    "Median Household Income (2023 dollars)",
			Source:   "census/06037_median_household_income.csv",
			Property: "median_household_income",
			Brackets: ramp(35000, 42000, 49000, 58000, 65000, 73000, 82000, 93000, 106000, 122000, 145000),
			Format:   Format{Style: StyleCurrency},
		},
		{
			ID:       "vehicles-per-household",
			Title:    "Vehicles per Household",
			Source:   "census/06037_vehicles_per_household.csv",
			Property: "avg_vehicles_per_household",
			Brackets: ramp(0.9, 1.1, 1.3, 1.45, 1.6, 1.7, 1.8, 1.9, 2.0, 2.15, 2.35),
			Format:   Format{Decimals: 2},
		},
	}
}
