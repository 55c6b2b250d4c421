package profiling

import (
	"math"

	"github.com/montanaflynn/stats"

	"golmer/domain/core"
	"golmer/domain/table"
)

// ColumnProfile summarizes one table column for preflight checks and reports
type ColumnProfile struct {
	Name     string     `json:"name"`
	Kind     table.Kind `json:"kind"`
	N        int        `json:"n"`
	Missing  int        `json:"missing"`
	Distinct int        `json:"distinct"` // observed factor levels; 0 for numeric
	Summary  Summary    `json:"summary"`
	Constant bool       `json:"constant"` // no usable variation at all
}

// Summary holds numeric summary statistics; zero-valued for factor columns
type Summary struct {
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Median   float64 `json:"median"`
	Q25      float64 `json:"q25"`
	Q75      float64 `json:"q75"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
}

// ProfileColumn profiles a single column of either kind
func ProfileColumn(col table.Column) (ColumnProfile, error) {
	switch c := col.(type) {
	case *table.NumericColumn:
		return profileNumeric(c)
	case *table.FactorColumn:
		return profileFactor(c), nil
	default:
		return ColumnProfile{}, core.NewColumnKindError(col.Name(), "numeric or factor")
	}
}

// ProfileTable profiles every column in table order
func ProfileTable(tbl *table.Table) ([]ColumnProfile, error) {
	profiles := make([]ColumnProfile, 0, tbl.NumCols())
	for _, name := range tbl.Names() {
		col, _ := tbl.Column(name)
		p, err := ProfileColumn(col)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func profileNumeric(c *table.NumericColumn) (ColumnProfile, error) {
	profile := ColumnProfile{
		Name: c.Name(),
		Kind: table.KindNumeric,
		N:    c.Len(),
	}

	finite := make([]float64, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		v := c.Value(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			profile.Missing++
			continue
		}
		finite = append(finite, v)
	}
	if len(finite) == 0 {
		profile.Constant = true
		return profile, nil
	}

	mean, err := stats.Mean(finite)
	if err != nil {
		return profile, err
	}
	stdDev, err := stats.StandardDeviation(finite)
	if err != nil {
		return profile, err
	}
	min, err := stats.Min(finite)
	if err != nil {
		return profile, err
	}
	max, err := stats.Max(finite)
	if err != nil {
		return profile, err
	}
	median, err := stats.Median(finite)
	if err != nil {
		return profile, err
	}
	q25, err := stats.Percentile(finite, 25)
	if err != nil {
		return profile, err
	}
	q75, err := stats.Percentile(finite, 75)
	if err != nil {
		return profile, err
	}

	profile.Summary = Summary{
		Mean:     mean,
		StdDev:   stdDev,
		Min:      min,
		Max:      max,
		Median:   median,
		Q25:      q25,
		Q75:      q75,
		Skewness: skewness(finite, mean, stdDev),
		Kurtosis: kurtosis(finite, mean, stdDev),
	}
	profile.Constant = stdDev == 0
	return profile, nil
}

func profileFactor(c *table.FactorColumn) ColumnProfile {
	profile := ColumnProfile{
		Name:     c.Name(),
		Kind:     table.KindFactor,
		N:        c.Len(),
		Distinct: c.DistinctObserved(),
	}
	for i := 0; i < c.Len(); i++ {
		if c.Code(i) < 0 {
			profile.Missing++
		}
	}
	// One observed level cannot separate anything
	profile.Constant = profile.Distinct < 2
	return profile
}

func skewness(data []float64, mean, stdDev float64) float64 {
	if stdDev == 0 || len(data) < 3 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		z := (v - mean) / stdDev
		sum += z * z * z
	}
	return sum / float64(len(data))
}

func kurtosis(data []float64, mean, stdDev float64) float64 {
	if stdDev == 0 || len(data) < 4 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		z := (v - mean) / stdDev
		sum += z * z * z * z
	}
	return sum/float64(len(data)) - 3
}
