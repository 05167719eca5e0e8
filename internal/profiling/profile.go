// Package profiling describes the columns of a dataset before it is fitted:
// missingness, location and spread of numeric columns and level counts of
// factors.
package profiling

import (
	"math"
	"sort"

	"gobayes/domain/dataset"

	"github.com/montanaflynn/stats"
)

// NumericSummary holds the distribution shape of a numeric column
type NumericSummary struct {
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"sd"`
	Min      float64 `json:"min"`
	Q25      float64 `json:"q25"`
	Median   float64 `json:"median"`
	Q75      float64 `json:"q75"`
	Max      float64 `json:"max"`
	Skewness float64 `json:"skewness"`
	Outliers int     `json:"outliers"`
	Integer  bool    `json:"integer"`
}

// LevelCount is one level of a factor and its number of rows
type LevelCount struct {
	Level string `json:"level"`
	Count int    `json:"count"`
}

// ColumnProfile describes one column
type ColumnProfile struct {
	Name    string             `json:"name"`
	Kind    dataset.ColumnKind `json:"kind"`
	Missing int                `json:"missing"`
	Numeric *NumericSummary    `json:"numeric,omitempty"`
	Levels  []LevelCount       `json:"levels,omitempty"`
}

// Profile describes a whole dataset in column order
type Profile struct {
	Name    string          `json:"name"`
	Rows    int             `json:"rows"`
	Columns []ColumnProfile `json:"columns"`
}

// Column returns the profile of the named column
func (p *Profile) Column(name string) (ColumnProfile, bool) {
	for _, c := range p.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnProfile{}, false
}

// ProfileDataset analyzes all columns in a dataset
func ProfileDataset(ds *dataset.Dataset) (*Profile, error) {
	p := &Profile{Name: ds.Name(), Rows: ds.Rows()}
	for _, name := range ds.Names() {
		col, _ := ds.Column(name)
		cp, err := ProfileColumn(col)
		if err != nil {
			return nil, err
		}
		p.Columns = append(p.Columns, cp)
	}
	return p, nil
}

// ProfileColumn summarizes one column. A numeric column with no observed
// values gets no numeric summary.
func ProfileColumn(col *dataset.Column) (ColumnProfile, error) {
	cp := ColumnProfile{Name: col.Name, Kind: col.Kind}

	if !col.IsNumeric() {
		counts := make(map[string]int)
		for _, label := range col.Labels {
			if label == "" {
				cp.Missing++
				continue
			}
			counts[label]++
		}
		for _, level := range col.Levels() {
			cp.Levels = append(cp.Levels, LevelCount{Level: level, Count: counts[level]})
		}
		return cp, nil
	}

	observed := make([]float64, 0, len(col.Numbers))
	for _, v := range col.Numbers {
		if math.IsNaN(v) {
			cp.Missing++
			continue
		}
		observed = append(observed, v)
	}
	if len(observed) == 0 {
		return cp, nil
	}
	summary, err := summarize(observed)
	if err != nil {
		return cp, err
	}
	cp.Numeric = summary
	return cp, nil
}

func summarize(data []float64) (*NumericSummary, error) {
	s := &NumericSummary{}
	var err error

	if s.Mean, err = stats.Mean(data); err != nil {
		return nil, err
	}
	if len(data) > 1 {
		if s.StdDev, err = stats.StandardDeviationSample(data); err != nil {
			return nil, err
		}
	}
	if s.Min, err = stats.Min(data); err != nil {
		return nil, err
	}
	if s.Max, err = stats.Max(data); err != nil {
		return nil, err
	}
	if s.Median, err = stats.Median(data); err != nil {
		return nil, err
	}

	// Quartiles for IQR-based outlier detection
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	s.Q25 = quantile(sorted, 0.25)
	s.Q75 = quantile(sorted, 0.75)

	s.Skewness = calculateSkewness(data, s.Mean, s.StdDev)
	s.Outliers = detectOutliers(data, s.Q25, s.Q75)
	s.Integer = true
	for _, v := range data {
		if v != math.Trunc(v) {
			s.Integer = false
			break
		}
	}
	return s, nil
}

// quantile interpolates linearly between order statistics of sorted data
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	h := p * float64(len(sorted)-1)
	lo := math.Floor(h)
	hi := math.Ceil(h)
	return sorted[int(lo)] + (h-lo)*(sorted[int(hi)]-sorted[int(lo)])
}

// calculateSkewness computes sample skewness using the adjusted Fisher-Pearson coefficient
func calculateSkewness(data []float64, mean, stdDev float64) float64 {
	if len(data) < 3 || stdDev == 0 {
		return 0
	}

	n := float64(len(data))
	sumCubed := 0.0
	for _, x := range data {
		deviation := (x - mean) / stdDev
		sumCubed += deviation * deviation * deviation
	}
	return n / ((n - 1) * (n - 2)) * sumCubed
}

// detectOutliers counts values beyond 1.5 IQR from the quartiles
func detectOutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lowerBound := q25 - 1.5*iqr
	upperBound := q75 + 1.5*iqr

	outlierCount := 0
	for _, x := range data {
		if x < lowerBound || x > upperBound {
			outlierCount++
		}
	}
	return outlierCount
}
