package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"gobayes/domain/dataset"

	"gonum.org/v1/gonum/stat/distuv"
)

// GeneratorConfig configures the simulated datasets
type GeneratorConfig struct {
	Groups   int     `json:"groups"`    // herds, patients or subjects
	PerGroup int     `json:"per_group"` // observations per group
	GroupSD  float64 `json:"group_sd"`  // spread of the group intercepts
	Seed     int64   `json:"seed"`
}

// DefaultGeneratorConfig returns small datasets that fit quickly
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Groups:   15,
		PerGroup: 4,
		GroupSD:  0.6,
		Seed:     42,
	}
}

// DatasetGenerator simulates the classic multilevel example datasets
type DatasetGenerator struct {
	config GeneratorConfig
	rng    *rand.Rand
}

// NewDatasetGenerator creates a generator; equal configs give equal data
func NewDatasetGenerator(config GeneratorConfig) *DatasetGenerator {
	return &DatasetGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

func (g *DatasetGenerator) label(prefix string, i int) string {
	return fmt.Sprintf("%s%02d", prefix, i+1)
}

func (g *DatasetGenerator) groupEffects() []float64 {
	out := make([]float64, g.config.Groups)
	for i := range out {
		out[i] = g.rng.NormFloat64() * g.config.GroupSD
	}
	return out
}

func (g *DatasetGenerator) poisson(lambda float64) float64 {
	// Knuth; the rates used here are small
	limit := math.Exp(-lambda)
	k, p := 0.0, 1.0
	for {
		p *= g.rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}

func (g *DatasetGenerator) binomial(n int, p float64) float64 {
	k := 0.0
	for i := 0; i < n; i++ {
		if g.rng.Float64() < p {
			k++
		}
	}
	return k
}

func logistic(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// Herds simulates contagious disease incidence: incidence cases out of
// size animals per herd and period, with a declining trend over periods.
func (g *DatasetGenerator) Herds() *dataset.Dataset {
	effects := g.groupEffects()
	var incidence, size, period []float64
	var herd []string
	for h := 0; h < g.config.Groups; h++ {
		for p := 1; p <= g.config.PerGroup; p++ {
			n := 5 + g.rng.Intn(20)
			prob := logistic(-1.2 - 0.5*float64(p-1) + effects[h])
			incidence = append(incidence, g.binomial(n, prob))
			size = append(size, float64(n))
			period = append(period, float64(p))
			herd = append(herd, g.label("h", h))
		}
	}
	ds := dataset.New("herds")
	must(ds.AddNumeric("incidence", incidence))
	must(ds.AddNumeric("size", size))
	must(ds.AddNumeric("period", period))
	must(ds.AddFactor("herd", herd))
	return ds
}

// Epilepsy simulates seizure counts per visit for treated and untreated
// patients of varying age.
func (g *DatasetGenerator) Epilepsy() *dataset.Dataset {
	effects := g.groupEffects()
	var count, age, treat, visit []float64
	var patient []string
	for i := 0; i < g.config.Groups; i++ {
		a := math.Round(18 + 25*g.rng.Float64())
		t := float64(i % 2)
		for v := 1; v <= g.config.PerGroup; v++ {
			zAge := (a - 30) / 8
			eta := 1.8 + 0.1*zAge - 0.3*t + effects[i]
			count = append(count, g.poisson(math.Exp(eta)))
			age = append(age, zAge)
			treat = append(treat, t)
			visit = append(visit, float64(v))
			patient = append(patient, g.label("p", i))
		}
	}
	ds := dataset.New("epilepsy")
	must(ds.AddNumeric("count", count))
	must(ds.AddNumeric("age", age))
	must(ds.AddNumeric("treat", treat))
	must(ds.AddNumeric("visit", visit))
	must(ds.AddFactor("patient", patient))
	return ds
}

// Kidney simulates recurrence times with right censoring: censored is 1
// when the follow-up ended before a recurrence.
func (g *DatasetGenerator) Kidney() *dataset.Dataset {
	effects := g.groupEffects()
	var times, censored, age []float64
	var sex, patient []string
	for i := 0; i < g.config.Groups; i++ {
		a := math.Round(20 + 50*g.rng.Float64())
		s := "male"
		if g.rng.Float64() < 0.5 {
			s = "female"
		}
		for r := 0; r < g.config.PerGroup; r++ {
			mean := math.Exp(4 + 0.01*(a-45) + effects[i])
			shape := 2.0
			t := distuv.Gamma{Alpha: shape, Beta: shape / mean}.Quantile(0.02 + 0.96*g.rng.Float64())
			follow := 40 + 400*g.rng.Float64()
			c := 0.0
			if t > follow {
				t, c = follow, 1
			}
			times = append(times, math.Max(math.Round(t), 1))
			censored = append(censored, c)
			age = append(age, a)
			sex = append(sex, s)
			patient = append(patient, g.label("k", i))
		}
	}
	ds := dataset.New("kidney")
	must(ds.AddNumeric("time", times))
	must(ds.AddNumeric("censored", censored))
	must(ds.AddNumeric("age", age))
	must(ds.AddFactor("sex", sex))
	must(ds.AddFactor("patient", patient))
	return ds
}

// Inhaler simulates ordinal ratings 1-4 of a crossover trial
func (g *DatasetGenerator) Inhaler() *dataset.Dataset {
	effects := g.groupEffects()
	cuts := []float64{-1, 0.8, 2.5}
	var rating, treat, period, carry []float64
	var subject []string
	for i := 0; i < g.config.Groups; i++ {
		first := float64(i % 2)
		for p := 0; p < 2; p++ {
			t := first
			if p == 1 {
				t = 1 - first
			}
			eta := 0.6*t - 0.2*float64(p) + effects[i]
			latent := eta + distuv.UnitNormal.Quantile(0.001+0.998*g.rng.Float64())
			r := 1.0
			for _, c := range cuts {
				if latent > c {
					r++
				}
			}
			rating = append(rating, r)
			treat = append(treat, t-0.5)
			period = append(period, float64(p)-0.5)
			carry = append(carry, float64(p)*(first-0.5))
			subject = append(subject, g.label("s", i))
		}
	}
	ds := dataset.New("inhaler")
	must(ds.AddNumeric("rating", rating))
	must(ds.AddNumeric("treat", treat))
	must(ds.AddNumeric("period", period))
	must(ds.AddNumeric("carry", carry))
	must(ds.AddFactor("subject", subject))
	return ds
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
