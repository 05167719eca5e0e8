package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gobayes/domain/core"
)

// ColumnKind defines how a column's values are interpreted
type ColumnKind string

const (
	KindNumeric ColumnKind = "numeric"
	KindFactor  ColumnKind = "factor"
)

// Column is one named variable of a dataset, one value per observation.
// Numeric columns hold Numbers; factor columns hold Labels.
type Column struct {
	Name    string     `json:"name"`
	Kind    ColumnKind `json:"kind"`
	Numbers []float64  `json:"numbers,omitempty"`
	Labels  []string   `json:"labels,omitempty"`
}

// Len returns the number of observations in the column
func (c *Column) Len() int {
	if c.Kind == KindFactor {
		return len(c.Labels)
	}
	return len(c.Numbers)
}

// IsNumeric reports whether the column holds numbers
func (c *Column) IsNumeric() bool {
	return c.Kind == KindNumeric
}

// Label returns the value at row i as a level label. Numeric values are
// formatted without trailing zeros so 3.0 becomes "3".
func (c *Column) Label(i int) string {
	if c.Kind == KindFactor {
		return c.Labels[i]
	}
	return strconv.FormatFloat(c.Numbers[i], 'f', -1, 64)
}

// Levels returns the distinct labels of the column in sorted order.
// Numeric columns sort numerically, factor columns lexically.
func (c *Column) Levels() []string {
	if c.Kind == KindNumeric {
		seen := make(map[float64]bool)
		values := make([]float64, 0)
		for _, v := range c.Numbers {
			if math.IsNaN(v) || seen[v] {
				continue
			}
			seen[v] = true
			values = append(values, v)
		}
		sort.Float64s(values)
		levels := make([]string, len(values))
		for i, v := range values {
			levels[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		return levels
	}

	seen := make(map[string]bool)
	levels := make([]string, 0)
	for _, label := range c.Labels {
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		levels = append(levels, label)
	}
	sort.Strings(levels)
	return levels
}

// LevelIndex maps every row to the 0-based position of its label in Levels().
func (c *Column) LevelIndex() ([]int, []string, error) {
	levels := c.Levels()
	position := make(map[string]int, len(levels))
	for i, level := range levels {
		position[level] = i
	}

	index := make([]int, c.Len())
	for i := range index {
		label := c.Label(i)
		pos, ok := position[label]
		if !ok {
			return nil, nil, fmt.Errorf("column %s has a missing value at row %d", c.Name, i+1)
		}
		index[i] = pos
	}
	return index, levels, nil
}

// Dataset is an ordered set of equally long columns, one row per observation.
type Dataset struct {
	name    string
	columns map[string]*Column
	order   []string
	rows    int
}

// New creates an empty dataset
func New(name string) *Dataset {
	return &Dataset{
		name:    name,
		columns: make(map[string]*Column),
		rows:    -1,
	}
}

// Name returns the dataset name
func (d *Dataset) Name() string {
	return d.name
}

// Rows returns the number of observations
func (d *Dataset) Rows() int {
	if d.rows < 0 {
		return 0
	}
	return d.rows
}

// Names returns column names in insertion order
func (d *Dataset) Names() []string {
	names := make([]string, len(d.order))
	copy(names, d.order)
	return names
}

// Has checks whether a column exists
func (d *Dataset) Has(name string) bool {
	_, ok := d.columns[name]
	return ok
}

// Column returns a column by name
func (d *Dataset) Column(name string) (*Column, bool) {
	c, ok := d.columns[name]
	return c, ok
}

// AddNumeric adds a numeric column. NaN marks a missing value.
func (d *Dataset) AddNumeric(name string, values []float64) error {
	numbers := make([]float64, len(values))
	copy(numbers, values)
	return d.add(&Column{Name: name, Kind: KindNumeric, Numbers: numbers})
}

// AddFactor adds a factor column. The empty string marks a missing value.
func (d *Dataset) AddFactor(name string, labels []string) error {
	values := make([]string, len(labels))
	copy(values, labels)
	return d.add(&Column{Name: name, Kind: KindFactor, Labels: values})
}

func (d *Dataset) add(c *Column) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("column name cannot be empty")
	}
	if _, exists := d.columns[c.Name]; exists {
		return fmt.Errorf("duplicate column %s", c.Name)
	}
	if d.rows >= 0 && c.Len() != d.rows {
		return fmt.Errorf("column %s has %d rows, dataset has %d", c.Name, c.Len(), d.rows)
	}
	d.rows = c.Len()
	d.columns[c.Name] = c
	d.order = append(d.order, c.Name)
	return nil
}

// Fingerprint hashes names, kinds and values so two fits can be checked
// for having been run on the same observations.
func (d *Dataset) Fingerprint() core.Hash {
	values := make(map[string]string, len(d.order))
	for _, name := range d.order {
		c := d.columns[name]
		var b strings.Builder
		b.WriteString(string(c.Kind))
		for i := 0; i < c.Len(); i++ {
			b.WriteByte('|')
			b.WriteString(c.Label(i))
		}
		values[name] = b.String()
	}
	return core.ComputeMapHash(values)
}

// Records returns the dataset as a header and string rows, the inverse of
// FromRecords. Missing values become NA.
func (d *Dataset) Records() ([]string, [][]string) {
	header := d.Names()
	rows := make([][]string, d.Rows())
	for i := range rows {
		row := make([]string, len(header))
		for j, name := range header {
			c := d.columns[name]
			switch {
			case c.Kind == KindNumeric && math.IsNaN(c.Numbers[i]):
				row[j] = "NA"
			case c.Kind == KindFactor && c.Labels[i] == "":
				row[j] = "NA"
			default:
				row[j] = c.Label(i)
			}
		}
		rows[i] = row
	}
	return header, rows
}
