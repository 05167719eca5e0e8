package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// FromColumns builds a dataset from decoded column values. Accepted slice
// types are []float64, []int, []string and []interface{} holding numbers,
// strings or nil. A []interface{} column is numeric when every non-nil value
// is a number or a numeric string, otherwise it becomes a factor.
func FromColumns(name string, columns map[string]interface{}) (*Dataset, error) {
	names := make([]string, 0, len(columns))
	for col := range columns {
		names = append(names, col)
	}
	sort.Strings(names)

	ds := New(name)
	for _, col := range names {
		var err error
		switch values := columns[col].(type) {
		case []float64:
			err = ds.AddNumeric(col, values)
		case []int:
			numbers := make([]float64, len(values))
			for i, v := range values {
				numbers[i] = float64(v)
			}
			err = ds.AddNumeric(col, numbers)
		case []string:
			err = addInferred(ds, col, values)
		case []interface{}:
			err = addInterfaces(ds, col, values)
		default:
			err = fmt.Errorf("column %s has unsupported type %T", col, values)
		}
		if err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// FromRecords builds a dataset from a header and string rows, inferring
// numeric columns. Empty cells and "NA" are missing.
func FromRecords(name string, header []string, rows [][]string) (*Dataset, error) {
	return FromRecordsWithFactors(name, header, rows, nil)
}

// FromRecordsWithFactors is FromRecords with columns that stay factors even
// when every value parses as a number, such as numeric herd or patient IDs.
func FromRecordsWithFactors(name string, header []string, rows [][]string, factors []string) (*Dataset, error) {
	forced := make(map[string]bool, len(factors))
	for _, f := range factors {
		forced[f] = true
	}
	ds := New(name)
	for j, col := range header {
		col = strings.TrimSpace(col)
		values := make([]string, len(rows))
		for i, row := range rows {
			if j < len(row) {
				values[i] = strings.TrimSpace(row[j])
			}
		}
		var err error
		if forced[col] {
			err = ds.AddFactor(col, missingAsEmpty(values))
		} else {
			err = addInferred(ds, col, values)
		}
		if err != nil {
			return nil, err
		}
	}
	for _, f := range factors {
		if !ds.Has(f) {
			return nil, fmt.Errorf("factor column %s is not in the header", f)
		}
	}
	return ds, nil
}

func missingAsEmpty(values []string) []string {
	labels := make([]string, len(values))
	for i, v := range values {
		if !isMissing(v) {
			labels[i] = v
		}
	}
	return labels
}

func addInferred(ds *Dataset, name string, values []string) error {
	numbers, ok := parseNumbers(values)
	if ok {
		return ds.AddNumeric(name, numbers)
	}
	return ds.AddFactor(name, missingAsEmpty(values))
}

func addInterfaces(ds *Dataset, name string, values []interface{}) error {
	raw := make([]string, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case nil:
			raw[i] = ""
		case float64:
			raw[i] = strconv.FormatFloat(x, 'f', -1, 64)
		case int:
			raw[i] = strconv.Itoa(x)
		case bool:
			if x {
				raw[i] = "1"
			} else {
				raw[i] = "0"
			}
		case string:
			raw[i] = x
		default:
			return fmt.Errorf("column %s row %d has unsupported value %v", name, i+1, v)
		}
	}
	return addInferred(ds, name, raw)
}

func parseNumbers(values []string) ([]float64, bool) {
	numbers := make([]float64, len(values))
	present := 0
	for i, v := range values {
		if isMissing(v) {
			numbers[i] = math.NaN()
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, false
		}
		numbers[i] = f
		present++
	}
	return numbers, present > 0
}

func isMissing(v string) bool {
	return v == "" || v == "NA" || v == "NaN"
}
