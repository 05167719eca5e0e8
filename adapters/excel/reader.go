// Package excel loads datasets from CSV and XLSX files.
package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gobayes/domain/dataset"
	"gobayes/internal"
	apperrors "gobayes/internal/errors"

	"github.com/xuri/excelize/v2"
)

// DataReader handles reading Excel and CSV files. It implements
// ports.DatasetReader.
type DataReader struct {
	config Config
	logger *internal.Logger
}

// NewDataReader creates a reader
func NewDataReader(config Config) *DataReader {
	return &DataReader{config: config, logger: internal.DefaultLogger.With("excel")}
}

// fileType returns "csv" or "xlsx" from the extension
func fileType(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return "csv", nil
	case ".xlsx", ".xlsm":
		return "xlsx", nil
	default:
		return "", apperrors.InvalidInput(fmt.Sprintf("unsupported file type %q (use .csv or .xlsx)", ext))
	}
}

// Read loads source into a dataset named after the file
func (r *DataReader) Read(ctx context.Context, source string) (*dataset.Dataset, error) {
	kind, err := fileType(source)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(source); os.IsNotExist(err) {
		return nil, apperrors.NotFound(fmt.Sprintf("%s file %s", strings.ToUpper(kind), source))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	var rows [][]string
	if kind == "csv" {
		rows, err = r.readCSV(source)
	} else {
		rows, err = r.readExcel(source)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, apperrors.InvalidInput(fmt.Sprintf("%s must have a header row and at least one data row", source))
	}

	name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	ds, err := dataset.FromRecordsWithFactors(name, rows[0], rows[1:], r.config.Factors)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("%s: %v", source, err))
	}
	r.logger.Debug("read %s in %s (%d columns, %d rows)", source, time.Since(start).Round(time.Millisecond), len(ds.Names()), ds.Rows())
	return ds, nil
}

// readExcel reads the configured sheet, or the first one
func (r *DataReader) readExcel(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()

	sheet := r.config.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, apperrors.InvalidInput(path + " has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to read sheet %s", sheet)
	}
	return rows, nil
}

func (r *DataReader) readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open CSV file")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("malformed CSV %s: %v", path, err))
	}
	return rows, nil
}
