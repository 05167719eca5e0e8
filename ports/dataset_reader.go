package ports

import (
	"context"

	"gobayes/domain/dataset"
)

// DatasetReader loads a dataset from an external source such as a CSV or
// XLSX file.
type DatasetReader interface {
	Read(ctx context.Context, source string) (*dataset.Dataset, error)
}
