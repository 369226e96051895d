package carabid

import "context"

// Provider supplies the four raw tables to a pipeline run. Implementations
// read from the local cache, a directory of portal exports, or a test
// fixture; the pipeline itself never touches I/O.
type Provider interface {
	FieldData(ctx context.Context) ([]FieldSample, error)
	Sorting(ctx context.Context) ([]SortRecord, error)
	Pinning(ctx context.Context) ([]PinRecord, error)
	Expert(ctx context.Context) ([]ExpertRecord, error)
}
