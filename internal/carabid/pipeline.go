package carabid

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Result is everything a pipeline run produces: intermediate stages for
// callers that want them, the final count table, and the integrity report.
type Result struct {
	Trapping   []TrappingRecord
	Reconciled []ReconciledIndividual
	Counts     []CountRow
	Integrity  IntegrityReport
}

// Pipeline wires the processing stages together over a table Provider.
type Pipeline struct {
	provider Provider
}

// RunOpts configures a pipeline run.
type RunOpts struct {
	Strict bool // integrity failures abort the run instead of warning
}

// NewPipeline creates a pipeline reading its tables from p.
func NewPipeline(p Provider) *Pipeline {
	return &Pipeline{provider: p}
}

// Run loads the four tables, then normalizes, reconciles, aggregates, and
// verifies count conservation. Bad reference data (missing or unparseable
// dates on collected samples) is fatal; taxonomic disagreements and count
// drift only warn unless opts.Strict is set.
func (p *Pipeline) Run(ctx context.Context, opts RunOpts) (*Result, error) {
	log := zap.L().With(zap.String("component", "carabid.pipeline"))
	start := time.Now()

	samples, err := p.provider.FieldData(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load field data")
	}
	sorts, err := p.provider.Sorting(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load sorting")
	}
	pins, err := p.provider.Pinning(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load pinning")
	}
	experts, err := p.provider.Expert(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load expert")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Info("tables loaded",
		zap.Int("fieldSamples", len(samples)),
		zap.Int("sortRows", len(sorts)),
		zap.Int("pinRows", len(pins)),
		zap.Int("expertRows", len(experts)))

	trappings, err := NormalizeSamples(samples)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: normalize samples")
	}

	admitted := FilterSorts(trappings, sorts)
	reconciled := Reconcile(admitted, pins, experts)
	counts := AggregateCounts(trappings, reconciled)
	report := CheckConservation(admitted, reconciled, counts)

	if !report.OK() && opts.Strict {
		return nil, eris.Errorf(
			"pipeline: count conservation failed: declared %d, reconciled %d, aggregated %d, %d mismatched subsamples",
			report.DeclaredTotal, report.ReconciledTotal, report.AggregatedTotal, len(report.Mismatches))
	}

	log.Info("pipeline complete",
		zap.Int("trappingRecords", len(trappings)),
		zap.Int("reconciledRows", len(reconciled)),
		zap.Int("countRows", len(counts)),
		zap.Int("individuals", report.AggregatedTotal),
		zap.Bool("conserved", report.OK()),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		Trapping:   trappings,
		Reconciled: reconciled,
		Counts:     counts,
		Integrity:  report,
	}, nil
}
