package carabid

import "go.uber.org/zap"

// SubsampleMismatch records a subsample whose reconciled individuals no
// longer sum to its declared count.
type SubsampleMismatch struct {
	SubsampleID string `json:"subsampleID"`
	Declared    int    `json:"declared"`
	Reconciled  int    `json:"reconciled"`
}

// IntegrityReport summarizes the count-conservation checks run over a
// pipeline result. Totals are individuals, not rows.
type IntegrityReport struct {
	DeclaredTotal   int                 `json:"declaredTotal"`
	ReconciledTotal int                 `json:"reconciledTotal"`
	AggregatedTotal int                 `json:"aggregatedTotal"`
	Mismatches      []SubsampleMismatch `json:"mismatches,omitempty"`
}

// OK reports whether every conservation check passed.
func (r IntegrityReport) OK() bool {
	return r.DeclaredTotal == r.ReconciledTotal &&
		r.ReconciledTotal == r.AggregatedTotal &&
		len(r.Mismatches) == 0
}

// CheckConservation verifies that reconciliation and aggregation neither
// invented nor lost individuals: per subsample, reconciled rows must sum to
// the declared count, and the three stage totals must agree. Failures are
// logged as warnings, never aborts; a run with drift still produces output.
func CheckConservation(admitted []SortRecord, reconciled []ReconciledIndividual, counts []CountRow) IntegrityReport {
	var report IntegrityReport

	declared := make(map[string]int, len(admitted))
	var subOrder []string
	for _, s := range admitted {
		if _, ok := declared[s.SubsampleID]; !ok {
			subOrder = append(subOrder, s.SubsampleID)
		}
		declared[s.SubsampleID] += s.IndividualCount
		report.DeclaredTotal += s.IndividualCount
	}

	recon := make(map[string]int, len(declared))
	for _, r := range reconciled {
		recon[r.SubsampleID] += r.IndividualCount
		report.ReconciledTotal += r.IndividualCount
	}

	for _, sub := range subOrder {
		if declared[sub] != recon[sub] {
			report.Mismatches = append(report.Mismatches, SubsampleMismatch{
				SubsampleID: sub,
				Declared:    declared[sub],
				Reconciled:  recon[sub],
			})
		}
	}

	for _, c := range counts {
		report.AggregatedTotal += c.Count
	}

	for _, m := range report.Mismatches {
		zap.L().Warn("integrity: subsample count not conserved",
			zap.String("subsampleID", m.SubsampleID),
			zap.Int("declared", m.Declared),
			zap.Int("reconciled", m.Reconciled))
	}
	if !report.OK() {
		zap.L().Warn("integrity: count conservation failed",
			zap.Int("declared", report.DeclaredTotal),
			zap.Int("reconciled", report.ReconciledTotal),
			zap.Int("aggregated", report.AggregatedTotal),
			zap.Int("mismatchedSubsamples", len(report.Mismatches)))
	}
	return report
}
