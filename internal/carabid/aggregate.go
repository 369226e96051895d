package carabid

import (
	"sort"

	"go.uber.org/zap"
)

// countKey is the identity of an output row: every CountRow field except the
// count itself. Rows agreeing on the whole tuple collapse into one.
type countKey struct {
	sampleID       string
	domainID       string
	siteID         string
	plotID         string
	trapID         string
	collectDate    string
	trappingDays   int
	boutID         string
	taxonID        string
	scientificName string
	taxonRank      string
}

// AggregateCounts joins reconciled individuals back to their trapping
// records and sums counts per unique (trapping record, taxon) tuple. The
// result is sorted by bout, plot, trap, and taxon, so output is stable
// regardless of input order.
func AggregateCounts(trappings []TrappingRecord, reconciled []ReconciledIndividual) []CountRow {
	idx := indexTrappings(trappings)

	rows := make(map[countKey]*CountRow, len(reconciled))
	var unjoined int
	for _, r := range reconciled {
		t, ok := idx[r.SampleID]
		if !ok {
			unjoined++
			continue
		}
		k := countKey{
			sampleID:       t.SampleID,
			domainID:       t.DomainID,
			siteID:         t.SiteID,
			plotID:         t.PlotID,
			trapID:         t.TrapID,
			collectDate:    t.CollectDate.Format(DateLayout),
			trappingDays:   t.TrappingDays,
			boutID:         t.BoutID,
			taxonID:        r.Identification.TaxonID,
			scientificName: r.Identification.ScientificName,
			taxonRank:      r.Identification.TaxonRank,
		}
		if row := rows[k]; row != nil {
			row.Count += r.IndividualCount
			continue
		}
		rows[k] = &CountRow{
			SampleID:       t.SampleID,
			DomainID:       t.DomainID,
			SiteID:         t.SiteID,
			PlotID:         t.PlotID,
			TrapID:         t.TrapID,
			CollectDate:    t.CollectDate,
			TrappingDays:   t.TrappingDays,
			BoutID:         t.BoutID,
			TaxonID:        r.Identification.TaxonID,
			ScientificName: r.Identification.ScientificName,
			TaxonRank:      r.Identification.TaxonRank,
			Count:          r.IndividualCount,
		}
	}
	if unjoined > 0 {
		zap.L().Warn("aggregate: reconciled rows without a trapping record",
			zap.Int("rows", unjoined))
	}

	out := make([]CountRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.BoutID != b.BoutID {
			return a.BoutID < b.BoutID
		}
		if a.PlotID != b.PlotID {
			return a.PlotID < b.PlotID
		}
		if a.TrapID != b.TrapID {
			return a.TrapID < b.TrapID
		}
		if a.SampleID != b.SampleID {
			return a.SampleID < b.SampleID
		}
		if a.TaxonID != b.TaxonID {
			return a.TaxonID < b.TaxonID
		}
		if a.ScientificName != b.ScientificName {
			return a.ScientificName < b.ScientificName
		}
		return a.TaxonRank < b.TaxonRank
	})
	return out
}
