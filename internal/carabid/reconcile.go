package carabid

import (
	"strings"

	"go.uber.org/zap"
)

// FilterSorts admits the sorting rows eligible for reconciliation: carabid
// sample types only, joined to a known trapping record, with a positive
// declared count. Bycatch and orphaned rows are dropped; drop tallies are
// logged rather than returned.
func FilterSorts(trappings []TrappingRecord, sorts []SortRecord) []SortRecord {
	idx := indexTrappings(trappings)

	admitted := make([]SortRecord, 0, len(sorts))
	var bycatch, orphaned, nonPositive int
	for _, s := range sorts {
		if !isCarabid(s.SampleType) {
			bycatch++
			continue
		}
		if _, ok := idx[s.SampleID]; !ok {
			orphaned++
			continue
		}
		if s.IndividualCount <= 0 {
			nonPositive++
			zap.L().Warn("reconcile: dropping sorting row with non-positive count",
				zap.String("uid", s.UID),
				zap.String("subsampleID", s.SubsampleID),
				zap.Int("individualCount", s.IndividualCount))
			continue
		}
		admitted = append(admitted, s)
	}

	zap.L().Debug("reconcile: filtered sorting rows",
		zap.Int("admitted", len(admitted)),
		zap.Int("bycatch", bycatch),
		zap.Int("orphaned", orphaned),
		zap.Int("nonPositive", nonPositive))
	return admitted
}

// Reconcile merges the three identification tiers into one row per pinned
// individual plus residual sort-level rows for individuals never pinned.
// Each pinned row carries the pin identification unless a consistent expert
// identification overrides it. Residual rows keep the sorter's
// identification and the leftover count, so the declared total of every
// subsample is conserved.
//
// Known limitation, preserved from the source methodology: an expert call on
// one individual does not propagate to un-examined individuals of the same
// sort taxon in the subsample, so a subsample can split across final taxa.
func Reconcile(admitted []SortRecord, pins []PinRecord, experts []ExpertRecord) []ReconciledIndividual {
	pinsBySub := groupPins(pins)
	expertByInd := consistentExperts(experts)

	out := make([]ReconciledIndividual, 0, len(admitted))
	for _, s := range admitted {
		sortIdent := Identification{
			TaxonID:        s.TaxonID,
			ScientificName: s.ScientificName,
			TaxonRank:      s.TaxonRank,
			Qualifier:      s.Qualifier,
			Source:         SourceSort,
		}

		subPins := pinsBySub[s.SubsampleID]
		for _, p := range subPins {
			pinIdent := Identification{
				TaxonID:        p.TaxonID,
				ScientificName: p.ScientificName,
				TaxonRank:      p.TaxonRank,
				Qualifier:      p.Qualifier,
				Source:         SourcePin,
			}
			out = append(out, ReconciledIndividual{
				SampleID:        s.SampleID,
				SubsampleID:     s.SubsampleID,
				IndividualID:    p.IndividualID,
				Identification:  resolveIdentification(sortIdent, &pinIdent, expertByInd[p.IndividualID]),
				IndividualCount: 1,
			})
		}

		switch pinned := len(subPins); {
		case pinned == 0:
			out = append(out, ReconciledIndividual{
				SampleID:        s.SampleID,
				SubsampleID:     s.SubsampleID,
				Identification:  resolveIdentification(sortIdent, nil, nil),
				IndividualCount: s.IndividualCount,
			})
		case pinned < s.IndividualCount:
			out = append(out, ReconciledIndividual{
				SampleID:        s.SampleID,
				SubsampleID:     s.SubsampleID,
				Identification:  resolveIdentification(sortIdent, nil, nil),
				IndividualCount: s.IndividualCount - pinned,
			})
		case pinned > s.IndividualCount:
			zap.L().Warn("reconcile: more pinned individuals than declared count",
				zap.String("subsampleID", s.SubsampleID),
				zap.Int("declared", s.IndividualCount),
				zap.Int("pinned", pinned))
		}
	}
	return out
}

// resolveIdentification applies tier precedence for one individual or
// residual group: expert beats pin beats sort. A tier that never examined
// the individual, or was disqualified, passes nil.
func resolveIdentification(sort Identification, pin, expert *Identification) Identification {
	switch {
	case expert != nil:
		return *expert
	case pin != nil:
		return *pin
	default:
		return sort
	}
}

// indexTrappings maps sampleID to its trapping record. Repeat-collection
// groups legitimately share a sampleID; downstream joins key on sampleID
// alone, so the first record wins and the collision is logged.
func indexTrappings(trappings []TrappingRecord) map[string]TrappingRecord {
	idx := make(map[string]TrappingRecord, len(trappings))
	var dups int
	for _, t := range trappings {
		if _, ok := idx[t.SampleID]; ok {
			dups++
			continue
		}
		idx[t.SampleID] = t
	}
	if dups > 0 {
		zap.L().Warn("reconcile: trapping records share sampleIDs, joins use first occurrence",
			zap.Int("duplicates", dups))
	}
	return idx
}

// isCarabid reports whether a sorting row holds actual carabids rather than
// bycatch. The portal vocabulary marks beetle rows as "carabid" or
// "other carabid".
func isCarabid(sampleType string) bool {
	switch strings.TrimSpace(sampleType) {
	case "carabid", "other carabid":
		return true
	}
	return false
}

// groupPins indexes pin rows by subsample. A specimen re-entered under the
// same individualID is kept once, first row wins.
func groupPins(pins []PinRecord) map[string][]PinRecord {
	seen := make(map[string]bool, len(pins))
	out := make(map[string][]PinRecord, len(pins))
	var dups int
	for _, p := range pins {
		if p.IndividualID != "" {
			if seen[p.IndividualID] {
				dups++
				continue
			}
			seen[p.IndividualID] = true
		}
		out[p.SubsampleID] = append(out[p.SubsampleID], p)
	}
	if dups > 0 {
		zap.L().Warn("reconcile: duplicate pin rows for the same individual",
			zap.Int("duplicates", dups))
	}
	return out
}

// consistentExperts maps individualID to its expert identification.
// Individuals whose expert rows disagree on taxonID are excluded outright.
// Agreeing repeats collapse to the first row.
func consistentExperts(experts []ExpertRecord) map[string]*Identification {
	first := make(map[string]*Identification, len(experts))
	conflicted := make(map[string]bool)
	for _, e := range experts {
		if e.IndividualID == "" {
			continue
		}
		if cur, ok := first[e.IndividualID]; ok {
			if cur.TaxonID != e.TaxonID {
				conflicted[e.IndividualID] = true
			}
			continue
		}
		first[e.IndividualID] = &Identification{
			TaxonID:        e.TaxonID,
			ScientificName: e.ScientificName,
			TaxonRank:      e.TaxonRank,
			Qualifier:      e.Qualifier,
			Source:         SourceExpert,
		}
	}
	for id := range conflicted {
		delete(first, id)
	}
	if len(conflicted) > 0 {
		zap.L().Warn("reconcile: conflicting expert identifications, individuals keep pin identification",
			zap.Int("individuals", len(conflicted)))
	}
	return first
}
