package carabid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateCounts_SumsMatchingTuples(t *testing.T) {
	trappings := testTrappings()
	reconciled := []ReconciledIndividual{
		{SampleID: "s1", SubsampleID: "ss1", IndividualID: "i1",
			Identification: Identification{TaxonID: "CARSP1", ScientificName: "Carabus one", TaxonRank: "species", Source: SourcePin},
			IndividualCount: 1},
		{SampleID: "s1", SubsampleID: "ss1",
			Identification: Identification{TaxonID: "CARSP1", ScientificName: "Carabus one", TaxonRank: "species", Source: SourceSort},
			IndividualCount: 2},
		{SampleID: "s1", SubsampleID: "ss1", IndividualID: "i2",
			Identification: Identification{TaxonID: "COLSP1", ScientificName: "Coleoptera one", TaxonRank: "order", Source: SourceExpert},
			IndividualCount: 1},
	}

	counts := AggregateCounts(trappings, reconciled)
	require.Len(t, counts, 2)

	// Sorted by taxonID within the trap: CARSP1 first.
	assert.Equal(t, "CARSP1", counts[0].TaxonID)
	assert.Equal(t, 3, counts[0].Count)
	assert.Equal(t, "COLSP1", counts[1].TaxonID)
	assert.Equal(t, 1, counts[1].Count)

	for _, c := range counts {
		assert.Equal(t, "HARV_2018-06-04", c.BoutID)
		assert.Equal(t, 3, c.TrappingDays)
		assert.Equal(t, date(2018, 6, 4), c.CollectDate)
		assert.Equal(t, "D01", c.DomainID)
	}
}

func TestAggregateCounts_OrderInsensitive(t *testing.T) {
	trappings := []TrappingRecord{
		{SampleID: "s1", SiteID: "HARV", PlotID: "HARV_001", TrapID: "W",
			CollectDate: date(2018, 6, 4), TrappingDays: 3, BoutID: "HARV_2018-06-04"},
		{SampleID: "s2", SiteID: "HARV", PlotID: "HARV_002", TrapID: "N",
			CollectDate: date(2018, 6, 4), TrappingDays: 3, BoutID: "HARV_2018-06-04"},
	}
	reconciled := []ReconciledIndividual{
		{SampleID: "s2", SubsampleID: "ss2", Identification: Identification{TaxonID: "B"}, IndividualCount: 5},
		{SampleID: "s1", SubsampleID: "ss1", Identification: Identification{TaxonID: "A"}, IndividualCount: 1},
		{SampleID: "s1", SubsampleID: "ss1", Identification: Identification{TaxonID: "B"}, IndividualCount: 2},
	}

	forward := AggregateCounts(trappings, reconciled)

	reversedTr := []TrappingRecord{trappings[1], trappings[0]}
	reversedRec := []ReconciledIndividual{reconciled[2], reconciled[1], reconciled[0]}
	backward := AggregateCounts(reversedTr, reversedRec)

	assert.Equal(t, forward, backward)
	require.Len(t, forward, 3)
	assert.Equal(t, "HARV_001", forward[0].PlotID)
	assert.Equal(t, "HARV_001", forward[1].PlotID)
	assert.Equal(t, "HARV_002", forward[2].PlotID)
}

func TestAggregateCounts_DistinctRanksStaySeparate(t *testing.T) {
	trappings := testTrappings()
	reconciled := []ReconciledIndividual{
		{SampleID: "s1", Identification: Identification{TaxonID: "CARSP1", TaxonRank: "species"}, IndividualCount: 1},
		{SampleID: "s1", Identification: Identification{TaxonID: "CARSP1", TaxonRank: "genus"}, IndividualCount: 1},
	}

	counts := AggregateCounts(trappings, reconciled)
	assert.Len(t, counts, 2)
}

func TestAggregateCounts_SkipsUnjoinedRows(t *testing.T) {
	reconciled := []ReconciledIndividual{
		{SampleID: "orphan", Identification: Identification{TaxonID: "A"}, IndividualCount: 1},
	}

	counts := AggregateCounts(testTrappings(), reconciled)
	assert.Empty(t, counts)
}
