package carabid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTrappings() []TrappingRecord {
	return []TrappingRecord{
		{
			SampleID: "s1", DomainID: "D01", SiteID: "HARV", PlotID: "HARV_001",
			TrapID: "W", CollectDate: date(2018, 6, 4), TrappingDays: 3,
			BoutID: "HARV_2018-06-04",
		},
	}
}

func TestFilterSorts_DropsBycatchAndOrphans(t *testing.T) {
	sorts := []SortRecord{
		{SampleID: "s1", SubsampleID: "ss1", SampleType: "carabid", TaxonID: "CARSP1", IndividualCount: 3},
		{SampleID: "s1", SubsampleID: "ss2", SampleType: "other carabid", TaxonID: "CARSP2", IndividualCount: 1},
		{SampleID: "s1", SubsampleID: "ss3", SampleType: "vert bycatch herp", TaxonID: "VERT1", IndividualCount: 2},
		{SampleID: "missing", SubsampleID: "ss4", SampleType: "carabid", TaxonID: "CARSP3", IndividualCount: 1},
		{SampleID: "s1", SubsampleID: "ss5", SampleType: "carabid", TaxonID: "CARSP4", IndividualCount: 0},
	}

	admitted := FilterSorts(testTrappings(), sorts)
	require.Len(t, admitted, 2)
	assert.Equal(t, "ss1", admitted[0].SubsampleID)
	assert.Equal(t, "ss2", admitted[1].SubsampleID)
}

func TestReconcile_NoPinsKeepsSortRow(t *testing.T) {
	admitted := []SortRecord{
		{SampleID: "s1", SubsampleID: "ss1", SampleType: "carabid",
			TaxonID: "CARSP1", ScientificName: "Carabus one", TaxonRank: "species", IndividualCount: 4},
	}

	rows := Reconcile(admitted, nil, nil)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].IndividualID)
	assert.Equal(t, 4, rows[0].IndividualCount)
	assert.Equal(t, SourceSort, rows[0].Identification.Source)
	assert.Equal(t, "CARSP1", rows[0].Identification.TaxonID)
}

func TestReconcile_PartialPinsLeaveResidual(t *testing.T) {
	admitted := []SortRecord{
		{SampleID: "s1", SubsampleID: "ss1", SampleType: "carabid",
			TaxonID: "CARSP1", ScientificName: "Carabus one", TaxonRank: "species", IndividualCount: 3},
	}
	pins := []PinRecord{
		{SubsampleID: "ss1", IndividualID: "i1", TaxonID: "CARSP1", ScientificName: "Carabus one", TaxonRank: "species"},
		{SubsampleID: "ss1", IndividualID: "i2", TaxonID: "CARSP2", ScientificName: "Carabus two", TaxonRank: "species"},
	}

	rows := Reconcile(admitted, pins, nil)
	require.Len(t, rows, 3)

	assert.Equal(t, "i1", rows[0].IndividualID)
	assert.Equal(t, SourcePin, rows[0].Identification.Source)
	assert.Equal(t, 1, rows[0].IndividualCount)

	assert.Equal(t, "i2", rows[1].IndividualID)
	assert.Equal(t, "CARSP2", rows[1].Identification.TaxonID)

	// Residual: one declared individual was never pinned.
	assert.Empty(t, rows[2].IndividualID)
	assert.Equal(t, 1, rows[2].IndividualCount)
	assert.Equal(t, SourceSort, rows[2].Identification.Source)
	assert.Equal(t, "CARSP1", rows[2].Identification.TaxonID)
}

func TestReconcile_AllPinnedNoResidual(t *testing.T) {
	admitted := []SortRecord{
		{SampleID: "s1", SubsampleID: "ss1", SampleType: "carabid", TaxonID: "CARSP1", IndividualCount: 2},
	}
	pins := []PinRecord{
		{SubsampleID: "ss1", IndividualID: "i1", TaxonID: "CARSP1"},
		{SubsampleID: "ss1", IndividualID: "i2", TaxonID: "CARSP1"},
	}

	rows := Reconcile(admitted, pins, nil)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, 1, r.IndividualCount)
		assert.Equal(t, SourcePin, r.Identification.Source)
	}
}

func TestReconcile_MorePinsThanDeclared(t *testing.T) {
	admitted := []SortRecord{
		{SampleID: "s1", SubsampleID: "ss1", SampleType: "carabid", TaxonID: "CARSP1", IndividualCount: 1},
	}
	pins := []PinRecord{
		{SubsampleID: "ss1", IndividualID: "i1", TaxonID: "CARSP1"},
		{SubsampleID: "ss1", IndividualID: "i2", TaxonID: "CARSP1"},
	}

	// Both pinned rows survive; no negative residual is synthesized. The
	// integrity check reports the overage.
	rows := Reconcile(admitted, pins, nil)
	require.Len(t, rows, 2)
	report := CheckConservation(admitted, rows, nil)
	assert.False(t, report.OK())
}

func TestReconcile_ExpertOverridesPin(t *testing.T) {
	admitted := []SortRecord{
		{SampleID: "s1", SubsampleID: "ss1", SampleType: "carabid", TaxonID: "CARSP1", IndividualCount: 1},
	}
	pins := []PinRecord{
		{SubsampleID: "ss1", IndividualID: "i1", TaxonID: "CARSP2", ScientificName: "Carabus two", TaxonRank: "species"},
	}
	experts := []ExpertRecord{
		{IndividualID: "i1", TaxonID: "COLSP1", ScientificName: "Coleoptera one", TaxonRank: "order"},
	}

	rows := Reconcile(admitted, pins, experts)
	require.Len(t, rows, 1)
	assert.Equal(t, SourceExpert, rows[0].Identification.Source)
	assert.Equal(t, "COLSP1", rows[0].Identification.TaxonID)
	assert.Equal(t, "order", rows[0].Identification.TaxonRank)
}

func TestReconcile_ConflictingExpertsExcluded(t *testing.T) {
	admitted := []SortRecord{
		{SampleID: "s1", SubsampleID: "ss1", SampleType: "carabid", TaxonID: "CARSP1", IndividualCount: 1},
	}
	pins := []PinRecord{
		{SubsampleID: "ss1", IndividualID: "i1", TaxonID: "CARSP2"},
	}
	experts := []ExpertRecord{
		{IndividualID: "i1", TaxonID: "COLSP1"},
		{IndividualID: "i1", TaxonID: "COLSP2"},
	}

	rows := Reconcile(admitted, pins, experts)
	require.Len(t, rows, 1)
	// Disagreeing experts disqualify themselves; the pin stands.
	assert.Equal(t, SourcePin, rows[0].Identification.Source)
	assert.Equal(t, "CARSP2", rows[0].Identification.TaxonID)
}

func TestReconcile_AgreeingExpertRepeatsCollapse(t *testing.T) {
	admitted := []SortRecord{
		{SampleID: "s1", SubsampleID: "ss1", SampleType: "carabid", TaxonID: "CARSP1", IndividualCount: 1},
	}
	pins := []PinRecord{
		{SubsampleID: "ss1", IndividualID: "i1", TaxonID: "CARSP2"},
	}
	experts := []ExpertRecord{
		{IndividualID: "i1", TaxonID: "COLSP1", Qualifier: "cf."},
		{IndividualID: "i1", TaxonID: "COLSP1", Qualifier: "aff."},
	}

	rows := Reconcile(admitted, pins, experts)
	require.Len(t, rows, 1)
	assert.Equal(t, SourceExpert, rows[0].Identification.Source)
	assert.Equal(t, "cf.", rows[0].Identification.Qualifier)
}

func TestReconcile_ExpertWithoutPinIgnored(t *testing.T) {
	admitted := []SortRecord{
		{SampleID: "s1", SubsampleID: "ss1", SampleType: "carabid", TaxonID: "CARSP1", IndividualCount: 2},
	}
	experts := []ExpertRecord{
		{IndividualID: "ghost", TaxonID: "COLSP1"},
	}

	rows := Reconcile(admitted, nil, experts)
	require.Len(t, rows, 1)
	assert.Equal(t, SourceSort, rows[0].Identification.Source)
	assert.Equal(t, 2, rows[0].IndividualCount)
}

func TestReconcile_DuplicatePinRowsKeptOnce(t *testing.T) {
	admitted := []SortRecord{
		{SampleID: "s1", SubsampleID: "ss1", SampleType: "carabid", TaxonID: "CARSP1", IndividualCount: 2},
	}
	pins := []PinRecord{
		{SubsampleID: "ss1", IndividualID: "i1", TaxonID: "CARSP1"},
		{SubsampleID: "ss1", IndividualID: "i1", TaxonID: "CARSP9"},
	}

	rows := Reconcile(admitted, pins, nil)
	require.Len(t, rows, 2)
	assert.Equal(t, "i1", rows[0].IndividualID)
	assert.Equal(t, "CARSP1", rows[0].Identification.TaxonID)
	assert.Equal(t, 1, rows[1].IndividualCount) // residual for the unpinned individual
}

func TestResolveIdentification_Precedence(t *testing.T) {
	sort := Identification{TaxonID: "a", Source: SourceSort}
	pin := Identification{TaxonID: "b", Source: SourcePin}
	expert := Identification{TaxonID: "c", Source: SourceExpert}

	assert.Equal(t, "c", resolveIdentification(sort, &pin, &expert).TaxonID)
	assert.Equal(t, "b", resolveIdentification(sort, &pin, nil).TaxonID)
	assert.Equal(t, "a", resolveIdentification(sort, nil, nil).TaxonID)
	// An expert determination without a surviving pin never happens upstream,
	// but precedence still holds.
	assert.Equal(t, "c", resolveIdentification(sort, nil, &expert).TaxonID)
}

func TestIsCarabid(t *testing.T) {
	assert.True(t, isCarabid("carabid"))
	assert.True(t, isCarabid("other carabid"))
	assert.True(t, isCarabid(" carabid "))
	assert.False(t, isCarabid("invert bycatch"))
	assert.False(t, isCarabid("vert bycatch mam"))
	assert.False(t, isCarabid(""))
}
