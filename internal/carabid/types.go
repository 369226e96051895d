// Package carabid reconciles ground-beetle pitfall-trap records from the
// NEON carabid data product into per-trap, per-bout abundance counts. The
// pipeline takes the four raw tables (field data, sorting, parataxonomist
// pinning, expert taxonomist review), derives canonical bout identifiers and
// trap-exposure durations, merges the three identification tiers under a
// strict precedence rule, and collapses the reconciled individuals into a
// de-duplicated count table.
package carabid

import "time"

// Raw table names as they appear in portal file manifests and cache keys.
const (
	TableFieldData = "bet_fielddata"
	TableSorting   = "bet_sorting"
	TablePinning   = "bet_parataxonomistID"
	TableExpert    = "bet_expertTaxonomistIDProcessed"
)

// Tables lists the four raw tables in pipeline order.
var Tables = []string{TableFieldData, TableSorting, TablePinning, TableExpert}

// DateLayout is the calendar-date format used for bout identifiers and
// serialized collect dates.
const DateLayout = "2006-01-02"

// Source identifies which identification tier produced a reconciled row.
type Source string

const (
	SourceSort   Source = "sort"
	SourcePin    Source = "pin"
	SourceExpert Source = "expert"
)

// Identification is one taxonomic determination, tagged with the tier that
// made it. Precedence between tiers is applied by resolveIdentification, not
// by field overwrites.
type Identification struct {
	TaxonID        string
	ScientificName string
	TaxonRank      string
	Qualifier      string
	Source         Source
}

// FieldSample is one row of the field-collection table: one trap, one
// sampling attempt. Only collected samples enter the pipeline.
type FieldSample struct {
	UID         string
	SampleID    string
	DomainID    string
	SiteID      string
	PlotID      string
	TrapID      string
	SetDate     time.Time
	CollectDate time.Time
	EventID     string
	Collected   bool
}

// TrappingRecord is a normalized field sample: exposure duration computed,
// collect date resolved to the bout date, event bookkeeping dropped.
type TrappingRecord struct {
	SampleID     string
	DomainID     string
	SiteID       string
	PlotID       string
	TrapID       string
	CollectDate  time.Time
	TrappingDays int
	BoutID       string
}

// SortRecord is one sorted group of individuals from a trap collection,
// identified to whatever rank the sorter could manage.
type SortRecord struct {
	UID             string
	SampleID        string
	SubsampleID     string
	SampleType      string
	TaxonID         string
	ScientificName  string
	TaxonRank       string
	Qualifier       string
	IndividualCount int
}

// PinRecord is one physically pinned specimen re-identified from a subsample.
type PinRecord struct {
	UID            string
	SubsampleID    string
	IndividualID   string
	TaxonID        string
	ScientificName string
	TaxonRank      string
	Qualifier      string
}

// ExpertRecord is an expert taxonomist's re-identification of a pinned
// specimen. An individual whose expert records disagree on taxonID is
// excluded from expert override entirely.
type ExpertRecord struct {
	UID            string
	IndividualID   string
	TaxonID        string
	ScientificName string
	TaxonRank      string
	Qualifier      string
}

// ReconciledIndividual is one identified individual, or one residual group of
// un-pinned individuals, after the three-tier merge. IndividualID is empty
// for sort-level rows.
type ReconciledIndividual struct {
	SampleID        string
	SubsampleID     string
	IndividualID    string
	Identification  Identification
	IndividualCount int
}

// CountRow is one row of the output table: summed individuals per unique
// (trapping record, taxon) tuple. Field order here is the serialized column
// order.
type CountRow struct {
	SampleID       string    `json:"sampleID"`
	DomainID       string    `json:"domainID"`
	SiteID         string    `json:"siteID"`
	PlotID         string    `json:"plotID"`
	TrapID         string    `json:"trapID"`
	CollectDate    time.Time `json:"collectDate"`
	TrappingDays   int       `json:"trappingDays"`
	BoutID         string    `json:"boutID"`
	TaxonID        string    `json:"taxonID"`
	ScientificName string    `json:"scientificName"`
	TaxonRank      string    `json:"taxonRank"`
	Count          int       `json:"count"`
}

// CountColumns is the canonical output header, in serialization order.
// Downstream consumers depend on this exact schema.
var CountColumns = []string{
	"sampleID", "domainID", "siteID", "plotID", "trapID",
	"collectDate", "trappingDays", "boutID",
	"taxonID", "scientificName", "taxonRank", "count",
}
