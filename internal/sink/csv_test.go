package sink

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quadrat-io/trapline/internal/carabid"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testCounts() []carabid.CountRow {
	return []carabid.CountRow{
		{
			SampleID:       "HARV_001.E.20180604",
			DomainID:       "D01",
			SiteID:         "HARV",
			PlotID:         "HARV_001",
			TrapID:         "E",
			CollectDate:    time.Date(2018, 6, 4, 0, 0, 0, 0, time.UTC),
			TrappingDays:   14,
			BoutID:         "HARV_2018-06-04",
			TaxonID:        "CARSP1",
			ScientificName: "Carabus sp.",
			TaxonRank:      "genus",
			Count:          3,
		},
		{
			SampleID:       "HARV_001.E.20180604",
			DomainID:       "D01",
			SiteID:         "HARV",
			PlotID:         "HARV_001",
			TrapID:         "E",
			CollectDate:    time.Date(2018, 6, 4, 0, 0, 0, 0, time.UTC),
			TrappingDays:   14,
			BoutID:         "HARV_2018-06-04",
			TaxonID:        "PTEMEL",
			ScientificName: "Pterostichus melanarius",
			TaxonRank:      "species",
			Count:          1,
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, testCounts()))

	want := "sampleID,domainID,siteID,plotID,trapID,collectDate,trappingDays,boutID,taxonID,scientificName,taxonRank,count\n" +
		"HARV_001.E.20180604,D01,HARV,HARV_001,E,2018-06-04,14,HARV_2018-06-04,CARSP1,Carabus sp.,genus,3\n" +
		"HARV_001.E.20180604,D01,HARV,HARV_001,E,2018-06-04,14,HARV_2018-06-04,PTEMEL,Pterostichus melanarius,species,1\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	assert.Equal(t, "sampleID,domainID,siteID,plotID,trapID,collectDate,trappingDays,boutID,taxonID,scientificName,taxonRank,count\n",
		buf.String())
}

func TestCSVSink_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.csv")

	err := NewCSV(path).Write(context.Background(), testCounts())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "CARSP1")
	assert.Contains(t, string(data), "2018-06-04")
}

func TestCSVSink_BadPath(t *testing.T) {
	err := NewCSV(filepath.Join(t.TempDir(), "no", "such", "dir", "counts.csv")).
		Write(context.Background(), testCounts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink: create")
}
