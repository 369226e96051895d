package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fieldDataHeader = "uid,sampleID,domainID,siteID,plotID,trapID,setDate,collectDate,eventID,sampleCollected\n"

func seedFieldData(t *testing.T, c *Cache, site, month, body string) {
	t.Helper()
	require.NoError(t, c.PutFile(context.Background(), RawFile{
		TableName: "bet_fielddata",
		SiteID:    site,
		Month:     month,
		FileName:  site + "." + month + ".csv",
		Data:      []byte(fieldDataHeader + body),
	}))
}

func TestProvider_StacksMonths(t *testing.T) {
	c := newTestCache(t)

	seedFieldData(t, c, "HARV", "2018-06",
		"u1,s1,D01,HARV,HARV_001,E,2018-06-01,2018-06-05,HARV.1,Y\n")
	seedFieldData(t, c, "HARV", "2018-07",
		"u2,s2,D01,HARV,HARV_001,E,2018-07-01,2018-07-05,HARV.2,Y\n")

	samples, err := c.Provider().FieldData(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "s1", samples[0].SampleID)
	assert.Equal(t, "s2", samples[1].SampleID)
}

func TestProvider_DedupesRepublishedRows(t *testing.T) {
	c := newTestCache(t)

	// The portal re-publishes provisional rows in later releases under the
	// same uid.
	seedFieldData(t, c, "HARV", "2018-06",
		"u1,s1,D01,HARV,HARV_001,E,2018-06-01,2018-06-05,HARV.1,Y\n")
	seedFieldData(t, c, "HARV", "2018-07",
		"u1,s1,D01,HARV,HARV_001,E,2018-06-01,2018-06-05,HARV.1,Y\n"+
			"u2,s2,D01,HARV,HARV_001,E,2018-07-01,2018-07-05,HARV.2,Y\n")

	samples, err := c.Provider().FieldData(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "u1", samples[0].UID)
	assert.Equal(t, "u2", samples[1].UID)
}

func TestProvider_KeepsRowsWithoutUID(t *testing.T) {
	c := newTestCache(t)

	seedFieldData(t, c, "HARV", "2018-06",
		",s1,D01,HARV,HARV_001,E,2018-06-01,2018-06-05,HARV.1,Y\n"+
			",s2,D01,HARV,HARV_001,F,2018-06-01,2018-06-05,HARV.1,Y\n")

	samples, err := c.Provider().FieldData(context.Background())
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

func TestProvider_SiteFilter(t *testing.T) {
	c := newTestCache(t)

	seedFieldData(t, c, "HARV", "2018-06",
		"u1,s1,D01,HARV,HARV_001,E,2018-06-01,2018-06-05,HARV.1,Y\n")
	seedFieldData(t, c, "BART", "2018-06",
		"u2,s2,D01,BART,BART_001,E,2018-06-01,2018-06-05,BART.1,Y\n")

	samples, err := c.Provider("BART").FieldData(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "BART", samples[0].SiteID)
}

func TestProvider_AllTables(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	seedFieldData(t, c, "HARV", "2018-06",
		"u1,s1,D01,HARV,HARV_001,E,2018-06-01,2018-06-05,HARV.1,Y\n")
	require.NoError(t, c.PutFile(ctx, RawFile{
		TableName: "bet_sorting", SiteID: "HARV", Month: "2018-06", FileName: "s.csv",
		Data: []byte("uid,sampleID,subsampleID,sampleType,taxonID,scientificName,taxonRank,identificationQualifier,individualCount\n" +
			"su1,s1,s1.ss1,carabid,CARSP1,Carabus sp.,genus,,3\n"),
	}))
	require.NoError(t, c.PutFile(ctx, RawFile{
		TableName: "bet_parataxonomistID", SiteID: "HARV", Month: "2018-06", FileName: "p.csv",
		Data: []byte("uid,subsampleID,individualID,taxonID,scientificName,taxonRank,identificationQualifier\n" +
			"pu1,s1.ss1,ind1,CARSP1,Carabus sp.,genus,\n"),
	}))
	require.NoError(t, c.PutFile(ctx, RawFile{
		TableName: "bet_expertTaxonomistIDProcessed", SiteID: "HARV", Month: "2018-06", FileName: "e.csv",
		Data: []byte("uid,individualID,taxonID,scientificName,taxonRank,identificationQualifier\n" +
			"eu1,ind1,CARNEM,Carabus nemoralis,species,\n"),
	}))

	samples, err := c.Provider().FieldData(ctx)
	require.NoError(t, err)
	assert.Len(t, samples, 1)

	sorts, err := c.Provider().Sorting(ctx)
	require.NoError(t, err)
	require.Len(t, sorts, 1)
	assert.Equal(t, 3, sorts[0].IndividualCount)

	pins, err := c.Provider().Pinning(ctx)
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.Equal(t, "ind1", pins[0].IndividualID)

	experts, err := c.Provider().Expert(ctx)
	require.NoError(t, err)
	require.Len(t, experts, 1)
	assert.Equal(t, "CARNEM", experts[0].TaxonID)
}

func TestProvider_EmptyCache(t *testing.T) {
	c := newTestCache(t)

	samples, err := c.Provider().FieldData(context.Background())
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestProvider_BadCachedFile(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	seedFieldData(t, c, "HARV", "2018-06",
		"u1,s1,D01,HARV,HARV_001,E,notadate,2018-06-05,HARV.1,Y\n")

	_, err := c.Provider().FieldData(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bet_fielddata")
}
