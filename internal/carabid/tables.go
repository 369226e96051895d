package carabid

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
)

// dateLayouts covers the timestamp shapes seen in portal CSVs. Everything is
// truncated to a UTC calendar date after parsing; bout resolution and
// exposure math operate on whole days.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ReadFieldData decodes a bet_fielddata CSV. A non-empty set or collect date
// that fails to parse is fatal and names the offending sample; empty dates
// pass through as zero times for the normalizer to police.
func ReadFieldData(r io.Reader) ([]FieldSample, error) {
	reader, err := tableReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "fielddata: read")
	}

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "fielddata: read CSV header")
	}
	colIdx := mapColumns(header)

	var out []FieldSample
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "fielddata: read CSV row")
		}

		sampleID := trimQuotes(getCol(record, colIdx, "sampleID"))

		setDate, err := parseDate(getCol(record, colIdx, "setDate"))
		if err != nil {
			return nil, eris.Wrapf(err, "fielddata: sample %q: setDate", sampleID)
		}
		collectDate, err := parseDate(getCol(record, colIdx, "collectDate"))
		if err != nil {
			return nil, eris.Wrapf(err, "fielddata: sample %q: collectDate", sampleID)
		}

		out = append(out, FieldSample{
			UID:         trimQuotes(getCol(record, colIdx, "uid")),
			SampleID:    sampleID,
			DomainID:    trimQuotes(getCol(record, colIdx, "domainID")),
			SiteID:      trimQuotes(getCol(record, colIdx, "siteID")),
			PlotID:      trimQuotes(getCol(record, colIdx, "plotID")),
			TrapID:      trimQuotes(getCol(record, colIdx, "trapID")),
			SetDate:     setDate,
			CollectDate: collectDate,
			EventID:     trimQuotes(getCol(record, colIdx, "eventID")),
			Collected:   parseBoolYN(getCol(record, colIdx, "sampleCollected")),
		})
	}
	return out, nil
}

// ReadSorting decodes a bet_sorting CSV. Counts that are empty or malformed
// come through as zero; the merge stage drops non-positive rows.
func ReadSorting(r io.Reader) ([]SortRecord, error) {
	reader, err := tableReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "sorting: read")
	}

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "sorting: read CSV header")
	}
	colIdx := mapColumns(header)

	var out []SortRecord
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "sorting: read CSV row")
		}

		out = append(out, SortRecord{
			UID:             trimQuotes(getCol(record, colIdx, "uid")),
			SampleID:        trimQuotes(getCol(record, colIdx, "sampleID")),
			SubsampleID:     trimQuotes(getCol(record, colIdx, "subsampleID")),
			SampleType:      trimQuotes(getCol(record, colIdx, "sampleType")),
			TaxonID:         trimQuotes(getCol(record, colIdx, "taxonID")),
			ScientificName:  trimQuotes(getCol(record, colIdx, "scientificName")),
			TaxonRank:       trimQuotes(getCol(record, colIdx, "taxonRank")),
			Qualifier:       trimQuotes(getCol(record, colIdx, "identificationQualifier")),
			IndividualCount: parseIntOr(trimQuotes(getCol(record, colIdx, "individualCount")), 0),
		})
	}
	return out, nil
}

// ReadPinning decodes a bet_parataxonomistID CSV.
func ReadPinning(r io.Reader) ([]PinRecord, error) {
	reader, err := tableReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "pinning: read")
	}

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "pinning: read CSV header")
	}
	colIdx := mapColumns(header)

	var out []PinRecord
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "pinning: read CSV row")
		}

		out = append(out, PinRecord{
			UID:            trimQuotes(getCol(record, colIdx, "uid")),
			SubsampleID:    trimQuotes(getCol(record, colIdx, "subsampleID")),
			IndividualID:   trimQuotes(getCol(record, colIdx, "individualID")),
			TaxonID:        trimQuotes(getCol(record, colIdx, "taxonID")),
			ScientificName: trimQuotes(getCol(record, colIdx, "scientificName")),
			TaxonRank:      trimQuotes(getCol(record, colIdx, "taxonRank")),
			Qualifier:      trimQuotes(getCol(record, colIdx, "identificationQualifier")),
		})
	}
	return out, nil
}

// ReadExpert decodes a bet_expertTaxonomistIDProcessed CSV.
func ReadExpert(r io.Reader) ([]ExpertRecord, error) {
	reader, err := tableReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "expert: read")
	}

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "expert: read CSV header")
	}
	colIdx := mapColumns(header)

	var out []ExpertRecord
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "expert: read CSV row")
		}

		out = append(out, ExpertRecord{
			UID:            trimQuotes(getCol(record, colIdx, "uid")),
			IndividualID:   trimQuotes(getCol(record, colIdx, "individualID")),
			TaxonID:        trimQuotes(getCol(record, colIdx, "taxonID")),
			ScientificName: trimQuotes(getCol(record, colIdx, "scientificName")),
			TaxonRank:      trimQuotes(getCol(record, colIdx, "taxonRank")),
			Qualifier:      trimQuotes(getCol(record, colIdx, "identificationQualifier")),
		})
	}
	return out, nil
}

// tableReader materializes the input, repairs the text encoding, and hands
// back a CSV reader configured for portal exports.
func tableReader(r io.Reader) (*csv.Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = decodeText(data)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	return reader, nil
}

// decodeText strips a UTF-8 BOM and transcodes Latin-1 payloads. Older
// portal archives are not reliably UTF-8.
func decodeText(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return data
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return decoded
}

// parseDate parses a portal date or timestamp and truncates it to a UTC
// calendar date. Empty input is a zero time, not an error.
func parseDate(s string) (time.Time, error) {
	s = trimQuotes(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, eris.Errorf("unparseable date %q", s)
}

// parseIntOr parses a string as an integer, returning def if parsing fails or the string is empty.
func parseIntOr(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// trimQuotes removes surrounding double quotes from a CSV field.
func trimQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}

// parseBoolYN returns true if the string is "Y" (case-insensitive), false otherwise.
func parseBoolYN(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "Y")
}

// mapColumns builds a case-insensitive column name to index map.
func mapColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		m[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return m
}

// getCol gets a column value by name from a CSV record, returning empty string if not found.
func getCol(record []string, colIdx map[string]int, name string) string {
	idx, ok := colIdx[strings.ToLower(name)]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}
