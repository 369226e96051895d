package sink

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/quadrat-io/trapline/internal/carabid"
)

// XLSXSink writes counts to an XLSX workbook with a single "counts" sheet.
type XLSXSink struct {
	Path string
}

// NewXLSX returns a sink writing to the given path.
func NewXLSX(path string) *XLSXSink {
	return &XLSXSink{Path: path}
}

func (s *XLSXSink) Write(ctx context.Context, counts []carabid.CountRow) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("counts")
	if err != nil {
		return eris.Wrap(err, "sink: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range carabid.CountColumns {
		header.AddCell().SetString(col)
	}

	for _, c := range counts {
		row := sheet.AddRow()
		row.AddCell().SetString(c.SampleID)
		row.AddCell().SetString(c.DomainID)
		row.AddCell().SetString(c.SiteID)
		row.AddCell().SetString(c.PlotID)
		row.AddCell().SetString(c.TrapID)
		row.AddCell().SetString(c.CollectDate.Format(carabid.DateLayout))
		row.AddCell().SetInt(c.TrappingDays)
		row.AddCell().SetString(c.BoutID)
		row.AddCell().SetString(c.TaxonID)
		row.AddCell().SetString(c.ScientificName)
		row.AddCell().SetString(c.TaxonRank)
		row.AddCell().SetInt(c.Count)
	}

	if err := file.Save(s.Path); err != nil {
		return eris.Wrapf(err, "sink: save %s", s.Path)
	}

	zap.L().Info("sink: wrote xlsx",
		zap.String("path", s.Path),
		zap.Int("rows", len(counts)),
	)
	return nil
}
