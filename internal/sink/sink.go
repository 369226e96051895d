// Package sink writes aggregated trap counts to their output destination:
// CSV, XLSX, or a PostgreSQL table.
package sink

import (
	"context"
	"strconv"

	"github.com/quadrat-io/trapline/internal/carabid"
)

// Sink writes count rows to one destination.
type Sink interface {
	Write(ctx context.Context, counts []carabid.CountRow) error
}

// rowStrings renders one count row in CountColumns order.
func rowStrings(c carabid.CountRow) []string {
	return []string{
		c.SampleID,
		c.DomainID,
		c.SiteID,
		c.PlotID,
		c.TrapID,
		c.CollectDate.Format(carabid.DateLayout),
		strconv.Itoa(c.TrappingDays),
		c.BoutID,
		c.TaxonID,
		c.ScientificName,
		c.TaxonRank,
		strconv.Itoa(c.Count),
	}
}
