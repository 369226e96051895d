package sink

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quadrat-io/trapline/internal/carabid"
)

// CSVSink writes counts to a CSV file.
type CSVSink struct {
	Path string
}

// NewCSV returns a sink writing to the given path.
func NewCSV(path string) *CSVSink {
	return &CSVSink{Path: path}
}

func (s *CSVSink) Write(ctx context.Context, counts []carabid.CountRow) error {
	f, err := os.Create(s.Path)
	if err != nil {
		return eris.Wrapf(err, "sink: create %s", s.Path)
	}

	if err := WriteCSV(f, counts); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "sink: close %s", s.Path)
	}

	zap.L().Info("sink: wrote csv",
		zap.String("path", s.Path),
		zap.Int("rows", len(counts)),
	)
	return nil
}

// WriteCSV writes counts with a header row in CountColumns order.
func WriteCSV(w io.Writer, counts []carabid.CountRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(carabid.CountColumns); err != nil {
		return eris.Wrap(err, "sink: write csv header")
	}
	for _, c := range counts {
		if err := cw.Write(rowStrings(c)); err != nil {
			return eris.Wrap(err, "sink: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "sink: flush csv")
}
