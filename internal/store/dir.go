package store

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/quadrat-io/trapline/internal/carabid"
	"github.com/quadrat-io/trapline/internal/fetcher"
)

// DirProvider reads the four tables from a directory of portal CSVs or from
// a portal zip download, without touching the cache. Zip input is extracted
// to a temp directory that Close removes.
type DirProvider struct {
	dir     string
	cleanup string
}

// NewDirProvider opens a directory or a .zip archive of portal files.
func NewDirProvider(path string) (*DirProvider, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: stat %s", path)
	}
	if info.IsDir() {
		return &DirProvider{dir: path}, nil
	}
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return nil, eris.Errorf("store: %s is neither a directory nor a zip archive", path)
	}

	tmp, err := os.MkdirTemp("", "trapline-*")
	if err != nil {
		return nil, eris.Wrap(err, "store: temp dir")
	}
	paths, err := fetcher.ExtractZIP(path, tmp)
	if err != nil {
		os.RemoveAll(tmp)
		return nil, err
	}
	// Portal bulk downloads nest one zip per site-month.
	for _, p := range paths {
		if !strings.EqualFold(filepath.Ext(p), ".zip") {
			continue
		}
		if _, err := fetcher.ExtractZIP(p, tmp); err != nil {
			os.RemoveAll(tmp)
			return nil, err
		}
	}
	return &DirProvider{dir: tmp, cleanup: tmp}, nil
}

// Close removes the extraction directory, if any.
func (p *DirProvider) Close() error {
	if p.cleanup == "" {
		return nil
	}
	return os.RemoveAll(p.cleanup)
}

func (p *DirProvider) FieldData(ctx context.Context) ([]carabid.FieldSample, error) {
	return readDirTable(ctx, p.dir, carabid.TableFieldData, carabid.ReadFieldData,
		func(s carabid.FieldSample) string { return s.UID })
}

func (p *DirProvider) Sorting(ctx context.Context) ([]carabid.SortRecord, error) {
	return readDirTable(ctx, p.dir, carabid.TableSorting, carabid.ReadSorting,
		func(r carabid.SortRecord) string { return r.UID })
}

func (p *DirProvider) Pinning(ctx context.Context) ([]carabid.PinRecord, error) {
	return readDirTable(ctx, p.dir, carabid.TablePinning, carabid.ReadPinning,
		func(r carabid.PinRecord) string { return r.UID })
}

func (p *DirProvider) Expert(ctx context.Context) ([]carabid.ExpertRecord, error) {
	return readDirTable(ctx, p.dir, carabid.TableExpert, carabid.ReadExpert,
		func(r carabid.ExpertRecord) string { return r.UID })
}

// readDirTable stacks every CSV under dir whose name carries the table
// token, in lexicographic path order.
func readDirTable[T any](ctx context.Context, dir, table string,
	parse func(io.Reader) ([]T, error), uid func(T) string) ([]T, error) {

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.Contains(name, table) && strings.EqualFold(filepath.Ext(name), ".csv") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "store: scan %s", dir)
	}
	sort.Strings(files)

	var out []T
	seen := make(map[string]bool)
	for _, fp := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := os.Open(fp)
		if err != nil {
			return nil, eris.Wrapf(err, "store: open %s", filepath.Base(fp))
		}
		rows, err := parse(f)
		f.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "store: parse %s", filepath.Base(fp))
		}
		out, _ = appendDedup(out, rows, seen, uid, 0)
	}
	return out, nil
}
