package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Table is a raw export: the header row and the data records beneath it.
// Records are not reshaped; they may be shorter or longer than Header.
type Table struct {
	Header  []string
	Records [][]string
}

// TableOptions configures ReadTable.
type TableOptions struct {
	Delimiter rune   // CSV only, default ','
	Sheet     string // XLSX only, default first sheet
}

// ReadTable reads a CSV or XLSX export, chosen by file extension. The first
// row is the header. An export without a header row is an error.
func ReadTable(ctx context.Context, path string, opts TableOptions) (*Table, error) {
	var (
		t   *Table
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		t, err = readXLSXTable(path, opts)
	case ".csv", ".txt", "":
		t, err = readCSVTable(ctx, path, opts)
	default:
		return nil, eris.Errorf("fetcher: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if len(t.Header) == 0 {
		return nil, eris.Errorf("fetcher: %s has no header row", path)
	}

	zap.L().Info("fetcher: read table",
		zap.String("path", path),
		zap.Int("columns", len(t.Header)),
		zap.Int("records", len(t.Records)),
	)
	return t, nil
}

func readCSVTable(ctx context.Context, path string, opts TableOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: open csv")
	}
	defer f.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(ctx, f, CSVOptions{
		Delimiter:  opts.Delimiter,
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
	})

	t := &Table{}
	for row := range rowCh {
		t.Records = append(t.Records, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "fetcher: read %s", path)
	}
	select {
	case h := <-headerCh:
		t.Header = h
	default:
	}
	return t, nil
}

func readXLSXTable(path string, opts TableOptions) (*Table, error) {
	rows, err := ReadXLSX(path, XLSXOptions{SheetName: opts.Sheet})
	if err != nil {
		return nil, err
	}
	t := &Table{}
	if len(rows) == 0 {
		return t, nil
	}
	t.Header = rows[0]
	t.Records = rows[1:]
	return t, nil
}
