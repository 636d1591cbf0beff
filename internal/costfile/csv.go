package costfile

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sells-group/techmap/internal/model"
)

// CSVOptions configures delimited-text reading and writing.
type CSVOptions struct {
	Delimiter  rune   // default ','
	Encoding   string // WHATWG label, e.g. "windows-1252"; default UTF-8
	LazyQuotes bool
}

func (o CSVOptions) comma() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

// decoder returns a reader producing UTF-8 with any byte-order mark removed.
func decoder(r io.Reader, label string) (io.Reader, error) {
	var enc encoding.Encoding = unicode.UTF8
	if label != "" && !strings.EqualFold(label, "utf-8") && !strings.EqualFold(label, "utf8") {
		var err error
		enc, err = htmlindex.Get(label)
		if err != nil {
			return nil, eris.Wrapf(err, "csv: unknown encoding %q", label)
		}
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}

// StreamCSV decodes r and sends each row to a channel. The first row is the
// header. Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		dr, err := decoder(r, opts.Encoding)
		if err != nil {
			errCh <- err
			return
		}

		reader := csv.NewReader(dr)
		reader.Comma = opts.comma()
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSV reads a whole cost table from r.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) (model.Dataset, error) {
	rowCh, errCh := StreamCSV(ctx, r, opts)

	var header []string
	var rows [][]string
	for row := range rowCh {
		if header == nil {
			header = row
			continue
		}
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return model.Dataset{}, err
	}
	if header == nil {
		return model.Dataset{}, eris.New("csv: empty input, no header row")
	}
	return FromRows(header, rows)
}

// WriteCSV writes ds as UTF-8 delimited text in its header order.
func WriteCSV(w io.Writer, ds model.Dataset, opts CSVOptions) error {
	cw := csv.NewWriter(w)
	cw.Comma = opts.comma()

	if err := cw.Write(ds.Header); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	if err := cw.WriteAll(ToRows(ds)); err != nil {
		return eris.Wrap(err, "csv: write rows")
	}
	return nil
}
