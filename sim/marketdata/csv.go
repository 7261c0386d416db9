package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lobsim/lobsim/sim/book"
	"github.com/lobsim/lobsim/sim/simerr"
)

// CSVHeader is the column layout read and written by this package. update_id is optional
// on input. Consecutive snapshot rows sharing symbol, timestamp and update_id form one
// snapshot record, one level per row.
var CSVHeader = []string{"timestamp", "symbol", "type", "side", "price", "quantity", "update_id"}

// CSVSource reads records from a CSV stream.
type CSVSource struct {
	r       *csv.Reader
	closer  io.Closer
	cols    map[string]int
	line    int
	lastTS  int64
	pending *Update // first row of the next record, read ahead while grouping a snapshot
}

// NewCSVSource reads the header row and returns a source over the remaining rows.
func NewCSVSource(r io.Reader) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cr.FieldsPerRecord = -1
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range CSVHeader[:6] {
		if _, ok := cols[c]; !ok {
			return nil, &simerr.MalformedInputError{Field: "header", Value: strings.Join(header, ","), Reason: "missing column " + c, Line: 1}
		}
	}
	return &CSVSource{r: cr, cols: cols, line: 1, lastTS: -1}, nil
}

// OpenCSV opens a CSV file. The file is closed when the source reaches EOF or by Close.
func OpenCSV(path string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open market data %q: %w", path, err)
	}
	src, err := NewCSVSource(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	src.closer = f
	return src, nil
}

// Close releases the underlying file, if any.
func (s *CSVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	return c.Close()
}

// Next returns the next record. Timestamps going backwards are malformed input.
func (s *CSVSource) Next() (Update, error) {
	u, err := s.nextRow()
	if err != nil {
		return Update{}, err
	}
	if u.Type == Snapshot {
		for {
			nxt, err := s.nextRow()
			if err == io.EOF {
				break
			}
			if err != nil {
				return Update{}, err
			}
			if nxt.Type != Snapshot || nxt.Symbol != u.Symbol || nxt.Timestamp != u.Timestamp || nxt.UpdateID != u.UpdateID {
				s.pending = &nxt
				break
			}
			u.Bids = append(u.Bids, nxt.Bids...)
			u.Asks = append(u.Asks, nxt.Asks...)
		}
	}
	if err := u.Validate(); err != nil {
		var me *simerr.MalformedInputError
		if errors.As(err, &me) && me.Line == 0 {
			me.Line = s.line
		}
		return Update{}, err
	}
	return u, nil
}

func (s *CSVSource) nextRow() (Update, error) {
	if s.pending != nil {
		u := *s.pending
		s.pending = nil
		return u, nil
	}
	rec, err := s.r.Read()
	if err == io.EOF {
		s.Close()
		return Update{}, io.EOF
	}
	s.line++
	if err != nil {
		return Update{}, &simerr.MalformedInputError{Field: "row", Reason: err.Error(), Line: s.line}
	}
	u, err := s.parse(rec)
	if err != nil {
		return Update{}, err
	}
	if u.Timestamp < s.lastTS {
		return Update{}, &simerr.MalformedInputError{
			Field: "timestamp", Value: strconv.FormatInt(u.Timestamp, 10),
			Reason: fmt.Sprintf("goes backwards from %d", s.lastTS), Line: s.line,
		}
	}
	s.lastTS = u.Timestamp
	return u, nil
}

func (s *CSVSource) field(rec []string, name string) string {
	i, ok := s.cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (s *CSVSource) parse(rec []string) (Update, error) {
	bad := func(field, value, reason string) error {
		return &simerr.MalformedInputError{Field: field, Value: value, Reason: reason, Line: s.line}
	}
	var u Update
	raw := s.field(rec, "timestamp")
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return u, bad("timestamp", raw, "not an integer nanosecond timestamp")
	}
	u.Timestamp = ts
	u.Symbol = s.field(rec, "symbol")
	u.Type = Type(strings.ToLower(s.field(rec, "type")))

	raw = s.field(rec, "side")
	side, err := book.ParseSide(raw)
	if err != nil {
		return u, bad("side", raw, err.Error())
	}
	u.Side = side
	raw = s.field(rec, "price")
	if u.Price, err = decimal.NewFromString(raw); err != nil {
		return u, bad("price", raw, "not a decimal")
	}
	raw = s.field(rec, "quantity")
	if u.Quantity, err = decimal.NewFromString(raw); err != nil {
		return u, bad("quantity", raw, "not a decimal")
	}
	if raw = s.field(rec, "update_id"); raw != "" {
		if u.UpdateID, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return u, bad("update_id", raw, "not an unsigned integer")
		}
	}
	if u.Type == Snapshot {
		lvl := book.Level{Price: u.Price, Quantity: u.Quantity}
		if side == book.Bid {
			u.Bids = []book.Level{lvl}
		} else {
			u.Asks = []book.Level{lvl}
		}
		u.Side, u.Price, u.Quantity = 0, decimal.Zero, decimal.Zero
	}
	return u, nil
}

// CSVWriter writes records in the CSVSource layout.
type CSVWriter struct {
	w           *csv.Writer
	wroteHeader bool
}

func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// Write appends one record; snapshots become one row per level.
func (cw *CSVWriter) Write(u Update) error {
	if !cw.wroteHeader {
		if err := cw.w.Write(CSVHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		cw.wroteHeader = true
	}
	row := func(side book.Side, price, qty decimal.Decimal) error {
		id := ""
		if u.UpdateID != 0 {
			id = strconv.FormatUint(u.UpdateID, 10)
		}
		rec := []string{strconv.FormatInt(u.Timestamp, 10), u.Symbol, string(u.Type), side.String(), price.String(), qty.String(), id}
		if err := cw.w.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
		return nil
	}
	if u.Type != Snapshot {
		return row(u.Side, u.Price, u.Quantity)
	}
	for _, l := range u.Bids {
		if err := row(book.Bid, l.Price, l.Quantity); err != nil {
			return err
		}
	}
	for _, l := range u.Asks {
		if err := row(book.Ask, l.Price, l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes buffered rows and reports any write error.
func (cw *CSVWriter) Flush() error {
	cw.w.Flush()
	return cw.w.Error()
}
