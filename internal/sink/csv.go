// Package sink persists downloaded trades as CSV files.
package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shopspring/decimal"

	"pumpscope/internal/trade"
)

// Header is the fixed column order of every trade CSV.
var Header = []string{"symbol", "timestamp", "datetime", "side", "price", "amount", "btc_volume"}

// Exists reports whether a file is already present at path. The runner uses it
// to skip events that were downloaded before.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WriteCSV writes trades to path atomically: rows go to a temp file in the same
// directory which is renamed over path only after a successful flush.
func WriteCSV(path string, trades []trade.Trade) error {
	return writeAtomic(path, func(w io.Writer) error { return Encode(w, trades) })
}

// writeAtomic streams encode into a temp file next to path and renames it
// into place. On any failure the temp file is removed and path is untouched.
func writeAtomic(path string, encode func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if err = encode(tmp); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Encode writes the header and one row per trade.
func Encode(w io.Writer, trades []trade.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.Symbol,
			strconv.FormatInt(t.Timestamp, 10),
			t.Datetime,
			string(t.Side),
			t.Price.String(),
			t.Amount.String(),
			strconv.FormatFloat(t.BTCVolume, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV loads a file written by WriteCSV. Trade ids are not part of the
// format, so the returned trades carry a zero ID.
func ReadCSV(path string) ([]trade.Trade, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) ([]trade.Trade, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []trade.Trade{}, nil
	}
	if err != nil {
		return nil, err
	}
	for i, col := range Header {
		if head[i] != col {
			return nil, fmt.Errorf("unexpected column %q at %d, want %q", head[i], i, col)
		}
	}
	out := make([]trade.Trade, 0)
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, err
		}
		t, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func parseRow(rec []string) (trade.Trade, error) {
	ts, err := strconv.ParseInt(rec[1], 10, 64)
	if err != nil {
		return trade.Trade{}, fmt.Errorf("timestamp: %w", err)
	}
	side, err := trade.ParseSide(rec[3])
	if err != nil {
		return trade.Trade{}, err
	}
	price, err := decimal.NewFromString(rec[4])
	if err != nil {
		return trade.Trade{}, fmt.Errorf("price: %w", err)
	}
	amount, err := decimal.NewFromString(rec[5])
	if err != nil {
		return trade.Trade{}, fmt.Errorf("amount: %w", err)
	}
	vol, err := strconv.ParseFloat(rec[6], 64)
	if err != nil {
		return trade.Trade{}, fmt.Errorf("btc_volume: %w", err)
	}
	return trade.Trade{
		Symbol:    rec[0],
		Timestamp: ts,
		Datetime:  rec[2],
		Side:      side,
		Price:     price,
		Amount:    amount,
		BTCVolume: vol,
	}, nil
}
