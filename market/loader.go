package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// LoadCSV reads bars from a CSV file and builds a dense BarSet.
//
// Expected columns: time,open,high,low,close,volume. The time column accepts
// RFC3339 or unix milliseconds. A header row is allowed. Files ending in .xz
// or .lzma are decompressed on the fly.
func LoadCSV(path, symbol string, timeframe int32) (*BarSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rd io.Reader = f
	switch {
	case strings.HasSuffix(path, ".xz"):
		rd, err = xz.NewReader(f)
	case strings.HasSuffix(path, ".lzma"):
		rd, err = lzma.NewReader(f)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	bars, err := ReadBars(rd)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return New(symbol, timeframe, bars)
}

// ReadBars parses CSV bar rows from r. Short or malformed rows are skipped;
// a row with an unparseable numeric field is an error.
func ReadBars(rd io.Reader) ([]Bar, error) {
	r := csv.NewReader(rd)
	r.FieldsPerRecord = -1

	var bars []Bar
	sawFirst := false

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 {
			continue
		}

		// Allow a single header row.
		if !sawFirst {
			sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		b, ok, err := parseBarRow(row)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func parseBarRow(row []string) (Bar, bool, error) {
	// Need at least: time,open,high,low,close,volume
	if len(row) < 6 {
		return Bar{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return Bar{}, false, nil
	}

	t, err := parseBarTime(ts)
	if err != nil {
		return Bar{}, false, err
	}

	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return Bar{}, false, fmt.Errorf("bad field %q: %w", row[i+1], err)
		}
		vals[i] = v
	}

	return Bar{
		Time:   t,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, true, nil
}

func parseBarTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	// Binance export style: unix milliseconds.
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}
