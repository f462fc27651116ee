package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"MarketVault/internal/model"
)

// dateUnitKey names the file metadata entry recording how the date column is encoded.
// Files written by this package always carry it with value "ms".
const dateUnitKey = "marketvault.date_unit"

// barRow is the on-disk row layout. Date holds unix milliseconds at UTC midnight.
// Files written by older tooling lack the date unit entry and may carry days, seconds
// or sub-millisecond epochs, or intraday instants; normalizeDate maps those back to a
// calendar date.
type barRow struct {
	Date   int64   `parquet:"date"`
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume int64   `parquet:"volume"`
}

func encodeSeries(series model.Series) ([]byte, error) {
	rows := make([]barRow, len(series))
	for i, b := range series {
		rows[i] = barRow{
			Date:   model.DateOf(b.Date).UnixMilli(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[barRow](&buf,
		parquet.Compression(&parquet.Zstd),
		parquet.KeyValueMetadata(dateUnitKey, "ms"),
	)
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeFile(path string) (model.Series, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	src := bytes.NewReader(data)
	f, err := parquet.OpenFile(src, src.Size())
	if err != nil {
		return nil, err
	}
	toDate := normalizeDate
	if unit, ok := f.Lookup(dateUnitKey); ok {
		if unit != "ms" {
			return nil, fmt.Errorf("unsupported date unit %q", unit)
		}
		toDate = func(v int64) time.Time { return model.DateOf(time.UnixMilli(v).UTC()) }
	}

	reader := parquet.NewGenericReader[barRow](src)
	defer reader.Close()
	rows := make([]barRow, reader.NumRows())
	for read := 0; read < len(rows); {
		n, err := reader.Read(rows[read:])
		read += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				rows = rows[:read]
				break
			}
			return nil, err
		}
		if n == 0 {
			rows = rows[:read]
			break
		}
	}

	series := make(model.Series, len(rows))
	for i, r := range rows {
		series[i] = model.Bar{
			Date:   toDate(r.Date),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return series, nil
}

// normalizeDate guesses the epoch unit of a date written without a unit entry.
// The guess is by magnitude, so such files only decode reliably for dates from
// 1973-03-04 on; 0 is read as a missing date.
func normalizeDate(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	abs := v
	if abs < 0 {
		abs = -abs
	}
	var t time.Time
	switch {
	case abs < 1e6:
		t = time.Unix(v*86400, 0)
	case abs < 1e11:
		t = time.Unix(v, 0)
	case abs < 1e14:
		t = time.UnixMilli(v)
	case abs < 1e17:
		t = time.UnixMicro(v)
	default:
		t = time.Unix(0, v)
	}
	return model.DateOf(t.UTC())
}
