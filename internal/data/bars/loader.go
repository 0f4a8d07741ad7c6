// Package bars loads and saves OHLCV bar series as CSV.
package bars

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"

	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
)

var (
	// ErrEmpty is returned for a file with a header but no rows
	ErrEmpty = errors.New("no bars in input")
	// ErrDuplicateTimestamp is returned when two bars share a timestamp
	ErrDuplicateTimestamp = errors.New("duplicate bar timestamp")
)

// Series is a loaded bar sequence. Signals is nil unless the input had a
// signal column.
type Series struct {
	Bars    []market.Bar
	Signals []market.Signal
}

// HasSignals reports whether a signal column was present
func (s *Series) HasSignals() bool {
	return s.Signals != nil
}

// BarRowDTO is one CSV row. atr and signal are optional columns.
type BarRowDTO struct {
	Timestamp string `csv:"timestamp"`
	Open      string `csv:"open"`
	High      string `csv:"high"`
	Low       string `csv:"low"`
	Close     string `csv:"close"`
	Volume    string `csv:"volume"`
	ATR       string `csv:"atr"`
	Signal    string `csv:"signal"`
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC3339, common date-time layouts and unix seconds
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

func parseFloat(name, raw string, optional bool) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" && optional {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s: non-finite value %q", name, raw)
	}
	return v, nil
}

// ToModel converts the row into a bar
func (dto BarRowDTO) ToModel() (market.Bar, error) {
	ts, err := ParseTimestamp(dto.Timestamp)
	if err != nil {
		return market.Bar{}, err
	}
	b := market.Bar{Timestamp: ts}
	fields := []struct {
		name     string
		raw      string
		dst      *float64
		optional bool
	}{
		{"open", dto.Open, &b.Open, false},
		{"high", dto.High, &b.High, false},
		{"low", dto.Low, &b.Low, false},
		{"close", dto.Close, &b.Close, false},
		{"volume", dto.Volume, &b.Volume, true},
		{"atr", dto.ATR, &b.ATR, true},
	}
	for _, f := range fields {
		if *f.dst, err = parseFloat(f.name, f.raw, f.optional); err != nil {
			return market.Bar{}, err
		}
	}

	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return market.Bar{}, fmt.Errorf("prices must be positive at %s", ts.Format(time.RFC3339))
	}
	if b.Volume < 0 {
		return market.Bar{}, fmt.Errorf("negative volume at %s", ts.Format(time.RFC3339))
	}
	return b, nil
}

// LoadFile reads a CSV file of bars
func LoadFile(path string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars file: %w", err)
	}
	defer f.Close()

	series, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Info().Str("path", path).Int("bars", len(series.Bars)).Bool("signals", series.HasSignals()).Msg("Loaded bars")
	return series, nil
}

// Load parses bars from r and returns them sorted by timestamp
func Load(r io.Reader) (*Series, error) {
	var rows []BarRowDTO
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse bars csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}

	type row struct {
		bar    market.Bar
		signal market.Signal
	}
	parsed := make([]row, len(rows))
	withSignals := false
	for i, dto := range rows {
		bar, err := dto.ToModel()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		sig := market.Hold
		if strings.TrimSpace(dto.Signal) != "" {
			withSignals = true
			if sig, err = market.ParseSignal(dto.Signal); err != nil {
				return nil, fmt.Errorf("row %d: %w", i+2, err)
			}
		}
		parsed[i] = row{bar: bar, signal: sig}
	}

	if !sort.SliceIsSorted(parsed, func(i, j int) bool { return parsed[i].bar.Timestamp.Before(parsed[j].bar.Timestamp) }) {
		log.Warn().Msg("Bars not in time order, sorting")
		sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].bar.Timestamp.Before(parsed[j].bar.Timestamp) })
	}

	series := &Series{Bars: make([]market.Bar, len(parsed))}
	if withSignals {
		series.Signals = make([]market.Signal, len(parsed))
	}
	for i, p := range parsed {
		if i > 0 && p.bar.Timestamp.Equal(parsed[i-1].bar.Timestamp) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTimestamp, p.bar.Timestamp.Format(time.RFC3339))
		}
		series.Bars[i] = p.bar
		if withSignals {
			series.Signals[i] = p.signal
		}
	}
	return series, nil
}

// SaveFile writes bars (and signals when non-nil) as CSV
func SaveFile(path string, bars []market.Bar, signals []market.Signal) error {
	if signals != nil && len(signals) != len(bars) {
		return fmt.Errorf("save bars: %d bars, %d signals", len(bars), len(signals))
	}
	rows := make([]BarRowDTO, len(bars))
	for i, b := range bars {
		rows[i] = BarRowDTO{
			Timestamp: b.Timestamp.Format(time.RFC3339),
			Open:      strconv.FormatFloat(b.Open, 'f', -1, 64),
			High:      strconv.FormatFloat(b.High, 'f', -1, 64),
			Low:       strconv.FormatFloat(b.Low, 'f', -1, 64),
			Close:     strconv.FormatFloat(b.Close, 'f', -1, 64),
			Volume:    strconv.FormatFloat(b.Volume, 'f', -1, 64),
		}
		if b.HasATR() {
			rows[i].ATR = strconv.FormatFloat(b.ATR, 'f', -1, 64)
		}
		if signals != nil {
			rows[i].Signal = strconv.Itoa(int(signals[i]))
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create bars file: %w", err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("write bars csv: %w", err)
	}
	return nil
}
