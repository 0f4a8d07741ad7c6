package bars

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
)

func TestLoad_OHLCVOnly(t *testing.T) {
	in := `timestamp,open,high,low,close,volume
2024-01-02 09:15:00,100,101,99,100.5,1200
2024-01-02 09:16:00,100.5,102,100,101.5,900
`
	s, err := Load(strings.NewReader(in))
	require.NoError(t, err)

	require.Len(t, s.Bars, 2)
	assert.False(t, s.HasSignals())
	assert.Equal(t, time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC), s.Bars[0].Timestamp)
	assert.Equal(t, 101.5, s.Bars[1].Close)
	assert.False(t, s.Bars[0].HasATR())
}

func TestLoad_OptionalColumnsAndSorting(t *testing.T) {
	in := `timestamp,open,high,low,close,volume,atr,signal
2024-01-02T09:16:00Z,100,101,99,100,0,1.5,sell
2024-01-02T09:15:00Z,100,101,99,100,0,,2
`
	s, err := Load(strings.NewReader(in))
	require.NoError(t, err)

	require.True(t, s.HasSignals())
	assert.Equal(t, []market.Signal{market.Buy, market.Sell}, s.Signals)
	assert.True(t, s.Bars[0].Timestamp.Before(s.Bars[1].Timestamp))
	assert.Equal(t, 1.5, s.Bars[1].ATR)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"bad price":   "timestamp,open,high,low,close,volume\n2024-01-02,abc,1,1,1,1\n",
		"zero close":  "timestamp,open,high,low,close,volume\n2024-01-02,1,1,1,0,1\n",
		"bad time":    "timestamp,open,high,low,close,volume\nyesterday,1,1,1,1,1\n",
		"bad signal":  "timestamp,open,high,low,close,volume,signal\n2024-01-02,1,1,1,1,1,maybe\n",
		"duplicate":   "timestamp,open,high,low,close,volume\n2024-01-02,1,1,1,1,1\n2024-01-02,1,1,1,1,1\n",
		"header only": "timestamp,open,high,low,close,volume\n",
		"nan close":   "timestamp,open,high,low,close,volume\n2024-01-02,1,1,1,NaN,1\n",
		"inf close":   "timestamp,open,high,low,close,volume\n2024-01-02,1,1,1,Inf,1\n",
		"neg inf low": "timestamp,open,high,low,close,volume\n2024-01-02,1,1,-Inf,1,1\n",
		"nan volume":  "timestamp,open,high,low,close,volume\n2024-01-02,1,1,1,1,nan\n",
		"inf atr":     "timestamp,open,high,low,close,volume,atr\n2024-01-02,1,1,1,1,1,+Inf\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("1704187500")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 25, 0, 0, time.UTC), ts)

	ts, err = ParseTimestamp("2024-01-02 09:15:00+05:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 45, 0, 0, time.UTC), ts.UTC())
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	start := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	in := []market.Bar{
		{Timestamp: start, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10, ATR: 1.2},
		{Timestamp: start.Add(time.Minute), Open: 100.5, High: 102, Low: 100, Close: 101, Volume: 12},
	}
	require.NoError(t, SaveFile(path, in, []market.Signal{market.Buy, market.Hold}))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, in, s.Bars)
	assert.Equal(t, []market.Signal{market.Buy, market.Hold}, s.Signals)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
