package records

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDropMetrics struct {
	mu      sync.Mutex
	reasons map[string]int
}

func (m *mockDropMetrics) RecordsDroppedInc(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reasons == nil {
		m.reasons = make(map[string]int)
	}
	m.reasons[reason]++
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2025/07/28(月)", time.Date(2025, 7, 28, 0, 0, 0, 0, time.UTC), true},
		{"2025/07/28", time.Date(2025, 7, 28, 0, 0, 0, 0, time.UTC), true},
		{"2025/7/3（木）", time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC), true},
		{"2025-01-02", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{" 2024/12/31 ", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"(月)", time.Time{}, false},
		{"yesterday", time.Time{}, false},
		{"2025/13/01", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func TestParseTemperature_EmbeddedNumber(t *testing.T) {
	for _, v := range []float64{0, 7, 12.5, 18.25, 26.0, 31.9} {
		for _, glyph := range []string{"℃", "°C", "度", ""} {
			text := formatFloat(v) + glyph
			got := ParseTemperature(text)
			require.NotNil(t, got, text)
			assert.Equal(t, v, *got, text)
		}
	}

	assert.Nil(t, ParseTemperature(""))
	assert.Nil(t, ParseTemperature("不明"))
	assert.Equal(t, 24.5, *ParseTemperature("水温 24.5℃"))
}

func TestParseVisitors(t *testing.T) {
	tests := []struct {
		in   string
		want *int
	}{
		{"400名", intPtr(400)},
		{"0人", intPtr(0)},
		{"2000名", intPtr(2000)},
		{"2001名", nil},
		{"9999", nil},
		{"約150名", intPtr(150)},
		{"", nil},
		{"不明", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseVisitors(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestParseVisitors_AllIntegersInRange(t *testing.T) {
	for n := 0; n <= 2500; n += 37 {
		got := ParseVisitors(formatInt(n) + "名")
		if n > MaxVisitors {
			assert.Nil(t, got, n)
			continue
		}
		require.NotNil(t, got, n)
		assert.Equal(t, n, *got)
	}
}

func TestParseWeather(t *testing.T) {
	tests := map[string]Weather{
		"晴れ":        Sunny,
		"快晴":        Sunny,
		"晴":         Sunny,
		"曇り":        Cloudy,
		"薄曇り":       Cloudy,
		"雨":         Rainy,
		"暴風雨":       Rainy,
		"雪":         Snowy,
		"曇り時々晴れ":    Cloudy,
		"曇りのち晴れ":    Sunny,
		"晴れのち雨":     Rainy,
		"曇りのち晴れ一時雨": Cloudy,
		"雨のち曇り時々晴れ": Cloudy,
		"Sunny":     Sunny,
		"rainy":     Rainy,
		"":          "",
		"  ":        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseWeather(in), "input %q", in)
	}
}

func TestParseWeather_UnmappedDefaultsToCloudy(t *testing.T) {
	assert.Equal(t, Cloudy, ParseWeather("霧"))

	_, ok := LookupWeather("霧")
	assert.False(t, ok)
	w, ok := LookupWeather("曇り時々晴れ")
	assert.True(t, ok)
	assert.Equal(t, Cloudy, w)
}

func TestWeatherCode(t *testing.T) {
	tests := map[string]int{
		"晴れ":        0,
		"晴":         0,
		"曇り":        1,
		"雨":         2,
		"雪":         3,
		"曇りのち晴れ":    1,
		"曇り時々晴れ":    1,
		"晴れのち雨":     1,
		"小雨":        1,
		"快晴":        1,
		"霧":         1,
		" Rainy ":   2,
		"snowy":     3,
	}
	for in, want := range tests {
		assert.Equal(t, want, WeatherCode(in, ""), "input %q", in)
	}

	// the category only decides when the text is missing
	assert.Equal(t, 1, WeatherCode("曇りのち晴れ", Sunny))
	assert.Equal(t, 2, WeatherCode("", Rainy))
	assert.Equal(t, 1, WeatherCode("", ""))
}

func TestParseTide(t *testing.T) {
	assert.Equal(t, SpringTide, ParseTide("大潮"))
	assert.Equal(t, MediumTide, ParseTide("中潮"))
	assert.Equal(t, NeapTide, ParseTide("小潮"))
	assert.Equal(t, LongTide, ParseTide("長潮"))
	assert.Equal(t, YoungTide, ParseTide("若潮"))
	assert.Equal(t, NeapTide, ParseTide("Neap"))
	assert.Equal(t, Tide(""), ParseTide("満潮"))

	assert.Equal(t, "大潮", SpringTide.Label())
	assert.Equal(t, "", Tide("").Label())
}

func TestCodes(t *testing.T) {
	for i, w := range Weathers {
		assert.Equal(t, i, w.Code())
	}
	assert.Equal(t, 1, Weather("").Code())

	for i, tide := range Tides {
		assert.Equal(t, i, tide.Code())
	}
	assert.Equal(t, 1, Tide("").Code())
}

func TestNormalize_DropPolicy(t *testing.T) {
	raws := []RawRecord{
		{Date: "2025/07/28(月)", Weather: "晴れ", WaterTemp: "26.0℃", Tide: "大潮", Visitors: "400名", Species: "アジ", CatchCount: "120", Location: "先端"},
		{Date: "", Species: "アジ", CatchCount: "5"},
		{Date: "2025/07/28", Species: " ", CatchCount: "5"},
		{Date: "2025/07/28", Species: "サバ", CatchCount: "-3"},
		{Date: "2025/07/28", Species: "サバ", CatchCount: "many"},
		{Date: "2025/07/29", Weather: "", WaterTemp: "", Tide: "??", Visitors: "5000名", Species: "サバ", CatchCount: "7匹"},
	}

	metrics := &mockDropMetrics{}
	recs, report := NewNormalizer(metrics).Normalize(raws)

	require.Len(t, recs, 2)
	assert.Equal(t, 6, report.Total)
	assert.Equal(t, 2, report.Kept)
	assert.Equal(t, 4, report.Dropped)
	assert.Equal(t, 1, report.Reasons[ReasonBadDate])
	assert.Equal(t, 1, report.Reasons[ReasonMissingSpecie])
	assert.Equal(t, 1, report.Reasons[ReasonNegativeCatch])
	assert.Equal(t, 1, report.Reasons[ReasonBadCatch])
	assert.Equal(t, report.Reasons, metrics.reasons)

	first := recs[0]
	assert.Equal(t, Sunny, first.Weather)
	assert.Equal(t, "晴れ", first.WeatherText)
	assert.Equal(t, SpringTide, first.Tide)
	require.NotNil(t, first.WaterTemp)
	assert.Equal(t, 26.0, *first.WaterTemp)
	require.NotNil(t, first.Visitors)
	assert.Equal(t, 400, *first.Visitors)
	assert.Equal(t, 120, first.CatchCount)
	assert.Equal(t, "先端", first.Location)

	second := recs[1]
	assert.Equal(t, Weather(""), second.Weather)
	assert.Equal(t, Tide(""), second.Tide)
	assert.Nil(t, second.WaterTemp)
	assert.Nil(t, second.Visitors)
	assert.Equal(t, 7, second.CatchCount)
}

func TestNormalizeOne_ParseError(t *testing.T) {
	_, err := NormalizeOne(RawRecord{Date: "bad", Species: "アジ", CatchCount: "1"})
	require.Error(t, err)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "date", pe.Field)
	assert.Equal(t, ReasonBadDate, pe.Reason)
	assert.Contains(t, pe.Error(), "bad")
}

func TestRecord_Day(t *testing.T) {
	r := Record{Date: time.Date(2025, 3, 4, 15, 30, 0, 0, time.FixedZone("JST", 9*3600))}
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), r.Day())
}

func intPtr(v int) *int { return &v }

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func formatInt(v int) string { return strconv.Itoa(v) }
