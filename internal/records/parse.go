package records

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// MaxVisitors is the largest visitor count accepted as plausible.
const MaxVisitors = 2000

var (
	tempPattern    = regexp.MustCompile(`(\d+\.?\d*)`)
	visitorPattern = regexp.MustCompile(`(\d+)`)
	catchPattern   = regexp.MustCompile(`-?\d+`)

	dateLayouts = []string{"2006/01/02", "2006/1/2", "2006-01-02", "2006-1-2"}
)

// weatherTable maps ledger phrases to categories. Compound phrases are
// listed as entered in the ledger; their category is fixed by this table and
// is not derived from the words they contain.
var weatherTable = map[string]Weather{
	"晴れ":   Sunny,
	"快晴":   Sunny,
	"晴":    Sunny,
	"曇り":   Cloudy,
	"薄曇り":  Cloudy,
	"曇":    Cloudy,
	"雨":    Rainy,
	"小雨":   Rainy,
	"大雨":   Rainy,
	"暴風雨":  Rainy,
	"雪":    Snowy,
	"曇り時々晴れ":     Cloudy,
	"晴れのち曇り":     Sunny,
	"曇りのち雨":      Rainy,
	"雨のち晴れ":      Sunny,
	"雨のち曇り":      Cloudy,
	"曇りのち晴れ一時雨":  Cloudy,
	"曇りのち晴れ":     Sunny,
	"雨一時曇り":      Rainy,
	"雨時々曇り":      Rainy,
	"雨のち曇り時々晴れ":  Cloudy,
	"晴れのち雨":      Rainy,
	"曇り時々雨":      Rainy,
	string(Sunny):  Sunny,
	string(Cloudy): Cloudy,
	string(Rainy):  Rainy,
	string(Snowy):  Snowy,
}

// weatherCodes is the feature encoding of weather text. Only the plain
// words carry their own code; compound phrases and anything else encode as
// cloudy regardless of their category in weatherTable.
var weatherCodes = map[string]int{
	"晴れ":           0,
	"晴":            0,
	"曇り":           1,
	"曇":            1,
	"雨":            2,
	"雪":            3,
	string(Sunny):  0,
	string(Cloudy): 1,
	string(Rainy):  2,
	string(Snowy):  3,
}

var tideTable = map[string]Tide{
	"大潮":               SpringTide,
	"中潮":               MediumTide,
	"小潮":               NeapTide,
	"長潮":               LongTide,
	"若潮":               YoungTide,
	string(SpringTide): SpringTide,
	string(MediumTide): MediumTide,
	string(NeapTide):   NeapTide,
	string(LongTide):   LongTide,
	string(YoungTide):  YoungTide,
}

var tideLabels = map[Tide]string{
	SpringTide: "大潮",
	MediumTide: "中潮",
	NeapTide:   "小潮",
	LongTide:   "長潮",
	YoungTide:  "若潮",
}

// ParseDate parses a ledger date, ignoring a trailing weekday annotation such
// as "(月)".
func ParseDate(text string) (time.Time, error) {
	s := strings.TrimSpace(text)
	if i := strings.IndexAny(s, "(（"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", text)
}

// ParseTemperature returns the first number embedded in text, e.g. 26.0 for
// "26.0℃". It returns nil when no number is present.
func ParseTemperature(text string) *float64 {
	m := tempPattern.FindString(text)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseVisitors returns the visitor count in text such as "400名". Counts
// outside [0, MaxVisitors] are treated as missing.
func ParseVisitors(text string) *int {
	s := strings.NewReplacer("名", "", "人", "").Replace(text)
	m := visitorPattern.FindString(s)
	if m == "" {
		return nil
	}
	v, err := strconv.Atoi(m)
	if err != nil || v < 0 || v > MaxVisitors {
		return nil
	}
	return &v
}

// ParseWeather maps a ledger weather phrase to its category. Empty text is
// absent; unmapped text falls back to cloudy with a warning.
func ParseWeather(text string) Weather {
	s := strings.TrimSpace(text)
	if s == "" {
		return ""
	}
	if w, ok := weatherTable[s]; ok {
		return w
	}
	if w, ok := weatherTable[strings.ToLower(s)]; ok {
		return w
	}
	log.Warn().Str("weather", s).Msg("Unmapped weather phrase, using cloudy")
	return Cloudy
}

// LookupWeather is ParseWeather without the fallback: ok is false for text
// the table does not know.
func LookupWeather(text string) (Weather, bool) {
	s := strings.TrimSpace(text)
	if w, ok := weatherTable[s]; ok {
		return w, true
	}
	w, ok := weatherTable[strings.ToLower(s)]
	return w, ok
}

// WeatherCode returns the feature-vector code for ledger weather text. When
// text is empty the category w decides, so records built without the
// original text still encode.
func WeatherCode(text string, w Weather) int {
	s := strings.TrimSpace(text)
	if s == "" {
		return w.Code()
	}
	if c, ok := weatherCodes[s]; ok {
		return c
	}
	if c, ok := weatherCodes[strings.ToLower(s)]; ok {
		return c
	}
	return Cloudy.Code()
}

// ParseTide maps a tide label to its phase. Unknown labels are absent.
func ParseTide(text string) Tide {
	s := strings.TrimSpace(text)
	if t, ok := tideTable[s]; ok {
		return t
	}
	return tideTable[strings.ToLower(s)]
}

// ParseCatch returns the first integer in text, which may be negative.
func ParseCatch(text string) (int, error) {
	m := catchPattern.FindString(text)
	if m == "" {
		return 0, fmt.Errorf("no number in %q", text)
	}
	return strconv.Atoi(m)
}
