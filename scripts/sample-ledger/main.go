package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"catch-forecast/internal/records"
	"catch-forecast/internal/storage"
)

var (
	weekdayLabels = []string{"日", "月", "火", "水", "木", "金", "土"}
	locations     = []string{"桟橋先端", "桟橋中央", "岸壁"}

	// one lunar cycle of tide phases, by day since new moon
	tideCycle = []string{
		"大潮", "大潮", "大潮", "中潮", "中潮", "中潮", "中潮", "小潮", "小潮", "小潮",
		"長潮", "若潮", "中潮", "中潮", "大潮", "大潮", "大潮", "大潮", "中潮", "中潮",
		"中潮", "中潮", "小潮", "小潮", "小潮", "長潮", "若潮", "中潮", "中潮", "大潮",
	}

	// indexed by month%12/3: winter, spring, summer, autumn
	seasonWeather = [][]string{
		{"晴れ", "曇り", "雪", "晴れ", "曇り時々晴れ"},
		{"晴れ", "曇り", "雨", "晴れのち曇り", "小雨"},
		{"晴れ", "快晴", "曇り", "雨", "曇りのち雨", "晴れ"},
		{"晴れ", "曇り", "雨", "雨のち晴れ", "薄曇り"},
	}
)

func main() {
	var (
		dataPath = flag.String("data", "", "Append to the ledger database in this directory")
		csvPath  = flag.String("csv", "", "Write a CSV export to this file")
		days     = flag.Int("days", 365, "Number of days of data to generate")
		start    = flag.String("start", "", "First day (YYYY-MM-DD, default: -days before today)")
		seed     = flag.Uint64("seed", 42, "Random seed")
	)
	flag.Parse()

	if *dataPath == "" && *csvPath == "" {
		log.Fatal("one of -data or -csv is required")
	}

	from := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -*days)
	if *start != "" {
		t, err := time.Parse("2006-01-02", *start)
		if err != nil {
			log.Fatalf("Invalid start date: %v", err)
		}
		from = t
	}

	fmt.Printf("Generating sample ledger...\n")
	fmt.Printf("  Days: %d\n", *days)
	fmt.Printf("  From: %s\n", from.Format("2006-01-02"))

	raws := generateLedger(rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)), from, *days)

	if *dataPath != "" {
		store, err := storage.New(*dataPath)
		if err != nil {
			log.Fatalf("Failed to open ledger: %v", err)
		}
		batch, err := store.Append("sample-ledger", raws, time.Now())
		store.Close()
		if err != nil {
			log.Fatalf("Failed to append rows: %v", err)
		}
		fmt.Printf("✓ Appended batch %d (%d rows) to %s\n", batch.ID, batch.Rows, *dataPath)
	}

	if *csvPath != "" {
		f, err := os.Create(*csvPath)
		if err != nil {
			log.Fatalf("Failed to create CSV: %v", err)
		}
		err = storage.WriteCSV(f, raws)
		f.Close()
		if err != nil {
			log.Fatalf("Failed to write CSV: %v", err)
		}
		fmt.Printf("✓ Wrote %d rows to %s\n", len(raws), *csvPath)
	}
}

// generateLedger simulates a pier's daily log. Catch follows water
// temperature and tide strength, and scales with the crowd. Some days are
// closed and a few rows are malformed, as in a hand-kept ledger.
func generateLedger(rng *rand.Rand, from time.Time, days int) []records.RawRecord {
	var out []records.RawRecord
	for i := 0; i < days; i++ {
		day := from.AddDate(0, 0, i)
		if rng.Float64() < 0.08 {
			continue // closed
		}

		season := int(day.Month()) % 12 / 3
		weather := seasonWeather[season][rng.IntN(len(seasonWeather[season]))]
		tide := tideCycle[i%len(tideCycle)]
		temp := 18 + 7*math.Sin(2*math.Pi*(float64(day.YearDay())-110)/365) + rng.NormFloat64()*0.8

		visitors := 250.0
		switch day.Weekday() {
		case time.Saturday:
			visitors *= 1.3
		case time.Sunday:
			visitors *= 1.25
		}
		category := records.ParseWeather(weather)
		switch category {
		case records.Sunny:
			visitors *= 1.1
		case records.Rainy:
			visitors *= 0.7
		case records.Snowy:
			visitors *= 0.5
		}
		visitors = math.Max(0, visitors+rng.NormFloat64()*40)

		base := 40 + 6*math.Max(0, temp-14)
		switch tide {
		case "大潮":
			base *= 1.3
		case "小潮", "長潮":
			base *= 0.8
		}
		if category == records.Rainy {
			base *= 0.85
		}
		base *= 1 + visitors/1000

		date := fmt.Sprintf("%s(%s)", day.Format("2006/01/02"), weekdayLabels[day.Weekday()])
		n := 1 + rng.IntN(len(locations))
		for j := 0; j < n; j++ {
			aji := math.Max(0, base/float64(n)+rng.NormFloat64()*15)
			out = append(out, row(date, weather, temp, tide, visitors, "アジ", int(aji), "15-22cm", locations[j]))
		}
		if rng.Float64() < 0.5 {
			saba := math.Max(0, base/3+rng.NormFloat64()*10)
			out = append(out, row(date, weather, temp, tide, visitors, "サバ", int(saba), "25-30cm", locations[0]))
		}
		if rng.Float64() < 0.02 {
			bad := row(date, weather, temp, tide, visitors, "アジ", 0, "", locations[0])
			bad.CatchCount = "不明"
			out = append(out, bad)
		}
	}
	return out
}

func row(date, weather string, temp float64, tide string, visitors float64, species string, catch int, size, location string) records.RawRecord {
	return records.RawRecord{
		Date:       date,
		Weather:    weather,
		WaterTemp:  fmt.Sprintf("%.1f℃", temp),
		Tide:       tide,
		Visitors:   fmt.Sprintf("%d名", int(visitors)),
		Species:    species,
		CatchCount: strconv.Itoa(catch),
		Size:       size,
		Location:   location,
	}
}
