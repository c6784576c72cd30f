package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Evanition/gettingtwitch-ids/pkg/config"
	"github.com/Evanition/gettingtwitch-ids/pkg/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
)

const (
	bucketWidth = 50
	barWidth    = 40
)

// elodist renders the Elo rating distribution of the collected player table
// as a terminal bar chart.
func main() {
	os.Exit(run())
}

func run() int {
	godotenv.Load()
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	t, err := store.Load(cfg.Store.DataPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load player table: %v\n", err)
		return 1
	}

	counts := make(map[int]int)
	rated, unrated := 0, 0
	for _, rec := range t.Records() {
		elo, err := strconv.Atoi(rec.EloRate())
		if err != nil || elo < 0 {
			unrated++
			continue
		}
		counts[elo/bucketWidth*bucketWidth]++
		rated++
	}

	if rated == 0 {
		fmt.Printf("no rated players in %s (%d rows)\n", cfg.Store.DataPath, t.Len())
		return 0
	}

	buckets := make([]int, 0, len(counts))
	maxCount := 0
	for b, n := range counts {
		buckets = append(buckets, b)
		if n > maxCount {
			maxCount = n
		}
	}
	sort.Ints(buckets)

	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.SetTitle("Elo distribution (%s)", cfg.Store.DataPath)
	w.AppendHeader(table.Row{"Elo", "Players", ""})

	for _, b := range buckets {
		n := counts[b]
		bar := strings.Repeat("█", n*barWidth/maxCount)
		if bar == "" && n > 0 {
			bar = "▏"
		}
		w.AppendRow(table.Row{fmt.Sprintf("%d-%d", b, b+bucketWidth-1), n, bar})
	}
	w.AppendFooter(table.Row{"rated", rated, fmt.Sprintf("unrated/invalid: %d", unrated)})
	w.Render()

	return 0
}
