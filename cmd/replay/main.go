package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/quantfeed/avwap/internal/feed"
	"github.com/quantfeed/avwap/internal/models"
	"github.com/quantfeed/avwap/internal/session"
	"github.com/quantfeed/avwap/pkg/indicator"
)

// replay computes a single anchored VWAP over a CSV of finalized bars and
// writes one row per bar to stdout. Unlike the service, the anchor is
// resolved once, so preset names pin to the first bar's session rather than
// rolling forward.
func main() {
	var (
		csvPath   = flag.String("csv", "", "path to a bar CSV file (symbol,start,end,open,high,low,close,volume)")
		symbol    = flag.String("symbol", "", "symbol to replay (default: first symbol in the file)")
		anchorArg = flag.String("anchor", "session_open", "RFC3339 timestamp, or session_open, day_open, week_open resolved at the first bar")
		priceArg  = flag.String("price", "ohlc4", "price source: ohlc4, hlc3 or close")
	)
	flag.Parse()

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -csv bars.csv [-symbol AAPL] [-anchor session_open] [-price ohlc4]")
		os.Exit(2)
	}

	if err := run(*csvPath, *symbol, *anchorArg, *priceArg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
}

func run(csvPath, symbol, anchorArg, priceArg string, out io.Writer) error {
	bars, err := feed.ReadBarsCSV(csvPath)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return fmt.Errorf("no bars in %s", csvPath)
	}

	if symbol == "" {
		symbol = bars[0].Symbol
	}
	filtered := make([]*models.Bar, 0, len(bars))
	for _, bar := range bars {
		if bar.Symbol == symbol {
			filtered = append(filtered, bar)
		}
	}
	if len(filtered) == 0 {
		return fmt.Errorf("no bars for symbol %s in %s", symbol, csvPath)
	}

	anchor, err := resolveAnchor(anchorArg, filtered[0].End)
	if err != nil {
		return err
	}

	avwap := indicator.NewAnchoredVWAPNamed("", anchor, indicator.SelectorByName(priceArg))

	w := csv.NewWriter(out)
	if err := w.Write([]string{"end", "avwap", "status"}); err != nil {
		return err
	}
	for _, bar := range filtered {
		result := avwap.Update(bar)
		record := []string{
			bar.End.UTC().Format(time.RFC3339),
			result.Value.String(),
			result.Status.String(),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "replayed %d bars for %s, anchor %s, ready=%v\n",
		avwap.BarsProcessed(), symbol, anchor.UTC().Format(time.RFC3339), avwap.IsReady())
	return nil
}

// resolveAnchor interprets the anchor argument as an RFC3339 timestamp first
// and as a preset name second, resolving presets against the first bar
func resolveAnchor(arg string, ref time.Time) (time.Time, error) {
	if at, err := time.Parse(time.RFC3339, arg); err == nil {
		return at, nil
	}
	anchorFunc, err := session.AnchorFuncFor(session.AnchorKind(arg), time.Time{})
	if err != nil {
		return time.Time{}, fmt.Errorf("anchor must be an RFC3339 timestamp or a preset name: %w", err)
	}
	return anchorFunc(ref), nil
}
