package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quantfeed/avwap/internal/models"
)

// barCSVHeader is the expected column layout of a bar CSV file
var barCSVHeader = []string{"symbol", "start", "end", "open", "high", "low", "close", "volume"}

// ReadBarsCSV reads finalized bars from a CSV file. The file must carry a
// header row matching barCSVHeader, with RFC3339 timestamps.
func ReadBarsCSV(path string) ([]*models.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bar file: %w", err)
	}
	defer f.Close()

	return ReadBars(f)
}

// ReadBars reads finalized bars in CSV form from r
func ReadBars(r io.Reader) ([]*models.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(barCSVHeader)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("bar file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, name := range barCSVHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), name) {
			return nil, fmt.Errorf("unexpected header column %d: got %q, want %q", i, header[i], name)
		}
	}

	bars := make([]*models.Bar, 0)
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row, err)
		}

		bar, err := parseBarRecord(record)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

// parseBarRecord parses one CSV record into a validated bar
func parseBarRecord(record []string) (*models.Bar, error) {
	start, err := time.Parse(time.RFC3339, record[1])
	if err != nil {
		return nil, fmt.Errorf("invalid start time %q: %w", record[1], err)
	}
	end, err := time.Parse(time.RFC3339, record[2])
	if err != nil {
		return nil, fmt.Errorf("invalid end time %q: %w", record[2], err)
	}
	open, err := strconv.ParseFloat(record[3], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid open %q: %w", record[3], err)
	}
	high, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid high %q: %w", record[4], err)
	}
	low, err := strconv.ParseFloat(record[5], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid low %q: %w", record[5], err)
	}
	closePrice, err := strconv.ParseFloat(record[6], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid close %q: %w", record[6], err)
	}
	volume, err := strconv.ParseInt(record[7], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid volume %q: %w", record[7], err)
	}

	bar := &models.Bar{
		Symbol: strings.TrimSpace(record[0]),
		Start:  start,
		End:    end,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}

	if err := bar.Validate(); err != nil {
		return nil, err
	}

	return bar, nil
}
