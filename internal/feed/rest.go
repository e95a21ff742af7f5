package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/quantfeed/avwap/internal/config"
	"github.com/quantfeed/avwap/internal/models"
	"github.com/quantfeed/avwap/pkg/logger"
)

// maxHistoryWindow bounds a single aggregates request; longer ranges are
// fetched in sequential chunks.
const maxHistoryWindow = 24 * time.Hour

// aggregateRow mirrors one element of the aggregates API response
type aggregateRow struct {
	Timestamp int64   `json:"t"` // bar start, epoch milliseconds
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    int64   `json:"v"`
}

// aggregatesResponse is the response body of GET /v1/bars/{symbol}
type aggregatesResponse struct {
	Symbol  string         `json:"symbol"`
	Results []aggregateRow `json:"results"`
}

// RESTHistory fetches historical minute bars from an HTTP aggregates API.
// It implements the History interface.
type RESTHistory struct {
	client  *resty.Client
	baseURL string
}

// NewRESTHistory creates a history client for the configured aggregates API
func NewRESTHistory(cfg config.HistoryConfig) *RESTHistory {
	client := resty.New().SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &RESTHistory{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// FetchBars fetches finalized minute bars for symbol with End in (from, to],
// sorted by End ascending. Ranges longer than maxHistoryWindow are split into
// multiple requests.
func (h *RESTHistory) FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]*models.Bar, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol cannot be empty")
	}
	if !to.After(from) {
		return nil, fmt.Errorf("invalid history range: from %s is not before to %s",
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	bars := make([]*models.Bar, 0)
	for start := from; start.Before(to); start = start.Add(maxHistoryWindow) {
		end := start.Add(maxHistoryWindow)
		if end.After(to) {
			end = to
		}

		chunk, err := h.fetchWindow(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		bars = append(bars, chunk...)
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].End.Before(bars[j].End)
	})

	logger.Debug("Fetched historical bars",
		logger.String("symbol", symbol),
		logger.Int("count", len(bars)),
		logger.Time("from", from),
		logger.Time("to", to),
	)

	return bars, nil
}

// fetchWindow fetches a single window of bars
func (h *RESTHistory) fetchWindow(ctx context.Context, symbol string, from, to time.Time) ([]*models.Bar, error) {
	url := fmt.Sprintf("%s/v1/bars/%s", h.baseURL, symbol)

	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"from":     strconv.FormatInt(from.UnixMilli(), 10),
			"to":       strconv.FormatInt(to.UnixMilli(), 10),
			"interval": "1m",
		}).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bars request for %s failed: %s", symbol, resp.Status())
	}

	var data aggregatesResponse
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return nil, fmt.Errorf("failed to decode bars response for %s: %w", symbol, err)
	}

	bars := make([]*models.Bar, 0, len(data.Results))
	for _, row := range data.Results {
		start := time.UnixMilli(row.Timestamp).UTC()
		bar := &models.Bar{
			Symbol: symbol,
			Start:  start,
			End:    start.Add(time.Minute),
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		}

		if err := bar.Validate(); err != nil {
			logger.Warn("Skipping invalid bar from history",
				logger.ErrorField(err),
				logger.String("symbol", symbol),
				logger.Time("start", start),
			)
			continue
		}

		bars = append(bars, bar)
	}

	return bars, nil
}
