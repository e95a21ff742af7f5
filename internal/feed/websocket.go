package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quantfeed/avwap/internal/config"
	"github.com/quantfeed/avwap/internal/models"
	"github.com/quantfeed/avwap/pkg/logger"
)

// FeedState represents the connection state
type FeedState int

const (
	StateDisconnected FeedState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s FeedState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// WebSocketFeedConfig holds configuration for the WebSocket bar feed
type WebSocketFeedConfig struct {
	URL                  string
	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
	PingPeriod           time.Duration
	PongWait             time.Duration
	BufferSize           int
	MaxReconnectAttempts int // 0 means unlimited
}

// DefaultWebSocketFeedConfig returns a default feed configuration
func DefaultWebSocketFeedConfig(url string) WebSocketFeedConfig {
	return WebSocketFeedConfig{
		URL:                  url,
		ReconnectDelay:       1 * time.Second,
		MaxReconnectDelay:    30 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		PingPeriod:           54 * time.Second, // Should be less than PongWait
		PongWait:             60 * time.Second,
		BufferSize:           1000,
		MaxReconnectAttempts: 0, // Unlimited
	}
}

// WebSocketFeedConfigFromConfig builds a feed configuration from the
// application feed config, falling back to defaults for unset values.
func WebSocketFeedConfigFromConfig(cfg config.FeedConfig) WebSocketFeedConfig {
	wsConfig := DefaultWebSocketFeedConfig(cfg.WebSocketURL)
	if cfg.ReconnectDelay > 0 {
		wsConfig.ReconnectDelay = cfg.ReconnectDelay
	}
	if cfg.MaxReconnectDelay > 0 {
		wsConfig.MaxReconnectDelay = cfg.MaxReconnectDelay
	}
	return wsConfig
}

// barMessage is the wire envelope for finalized bars on the feed socket
type barMessage struct {
	Event  string  `json:"ev"`
	Symbol string  `json:"sym"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume int64   `json:"v"`
	Start  int64   `json:"s"` // epoch milliseconds
	End    int64   `json:"e"` // epoch milliseconds
}

// subscribeRequest is sent after each connect to select symbols
type subscribeRequest struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// WebSocketFeed is a bar feed over WebSocket with automatic reconnection.
// Decoded finalized bars are delivered on the Bars channel; the configured
// symbols are resubscribed after every reconnect.
type WebSocketFeed struct {
	config            WebSocketFeedConfig
	symbols           []string
	conn              *websocket.Conn
	state             FeedState
	mu                sync.RWMutex
	reconnectAttempts int
	lastError         error

	bars      chan *models.Bar
	closeChan chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWebSocketFeed creates a new WebSocket bar feed for the given symbols
func NewWebSocketFeed(config WebSocketFeedConfig, symbols []string) *WebSocketFeed {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketFeed{
		config:    config,
		symbols:   symbols,
		state:     StateDisconnected,
		bars:      make(chan *models.Bar, config.BufferSize),
		closeChan: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Bars returns the channel of decoded finalized bars
func (f *WebSocketFeed) Bars() <-chan *models.Bar {
	return f.bars
}

// Connect establishes the feed connection with automatic reconnection
func (f *WebSocketFeed) Connect() error {
	f.mu.Lock()
	if f.state == StateConnected || f.state == StateConnecting {
		f.mu.Unlock()
		return ErrFeedAlreadyConnected
	}
	f.state = StateConnecting
	f.mu.Unlock()

	f.wg.Add(1)
	go f.connectLoop()

	return nil
}

// connectLoop handles connection and reconnection logic
func (f *WebSocketFeed) connectLoop() {
	defer f.wg.Done()

	for {
		select {
		case <-f.ctx.Done():
			return
		default:
		}

		err := f.attemptConnection()
		if err == nil {
			f.wg.Add(2)
			go f.readPump()
			go f.writePump()

			// Wait for connection to close
			<-f.closeChan
		} else {
			f.mu.Lock()
			f.lastError = err
			f.mu.Unlock()

			logger.Error("Feed connection failed", logger.ErrorField(err))
		}

		f.mu.RLock()
		attempts := f.reconnectAttempts
		maxAttempts := f.config.MaxReconnectAttempts
		f.mu.RUnlock()

		if maxAttempts > 0 && attempts >= maxAttempts {
			logger.Error("Max reconnection attempts reached, stopping",
				logger.Int("attempts", attempts),
				logger.Int("max", maxAttempts),
			)
			return
		}

		delay := f.calculateBackoff()

		logger.Info("Reconnecting bar feed",
			logger.String("url", f.config.URL),
			logger.Duration("delay", delay),
			logger.Int("attempt", attempts+1),
		)

		select {
		case <-f.ctx.Done():
			return
		case <-time.After(delay):
			f.mu.Lock()
			f.state = StateReconnecting
			f.reconnectAttempts++
			f.mu.Unlock()
		}
	}
}

// attemptConnection dials the feed and subscribes the configured symbols
func (f *WebSocketFeed) attemptConnection() error {
	f.mu.Lock()
	f.state = StateConnecting
	f.mu.Unlock()

	logger.Info("Connecting to bar feed", logger.String("url", f.config.URL))

	dialer := websocket.Dialer{
		HandshakeTimeout: f.config.HandshakeTimeout,
	}

	conn, _, err := dialer.Dial(f.config.URL, nil)
	if err != nil {
		f.mu.Lock()
		f.state = StateDisconnected
		f.mu.Unlock()
		return fmt.Errorf("failed to dial feed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(f.config.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(f.config.PongWait))
		return nil
	})

	if err := f.subscribe(conn); err != nil {
		conn.Close()
		f.mu.Lock()
		f.state = StateDisconnected
		f.mu.Unlock()
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.state = StateConnected
	f.reconnectAttempts = 0
	f.lastError = nil
	f.closeChan = make(chan struct{})
	f.mu.Unlock()

	logger.Info("Bar feed connected",
		logger.String("url", f.config.URL),
		logger.Int("symbols", len(f.symbols)),
	)
	return nil
}

// subscribe sends the subscription frame for the configured symbols
func (f *WebSocketFeed) subscribe(conn *websocket.Conn) error {
	if len(f.symbols) == 0 {
		return nil
	}

	req := subscribeRequest{
		Action:  "subscribe",
		Symbols: f.symbols,
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal subscribe request: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return nil
}

// calculateBackoff calculates exponential backoff delay
func (f *WebSocketFeed) calculateBackoff() time.Duration {
	f.mu.RLock()
	attempts := f.reconnectAttempts
	baseDelay := f.config.ReconnectDelay
	maxDelay := f.config.MaxReconnectDelay
	f.mu.RUnlock()

	// Exponential backoff: baseDelay * 2^attempts
	delay := baseDelay * time.Duration(1<<uint(attempts))
	if delay > maxDelay {
		delay = maxDelay
	}

	return delay
}

// readPump reads frames from the socket and delivers decoded bars
func (f *WebSocketFeed) readPump() {
	defer f.wg.Done()

	for {
		select {
		case <-f.ctx.Done():
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()

		if conn == nil {
			return
		}

		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("Feed read error", logger.ErrorField(err))
			}
			f.closeConnection(err)
			return
		}

		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			f.handleFrame(message)
		}
	}
}

// handleFrame decodes a frame into bar messages and delivers the valid ones.
// Frames may carry a single message or an array of messages.
func (f *WebSocketFeed) handleFrame(data []byte) {
	var messages []barMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		var single barMessage
		if err := json.Unmarshal(data, &single); err != nil {
			logger.Warn("Failed to decode feed frame", logger.ErrorField(err))
			logger.ErrorsTotal.WithLabelValues("websocket_feed", "decode").Inc()
			return
		}
		messages = append(messages, single)
	}

	for _, msg := range messages {
		if msg.Event != "bar" {
			continue
		}

		bar := &models.Bar{
			Symbol: msg.Symbol,
			Start:  time.UnixMilli(msg.Start).UTC(),
			End:    time.UnixMilli(msg.End).UTC(),
			Open:   msg.Open,
			High:   msg.High,
			Low:    msg.Low,
			Close:  msg.Close,
			Volume: msg.Volume,
		}

		if err := bar.Validate(); err != nil {
			logger.Warn("Skipping invalid bar from feed",
				logger.ErrorField(err),
				logger.String("symbol", msg.Symbol),
			)
			continue
		}

		select {
		case f.bars <- bar:
		case <-f.ctx.Done():
			return
		default:
			logger.Warn("Bar channel full, dropping bar",
				logger.String("symbol", bar.Symbol),
			)
		}
	}
}

// writePump sends periodic pings to keep the connection alive
func (f *WebSocketFeed) writePump() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			f.mu.RLock()
			conn := f.conn
			f.mu.RUnlock()

			if conn == nil {
				return
			}

			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(f.config.WriteTimeout)); err != nil {
				logger.Error("Failed to send ping", logger.ErrorField(err))
				f.closeConnection(err)
				return
			}
		}
	}
}

// GetState returns the current connection state
func (f *WebSocketFeed) GetState() FeedState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// IsConnected returns whether the feed is connected
func (f *WebSocketFeed) IsConnected() bool {
	return f.GetState() == StateConnected
}

// GetLastError returns the last error that occurred
func (f *WebSocketFeed) GetLastError() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastError
}

// GetReconnectAttempts returns the number of reconnection attempts
func (f *WebSocketFeed) GetReconnectAttempts() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.reconnectAttempts
}

// closeConnection closes the socket and signals the connect loop
func (f *WebSocketFeed) closeConnection(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.state = StateDisconnected
	f.lastError = err

	// Only close channel if it's not already closed
	select {
	case <-f.closeChan:
	default:
		close(f.closeChan)
	}
}

// Close closes the feed and stops reconnection attempts
func (f *WebSocketFeed) Close() error {
	f.cancel()

	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.state = StateDisconnected
	select {
	case <-f.closeChan:
	default:
		close(f.closeChan)
	}
	f.mu.Unlock()

	f.wg.Wait()
	close(f.bars)
	return nil
}
