package rit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/sirupsen/logrus"
)

// StreamMessage is one frame of the securities feed. Each frame carries the
// full state of the securities it lists at tick.
type StreamMessage struct {
	Type       string     `json:"type"`
	Tick       int        `json:"tick"`
	Securities []Security `json:"securities"`
}

// QuoteStream caches the latest quote per ticker from a websocket feed and
// serves snapshots from the cache. Once started it keeps the feed up,
// redialing with exponential backoff after a read or ping failure.
type QuoteStream struct {
	url        string
	auth       Authenticator
	staleAfter time.Duration
	logger     *logrus.Logger

	BaseDelay    time.Duration
	MaxDelay     time.Duration
	PingInterval time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	cacheMu sync.RWMutex
	quotes  map[string]models.Quote
	tick    int
	updated time.Time
}

func NewQuoteStream(url string, auth Authenticator, staleAfter time.Duration, logger *logrus.Logger) *QuoteStream {
	return &QuoteStream{
		url:          url,
		auth:         auth,
		staleAfter:   staleAfter,
		logger:       logger,
		BaseDelay:    defaultBaseDelay,
		MaxDelay:     defaultMaxDelay,
		PingInterval: 30 * time.Second,
		quotes:       make(map[string]models.Quote),
	}
}

// Connect dials the feed and keeps it up until ctx ends or Close is called.
// Only the first dial is reported; later failures are retried.
func (s *QuoteStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	s.start(ctx, conn)
	return nil
}

// Start keeps the feed up in the background without waiting for the first
// dial. GetSnapshot reports ErrDataUnavailable until it succeeds.
func (s *QuoteStream) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.start(ctx, nil)
}

func (s *QuoteStream) start(ctx context.Context, conn *websocket.Conn) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	if conn != nil {
		s.conn = conn
		s.connected = true
		s.logger.WithField("url", s.url).Info("Quote stream connected")
	}
	s.wg.Add(1)
	go s.runLoop(ctx, conn)
}

func (s *QuoteStream) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if s.auth != nil {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return nil, err
		}
		if err := s.auth.AddAuthHeaders(req); err != nil {
			return nil, err
		}
		header = req.Header
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to quote stream: %w", err)
	}
	return conn, nil
}

func (s *QuoteStream) runLoop(ctx context.Context, conn *websocket.Conn) {
	defer s.wg.Done()
	retry := 0

	for {
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff(retry, s.BaseDelay, s.MaxDelay)):
			}

			c, err := s.dial(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.WithError(err).WithField("retry", retry).Warn("Quote stream reconnect failed")
				retry++
				continue
			}

			s.mu.Lock()
			if ctx.Err() != nil {
				s.mu.Unlock()
				c.Close()
				return
			}
			s.conn = c
			s.connected = true
			s.mu.Unlock()

			conn = c
			s.logger.WithFields(logrus.Fields{"url": s.url, "retry": retry}).Info("Quote stream reconnected")
		}
		retry = 0

		s.serve(ctx, conn)
		s.drop(conn)
		conn = nil
		if ctx.Err() != nil {
			return
		}
	}
}

// serve reads conn until it fails, pinging it meanwhile.
func (s *QuoteStream) serve(ctx context.Context, conn *websocket.Conn) {
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go s.keepAlive(pingCtx, conn)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.readLoop(conn)
}

func (s *QuoteStream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// GetSnapshot returns the cached quotes for ids. It fails with
// ErrDataUnavailable while disconnected, when the cache is stale, or when any
// id has not been seen.
func (s *QuoteStream) GetSnapshot(_ context.Context, ids []string) (models.Snapshot, error) {
	if !s.Connected() {
		return models.Snapshot{}, fmt.Errorf("%w: quote stream disconnected", models.ErrDataUnavailable)
	}

	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	if s.staleAfter > 0 && time.Since(s.updated) > s.staleAfter {
		return models.Snapshot{}, fmt.Errorf("%w: quotes stale since %s", models.ErrDataUnavailable, s.updated.Format(time.RFC3339Nano))
	}
	snap := models.Snapshot{Tick: s.tick, Quotes: s.quotes, Timestamp: s.updated}
	return snap.Subset(ids)
}

// Close stops reconnecting and closes the current connection.
func (s *QuoteStream) Close() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	err := s.closeLocked()
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *QuoteStream) readLoop(conn *websocket.Conn) {
	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if s.Connected() {
				s.logger.WithError(err).Error("Failed to read quote stream message")
			}
			return
		}
		if msg.Type != "" && msg.Type != "securities" {
			continue
		}
		s.apply(msg)
	}
}

func (s *QuoteStream) apply(msg StreamMessage) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	for _, sec := range msg.Securities {
		s.quotes[sec.Ticker] = sec.Quote()
	}
	if msg.Tick > s.tick {
		s.tick = msg.Tick
	}
	s.updated = time.Now()
}

func (s *QuoteStream) keepAlive(ctx context.Context, conn *websocket.Conn) {
	if s.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.conn != conn || !s.connected {
				s.mu.Unlock()
				return
			}
			err := conn.WriteMessage(websocket.PingMessage, nil)
			s.mu.Unlock()
			if err != nil {
				s.logger.WithError(err).Error("Failed to send ping")
				s.drop(conn)
				return
			}
		}
	}
}

// drop marks conn disconnected and closes it, unless a newer connection has
// already replaced it.
func (s *QuoteStream) drop(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.connected = false
	}
	conn.Close()
}

func (s *QuoteStream) closeLocked() error {
	if !s.connected {
		return nil
	}
	s.connected = false
	return s.conn.Close()
}
