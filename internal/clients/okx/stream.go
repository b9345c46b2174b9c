package okx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	baseReconnectDelay = 5 * time.Second
	maxReconnectDelay  = 5 * time.Minute
)

// AccountStream subscribes to the OKX private account channel and invokes a
// trigger callback whenever the exchange pushes a balance update. The
// callback is expected to be cheap and non-blocking (the engine drops
// triggers while a cycle is in flight).
type AccountStream struct {
	url        string
	apiKey     string
	apiSecret  string
	passphrase string

	onUpdate func()
	log      zerolog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	connected  bool

	reconnecting bool
	stopChan     chan struct{}
	stopped      bool
}

// StreamConfig holds account stream configuration
type StreamConfig struct {
	URL        string
	APIKey     string
	APISecret  string
	Passphrase string
	OnUpdate   func()
	Log        zerolog.Logger
}

// NewAccountStream creates a new account stream client
func NewAccountStream(cfg StreamConfig) *AccountStream {
	return &AccountStream{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		passphrase: cfg.Passphrase,
		onUpdate:   cfg.OnUpdate,
		log:        cfg.Log.With().Str("component", "okx_account_stream").Logger(),
		stopChan:   make(chan struct{}),
	}
}

// Start establishes the connection and starts the read loop. A failed initial
// connection is not fatal; the reconnect loop keeps retrying in the
// background and the periodic timer covers the gap.
func (s *AccountStream) Start() error {
	s.log.Info().Msg("Starting account stream")

	if err := s.connect(); err != nil {
		s.log.Warn().Err(err).Msg("Initial connection failed, will retry in background")
		go s.reconnectLoop()
		return err
	}

	s.mu.RLock()
	ctx := s.connCtx
	s.mu.RUnlock()
	go s.readMessages(ctx)

	return nil
}

// Stop shuts the stream down
func (s *AccountStream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.log.Info().Msg("Stopping account stream")
	close(s.stopChan)
	return s.disconnect()
}

// IsConnected returns current connection status
func (s *AccountStream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *AccountStream) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial websocket: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	s.conn = conn
	s.connCtx = connCtx
	s.cancelFunc = connCancel
	s.connected = true

	if err := s.login(connCtx); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "login failed")
		s.conn = nil
		s.connCtx = nil
		s.cancelFunc = nil
		s.connected = false
		return fmt.Errorf("failed to log in: %w", err)
	}

	s.log.Info().Msg("Connected to account stream")
	return nil
}

func (s *AccountStream) disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}

	err := s.conn.Close(websocket.StatusNormalClosure, "")
	s.conn = nil
	s.connCtx = nil
	s.connected = false

	if err != nil {
		return fmt.Errorf("error closing websocket: %w", err)
	}
	return nil
}

// login authenticates the private connection. OKX expects the base64
// HMAC-SHA256 of timestamp + "GET" + "/users/self/verify" with an epoch
// timestamp in seconds.
func (s *AccountStream) login(ctx context.Context) error {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(s.apiSecret))
	mac.Write([]byte(timestamp + "GET" + "/users/self/verify"))
	sign := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	loginMsg := map[string]interface{}{
		"op": "login",
		"args": []map[string]string{{
			"apiKey":     s.apiKey,
			"passphrase": s.passphrase,
			"timestamp":  timestamp,
			"sign":       sign,
		}},
	}

	if err := s.writeJSON(ctx, loginMsg); err != nil {
		return err
	}

	// The account subscription is rejected until the login event arrives, so
	// wait for it before subscribing.
	readCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	_, message, err := s.conn.Read(readCtx)
	if err != nil {
		return fmt.Errorf("failed to read login response: %w", err)
	}

	var ev wsEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		return fmt.Errorf("failed to parse login response: %w", err)
	}
	if ev.Event == "error" {
		return fmt.Errorf("login rejected: code=%s msg=%s", ev.Code, ev.Msg)
	}

	return s.subscribe(ctx)
}

// subscribe requests the private account channel
func (s *AccountStream) subscribe(ctx context.Context) error {
	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": []map[string]string{{"channel": "account"}},
	}
	if err := s.writeJSON(ctx, subMsg); err != nil {
		return fmt.Errorf("failed to subscribe to account channel: %w", err)
	}

	s.log.Info().Msg("Subscribed to account channel")
	return nil
}

func (s *AccountStream) writeJSON(ctx context.Context, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return s.conn.Write(writeCtx, websocket.MessageText, data)
}

// wsEvent is the envelope OKX uses for both event acks and channel pushes
type wsEvent struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
	} `json:"arg"`
	Data json.RawMessage `json:"data"`
}

// readMessages continuously reads messages from the connection
func (s *AccountStream) readMessages(ctx context.Context) {
	defer func() {
		s.log.Info().Msg("Read loop stopped")
		s.mu.RLock()
		stopped := s.stopped
		s.mu.RUnlock()
		if !stopped {
			go s.reconnectLoop()
		}
	}()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				s.log.Info().Int("status", int(closeStatus)).Msg("Websocket closed normally")
			} else if ctx.Err() != nil {
				s.log.Debug().Msg("Read cancelled by context")
			} else {
				s.log.Error().Err(err).Msg("Unexpected websocket read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		if err := s.handleMessage(message); err != nil {
			s.log.Error().Err(err).Msg("Failed to handle websocket message")
			// Keep reading despite parse errors
		}
	}
}

// handleMessage fires the trigger on account channel pushes. The payload
// itself is discarded: the engine re-fetches balances over REST so that the
// diff always runs against a full, authoritative snapshot.
func (s *AccountStream) handleMessage(message []byte) error {
	var ev wsEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		return fmt.Errorf("failed to parse message: %w", err)
	}

	if ev.Event == "error" {
		return fmt.Errorf("server error: code=%s msg=%s", ev.Code, ev.Msg)
	}
	if ev.Event != "" {
		// subscribe/login acks
		s.log.Debug().Str("event", ev.Event).Msg("Websocket event")
		return nil
	}

	if ev.Arg.Channel != "account" || len(ev.Data) == 0 {
		return nil
	}

	s.log.Debug().Msg("Account update pushed, triggering reconcile")
	if s.onUpdate != nil {
		s.onUpdate()
	}
	return nil
}

// reconnectLoop retries the connection with exponential backoff
func (s *AccountStream) reconnectLoop() {
	s.mu.Lock()
	if s.reconnecting || s.stopped {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
	}()

	attempt := 0
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		s.mu.RLock()
		stopped := s.stopped
		s.mu.RUnlock()
		if stopped {
			return
		}

		attempt++
		delay := s.calculateBackoff(attempt)
		s.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnecting to account stream")

		select {
		case <-time.After(delay):
		case <-s.stopChan:
			return
		}

		if err := s.connect(); err != nil {
			s.log.Error().Err(err).Int("attempt", attempt).Msg("Reconnection failed")
			continue
		}

		s.mu.RLock()
		ctx := s.connCtx
		s.mu.RUnlock()
		go s.readMessages(ctx)
		return
	}
}

func (s *AccountStream) calculateBackoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}
