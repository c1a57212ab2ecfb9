package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/services/features"
	"TriggerDesk/pkg/logger"

	"github.com/gorilla/websocket"
)

// Stream implements repository.MarketStream over a Polygon-style websocket.
type Stream struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex // guards conn and connected
	writeMu   sync.Mutex // gorilla allows one concurrent writer
	conn      *websocket.Conn
	connected bool
}

// NewStream creates a new Polygon market stream.
func NewStream(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) *Stream {
	if log == nil {
		log = logger.Nop()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Stream{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log.With("polygon.stream"),
	}
}

func (s *Stream) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Stream) write(v any) error {
	c := s.current()
	if c == nil {
		return fmt.Errorf("polygon not connected")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return c.WriteJSON(v)
}

type action struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// Connect dials the socket and sends the auth action.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("polygon connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	if err := s.write(action{Action: "auth", Params: s.apiKey}); err != nil {
		_ = s.Close()
		return fmt.Errorf("polygon auth: %w", err)
	}
	s.log.Info("polygon connected", logger.String("url", s.websocketURL))
	return nil
}

// Subscribe subscribes trades and minute aggregates for every configured symbol.
func (s *Stream) Subscribe(ctx context.Context) error {
	if !s.IsConnected() {
		return fmt.Errorf("polygon not connected")
	}
	params := make([]string, 0, 2*len(s.symbols))
	for _, sym := range s.symbols {
		sym = strings.ToUpper(sym)
		params = append(params, "T."+sym, "AM."+sym)
	}
	if err := s.write(action{Action: "subscribe", Params: strings.Join(params, ",")}); err != nil {
		return fmt.Errorf("subscribe %v: %w", s.symbols, err)
	}
	s.log.Info("polygon subscribed", logger.Strings("symbols", s.symbols))
	return nil
}

// frame is the union of the T, AM and status events.
type frame struct {
	Ev      string  `json:"ev"`
	Sym     string  `json:"sym"`
	Status  string  `json:"status"`
	Message string  `json:"message"`
	P       float64 `json:"p"`
	S       float64 `json:"s"`
	T       float64 `json:"t"`
	O       float64 `json:"o"`
	H       float64 `json:"h"`
	L       float64 `json:"l"`
	C       float64 `json:"c"`
	V       float64 `json:"v"`
}

// decodeFrames accepts both a JSON array of events and a single event object.
func decodeFrames(b []byte) ([]models.StreamMessage, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		raw = []json.RawMessage{b}
	}
	out := make([]models.StreamMessage, 0, len(raw))
	for _, r := range raw {
		var f frame
		if err := json.Unmarshal(r, &f); err != nil {
			return nil, fmt.Errorf("polygon frame: %w", err)
		}
		switch models.StreamKind(f.Ev) {
		case models.StreamTrade:
			out = append(out, models.StreamMessage{
				Kind:   models.StreamTrade,
				Symbol: f.Sym,
				Tick:   &models.Tick{Symbol: f.Sym, TimeMs: features.NormalizeEpochMillis(f.T), Price: f.P, Size: f.S},
			})
		case models.StreamMinute:
			// AM carries the bucket start in "s" and the volume in "v".
			out = append(out, models.StreamMessage{
				Kind:   models.StreamMinute,
				Symbol: f.Sym,
				Bar:    &models.Bar{Time: features.NormalizeEpoch(f.S), Open: f.O, High: f.H, Low: f.L, Close: f.C, Volume: f.V},
			})
		case models.StreamStatus:
			out = append(out, models.StreamMessage{Kind: models.StreamStatus, Status: f.Status, Message: f.Message})
		}
	}
	return out, nil
}

// Read streams canonicalized messages and errors.
func (s *Stream) Read(ctx context.Context) (<-chan models.StreamMessage, <-chan error) {
	msgs := make(chan models.StreamMessage, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c := s.current(); c != nil {
					s.writeMu.Lock()
					_ = c.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
					s.writeMu.Unlock()
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(msgs)
		defer close(errs)
		for {
			if ctx.Err() != nil {
				return
			}
			c := s.current()
			if c == nil {
				errs <- fmt.Errorf("polygon conn nil")
				return
			}
			_, b, err := c.ReadMessage()
			if err != nil {
				s.setConnected(false)
				errs <- fmt.Errorf("polygon read: %w", err)
				return
			}
			batch, err := decodeFrames(b)
			if err != nil {
				s.log.Debug("polygon frame skipped", logger.Error(err))
				continue
			}
			for _, m := range batch {
				if m.Kind == models.StreamStatus && m.Status == "auth_failed" {
					s.setConnected(false)
					errs <- fmt.Errorf("polygon auth failed: %s", m.Message)
					return
				}
				select {
				case msgs <- m:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return msgs, errs
}

func (s *Stream) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// Reconnect closes, waits the reconnect delay, then connects and resubscribes.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-time.After(s.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close closes the WS connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if c != nil {
		return c.Close()
	}
	return nil
}

// IsConnected indicates status.
func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
