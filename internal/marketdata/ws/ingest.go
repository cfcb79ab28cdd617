// Package ws connects to the venue's streaming endpoint and normalizes
// quote and OHLC events into model types. The engine subscribes to the
// output channels; it does not manage the transport.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"rsibot/internal/model"
)

// IngestConfig holds configuration for the stream ingest.
type IngestConfig struct {
	URL           string // wss endpoint
	CST           string
	SecurityToken string
	Epic          string
	Resolution    string // e.g. "MINUTE_5"
	SubscribeOHLC bool   // when false, bars come from the local aggregator

	// Reconnect backoff; defaults applied when zero.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

// Ingest owns one streaming connection with automatic reconnect.
type Ingest struct {
	cfg IngestConfig

	// Optional metric hooks.
	OnReconnect func()
	OnFeedError func()
	OnConnected func(bool)
}

// New creates a new Ingest instance.
func New(cfg IngestConfig) *Ingest {
	if cfg.ReconnectBase == 0 {
		cfg.ReconnectBase = time.Second
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	return &Ingest{cfg: cfg}
}

// streamMessage is the venue's wire envelope in both directions.
type streamMessage struct {
	Destination   string          `json:"destination"`
	CorrelationID string          `json:"correlationId,omitempty"`
	CST           string          `json:"cst,omitempty"`
	SecurityToken string          `json:"securityToken,omitempty"`
	Status        string          `json:"status,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

type quotePayload struct {
	Epic      string  `json:"epic"`
	Bid       float64 `json:"bid"`
	Ofr       float64 `json:"ofr"`
	Timestamp int64   `json:"timestamp"` // epoch millis
}

type ohlcPayload struct {
	Epic       string  `json:"epic"`
	Resolution string  `json:"resolution"`
	T          int64   `json:"t"` // bar open, epoch millis
	O          float64 `json:"o"`
	H          float64 `json:"h"`
	L          float64 `json:"l"`
	C          float64 `json:"c"`
}

// Run connects and streams until ctx is done, reconnecting with
// exponential backoff. Quotes and bars for other epics, and malformed
// payloads, are dropped without crashing the decision path.
func (ing *Ingest) Run(ctx context.Context, quoteCh chan<- model.Quote, barCh chan<- model.PriceBar) {
	backoff := ing.cfg.ReconnectBase
	for {
		if ctx.Err() != nil {
			return
		}

		err := ing.runOnce(ctx, quoteCh, barCh)
		if ctx.Err() != nil {
			return
		}
		if ing.OnConnected != nil {
			ing.OnConnected(false)
		}
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}
		slog.Warn("stream disconnected, reconnecting",
			slog.Any("error", err),
			slog.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > ing.cfg.ReconnectMax {
			backoff = ing.cfg.ReconnectMax
		}
	}
}

func (ing *Ingest) runOnce(ctx context.Context, quoteCh chan<- model.Quote, barCh chan<- model.PriceBar) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("ws: dial %s: %w", ing.cfg.URL, err)
	}
	defer conn.Close()

	slog.Info("stream connected", slog.String("url", ing.cfg.URL))
	if ing.OnConnected != nil {
		ing.OnConnected(true)
	}

	if err := ing.subscribe(conn); err != nil {
		return err
	}

	// Session keepalive: the venue drops streams idle past ten minutes.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go ing.pingLoop(conn, pingDone)

	// Unblock ReadMessage on shutdown.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-pingDone:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ws: read: %w", err)
		}
		ing.handleMessage(raw, quoteCh, barCh)
	}
}

func (ing *Ingest) subscribe(conn *websocket.Conn) error {
	sub := streamMessage{
		Destination:   "marketData.subscribe",
		CorrelationID: "1",
		CST:           ing.cfg.CST,
		SecurityToken: ing.cfg.SecurityToken,
	}
	payload, _ := json.Marshal(map[string][]string{"epics": {ing.cfg.Epic}})
	sub.Payload = payload
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("ws: subscribe quotes: %w", err)
	}

	if ing.cfg.SubscribeOHLC {
		ohlc := streamMessage{
			Destination:   "OHLCMarketData.subscribe",
			CorrelationID: "2",
			CST:           ing.cfg.CST,
			SecurityToken: ing.cfg.SecurityToken,
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"epics":       []string{ing.cfg.Epic},
			"resolutions": []string{ing.cfg.Resolution},
			"type":        "classic",
		})
		ohlc.Payload = payload
		if err := conn.WriteJSON(ohlc); err != nil {
			return fmt.Errorf("ws: subscribe ohlc: %w", err)
		}
	}
	slog.Info("stream subscriptions sent",
		slog.String("epic", ing.cfg.Epic),
		slog.Bool("ohlc", ing.cfg.SubscribeOHLC))
	return nil
}

func (ing *Ingest) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	n := 100
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			n++
			msg := streamMessage{
				Destination:   "ping",
				CorrelationID: strconv.Itoa(n),
				CST:           ing.cfg.CST,
				SecurityToken: ing.cfg.SecurityToken,
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func (ing *Ingest) handleMessage(raw []byte, quoteCh chan<- model.Quote, barCh chan<- model.PriceBar) {
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		ing.feedError("envelope", err)
		return
	}

	switch msg.Destination {
	case "quote":
		q, err := parseQuote(msg.Payload)
		if err != nil {
			ing.feedError("quote", err)
			return
		}
		if q.Epic != ing.cfg.Epic {
			return
		}
		select {
		case quoteCh <- q:
		default:
			slog.Warn("quote channel full, dropping quote", slog.String("epic", q.Epic))
		}

	case "ohlc.event":
		bar, err := parseBar(msg.Payload)
		if err != nil {
			ing.feedError("ohlc", err)
			return
		}
		if bar.Epic != ing.cfg.Epic {
			return
		}
		select {
		case barCh <- bar:
		default:
			slog.Warn("bar channel full, dropping bar", slog.String("epic", bar.Epic))
		}

	case "ping", "marketData.subscribe", "OHLCMarketData.subscribe":
		// Acks and pongs carry no data.

	default:
		slog.Debug("unhandled stream destination", slog.String("destination", msg.Destination))
	}
}

func (ing *Ingest) feedError(kind string, err error) {
	if ing.OnFeedError != nil {
		ing.OnFeedError()
	}
	slog.Warn("malformed stream payload dropped",
		slog.String("kind", kind),
		slog.Any("error", err))
}

func parseQuote(raw json.RawMessage) (model.Quote, error) {
	if len(raw) == 0 {
		return model.Quote{}, fmt.Errorf("empty payload")
	}
	var p quotePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Quote{}, err
	}
	if p.Epic == "" || p.Bid <= 0 || p.Ofr <= 0 {
		return model.Quote{}, fmt.Errorf("incomplete quote payload")
	}
	ts := time.Now().UTC()
	if p.Timestamp > 0 {
		ts = time.Unix(0, p.Timestamp*int64(time.Millisecond)).UTC()
	}
	return model.Quote{Epic: p.Epic, Bid: p.Bid, Ask: p.Ofr, TS: ts}, nil
}

func parseBar(raw json.RawMessage) (model.PriceBar, error) {
	if len(raw) == 0 {
		return model.PriceBar{}, fmt.Errorf("empty payload")
	}
	var p ohlcPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.PriceBar{}, err
	}
	if p.Epic == "" || p.C <= 0 {
		return model.PriceBar{}, fmt.Errorf("incomplete ohlc payload")
	}
	ts := time.Now().UTC()
	if p.T > 0 {
		ts = time.Unix(0, p.T*int64(time.Millisecond)).UTC()
	}
	return model.PriceBar{
		Epic:       p.Epic,
		Resolution: p.Resolution,
		TS:         ts,
		Open:       p.O,
		High:       p.H,
		Low:        p.L,
		Close:      p.C,
	}, nil
}
