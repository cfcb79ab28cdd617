// cmd/feedsim — Demo WebSocket market data server.
// Speaks the venue's streaming wire format so the engine can run end to
// end without venue credentials (pair with CAPITAL_DRY_RUN=true and
// STREAM_URL=ws://localhost:9001/connect).
//
// Config (env vars):
//
//	FEEDSIM_ADDR         — listen address (default: ":9001")
//	FEEDSIM_EPIC         — instrument epic (default: "BTCUSD")
//	FEEDSIM_PRICE        — starting mid price (default: "65000")
//	FEEDSIM_SPREAD       — bid/ask spread (default: "2")
//	FEEDSIM_INTERVAL_MS  — quote interval milliseconds (default: "250")
//	FEEDSIM_BAR_SEC      — OHLC bar interval seconds (default: "10")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Destination   string          `json:"destination"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Status        string          `json:"status,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

type quoteMsg struct {
	Epic      string  `json:"epic"`
	Bid       float64 `json:"bid"`
	Ofr       float64 `json:"ofr"`
	Timestamp int64   `json:"timestamp"`
}

type ohlcMsg struct {
	Epic       string  `json:"epic"`
	Resolution string  `json:"resolution"`
	T          int64   `json:"t"`
	O          float64 `json:"o"`
	H          float64 `json:"h"`
	L          float64 `json:"l"`
	C          float64 `json:"c"`
}

// client tracks one connection and which feeds it asked for.
type client struct {
	send   chan []byte
	quotes bool
	ohlc   bool
}

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]*client)}
}

func (h *hub) register(conn *websocket.Conn) *client {
	c := &client{send: make(chan []byte, 256)}
	h.mu.Lock()
	h.clients[conn] = c
	h.mu.Unlock()
	return c
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if c, ok := h.clients[conn]; ok {
		close(c.send)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte, ohlc bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if ohlc && !c.ohlc {
			continue
		}
		if !ohlc && !c.quotes {
			continue
		}
		select {
		case c.send <- msg:
		default: // slow client — drop
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[feedsim] upgrade error: %v", err)
			return
		}
		log.Printf("[feedsim] client connected: %s", r.RemoteAddr)

		c := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[feedsim] client disconnected: %s", r.RemoteAddr)
		}()

		// Write pump.
		go func() {
			for msg := range c.send {
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		// Read pump: subscription and ping handling.
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg envelope
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			switch msg.Destination {
			case "marketData.subscribe":
				h.mu.Lock()
				c.quotes = true
				h.mu.Unlock()
				ack(c, msg)
			case "OHLCMarketData.subscribe":
				h.mu.Lock()
				c.ohlc = true
				h.mu.Unlock()
				ack(c, msg)
			case "ping":
				ack(c, msg)
			}
		}
	}
}

func ack(c *client, msg envelope) {
	b, _ := json.Marshal(envelope{
		Destination:   msg.Destination,
		CorrelationID: msg.CorrelationID,
		Status:        "OK",
	})
	select {
	case c.send <- b:
	default:
	}
}

// walk applies a ±0.1% random step.
func walk(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	next := price * (1 + pct)
	if next < 1 {
		next = 1
	}
	return next
}

func runGenerator(h *hub, epic string, mid, spread float64, interval, barInterval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	barStart := time.Now().Truncate(barInterval)
	o, hi, lo := mid, mid, mid

	for range ticker.C {
		mid = walk(mid)
		now := time.Now().UTC()

		if mid > hi {
			hi = mid
		}
		if mid < lo {
			lo = mid
		}

		qp, _ := json.Marshal(quoteMsg{
			Epic:      epic,
			Bid:       mid - spread/2,
			Ofr:       mid + spread/2,
			Timestamp: now.UnixMilli(),
		})
		q, _ := json.Marshal(envelope{Destination: "quote", Payload: qp})
		h.broadcast(q, false)

		if bucket := now.Truncate(barInterval); bucket.After(barStart) {
			bp, _ := json.Marshal(ohlcMsg{
				Epic:       epic,
				Resolution: fmt.Sprintf("SIM_%dS", int(barInterval.Seconds())),
				T:          barStart.UnixMilli(),
				O:          o,
				H:          hi,
				L:          lo,
				C:          mid,
			})
			b, _ := json.Marshal(envelope{Destination: "ohlc.event", Payload: bp})
			h.broadcast(b, true)
			barStart = bucket
			o, hi, lo = mid, mid, mid
		}
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedsim] starting demo feed server...")

	addr := envOrDefault("FEEDSIM_ADDR", ":9001")
	epic := envOrDefault("FEEDSIM_EPIC", "BTCUSD")
	price := envFloatOrDefault("FEEDSIM_PRICE", 65000)
	spread := envFloatOrDefault("FEEDSIM_SPREAD", 2)
	intervalMs := envIntOrDefault("FEEDSIM_INTERVAL_MS", 250)
	barSec := envIntOrDefault("FEEDSIM_BAR_SEC", 10)

	h := newHub()
	go runGenerator(h, epic, price, spread,
		time.Duration(intervalMs)*time.Millisecond,
		time.Duration(barSec)*time.Second)

	http.HandleFunc("/connect", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})

	log.Printf("[feedsim] listening on %s  (WebSocket: ws://localhost%s/connect)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[feedsim] server error: %v", err)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
