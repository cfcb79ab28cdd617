package ws

import (
	"testing"
	"time"

	"rsibot/internal/model"
)

func TestParseQuote(t *testing.T) {
	raw := []byte(`{"epic":"BTCUSD","bid":64999.5,"ofr":65000.5,"timestamp":1735689600000}`)
	q, err := parseQuote(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Epic != "BTCUSD" || q.Bid != 64999.5 || q.Ask != 65000.5 {
		t.Errorf("unexpected quote: %+v", q)
	}
	want := time.Unix(0, 1735689600000*int64(time.Millisecond)).UTC()
	if !q.TS.Equal(want) {
		t.Errorf("expected ts %v, got %v", want, q.TS)
	}
	if q.Mid() != 65000 {
		t.Errorf("expected mid 65000, got %v", q.Mid())
	}
}

func TestParseQuote_Malformed(t *testing.T) {
	cases := []string{
		``,
		`not json`,
		`{"epic":"","bid":1,"ofr":2}`,
		`{"epic":"BTCUSD","bid":0,"ofr":2}`,
		`{"epic":"BTCUSD","bid":1,"ofr":-1}`,
	}
	for _, raw := range cases {
		if _, err := parseQuote([]byte(raw)); err == nil {
			t.Errorf("expected error for payload %q", raw)
		}
	}
}

func TestParseBar(t *testing.T) {
	raw := []byte(`{"epic":"BTCUSD","resolution":"MINUTE_5","t":1735689600000,"o":64000,"h":65500,"l":63900,"c":65000}`)
	bar, err := parseBar(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bar.Epic != "BTCUSD" || bar.Resolution != "MINUTE_5" {
		t.Errorf("unexpected bar identity: %+v", bar)
	}
	if bar.Open != 64000 || bar.High != 65500 || bar.Low != 63900 || bar.Close != 65000 {
		t.Errorf("unexpected OHLC: %+v", bar)
	}
}

func TestParseBar_Malformed(t *testing.T) {
	cases := []string{
		``,
		`{"epic":"BTCUSD","c":0}`,
		`{"c":65000}`,
	}
	for _, raw := range cases {
		if _, err := parseBar([]byte(raw)); err == nil {
			t.Errorf("expected error for payload %q", raw)
		}
	}
}

func TestHandleMessage_RoutesQuotes(t *testing.T) {
	ing := New(IngestConfig{Epic: "BTCUSD"})
	quoteCh := make(chan model.Quote, 1)
	barCh := make(chan model.PriceBar, 1)

	raw := []byte(`{"destination":"quote","payload":{"epic":"BTCUSD","bid":100,"ofr":102}}`)
	ing.handleMessage(raw, quoteCh, barCh)

	select {
	case q := <-quoteCh:
		if q.Epic != "BTCUSD" {
			t.Errorf("unexpected quote: %+v", q)
		}
	default:
		t.Fatal("expected quote on channel")
	}
}

func TestHandleMessage_FiltersForeignEpic(t *testing.T) {
	ing := New(IngestConfig{Epic: "BTCUSD"})
	quoteCh := make(chan model.Quote, 1)
	barCh := make(chan model.PriceBar, 1)

	raw := []byte(`{"destination":"quote","payload":{"epic":"ETHUSD","bid":100,"ofr":102}}`)
	ing.handleMessage(raw, quoteCh, barCh)

	if len(quoteCh) != 0 {
		t.Fatal("foreign-epic quote must be dropped")
	}
}

func TestHandleMessage_MalformedFiresFeedErrorHook(t *testing.T) {
	ing := New(IngestConfig{Epic: "BTCUSD"})
	errs := 0
	ing.OnFeedError = func() { errs++ }
	quoteCh := make(chan model.Quote, 1)
	barCh := make(chan model.PriceBar, 1)

	ing.handleMessage([]byte(`garbage`), quoteCh, barCh)
	ing.handleMessage([]byte(`{"destination":"quote","payload":{"epic":"BTCUSD"}}`), quoteCh, barCh)

	if errs != 2 {
		t.Errorf("expected 2 feed errors, got %d", errs)
	}
	if len(quoteCh) != 0 || len(barCh) != 0 {
		t.Error("malformed payloads must not emit data")
	}
}

func TestHandleMessage_RoutesBars(t *testing.T) {
	ing := New(IngestConfig{Epic: "BTCUSD"})
	quoteCh := make(chan model.Quote, 1)
	barCh := make(chan model.PriceBar, 1)

	raw := []byte(`{"destination":"ohlc.event","payload":{"epic":"BTCUSD","resolution":"MINUTE_5","o":1,"h":2,"l":0.5,"c":1.5}}`)
	ing.handleMessage(raw, quoteCh, barCh)

	select {
	case bar := <-barCh:
		if bar.Close != 1.5 {
			t.Errorf("unexpected bar: %+v", bar)
		}
	default:
		t.Fatal("expected bar on channel")
	}
}

func TestHandleMessage_DropsWhenChannelFull(t *testing.T) {
	ing := New(IngestConfig{Epic: "BTCUSD"})
	quoteCh := make(chan model.Quote, 1)
	barCh := make(chan model.PriceBar, 1)

	raw := []byte(`{"destination":"quote","payload":{"epic":"BTCUSD","bid":100,"ofr":102}}`)
	ing.handleMessage(raw, quoteCh, barCh)
	// Second quote with the channel full must not block.
	done := make(chan struct{})
	go func() {
		ing.handleMessage(raw, quoteCh, barCh)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handleMessage blocked on full channel")
	}
}
