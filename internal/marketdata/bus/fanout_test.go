package bus

import (
	"context"
	"testing"
	"time"

	"rsibot/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	input := make(chan model.Quote, 10)
	ctx, cancel := context.WithCancel(context.Background())
	go fo.Run(ctx, input)

	q := model.Quote{
		Epic: "BTCUSD",
		Bid:  64999,
		Ask:  65001,
		TS:   time.Now().UTC(),
	}

	input <- q
	time.Sleep(50 * time.Millisecond)

	select {
	case got := <-out1:
		if got.Epic != "BTCUSD" {
			t.Errorf("out1: expected epic BTCUSD, got %s", got.Epic)
		}
	case <-time.After(time.Second):
		t.Fatal("out1: timed out waiting for quote")
	}

	select {
	case got := <-out2:
		if got.Epic != "BTCUSD" {
			t.Errorf("out2: expected epic BTCUSD, got %s", got.Epic)
		}
	case <-time.After(time.Second):
		t.Fatal("out2: timed out waiting for quote")
	}

	cancel()
}

func TestFanOut_SlowConsumerDropsNotBlocks(t *testing.T) {
	fo := New(1)
	_ = fo.Subscribe() // never read — fills after one quote

	drops := 0
	fo.OnDrop = func(int) { drops++ }

	input := make(chan model.Quote, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	for i := 0; i < 5; i++ {
		input <- model.Quote{Epic: "BTCUSD", Bid: float64(i)}
	}
	time.Sleep(50 * time.Millisecond)

	if drops != 4 {
		t.Errorf("expected 4 drops for the slow consumer, got %d", drops)
	}
}

func TestFanOut_ChannelStats(t *testing.T) {
	fo := New(8)
	fo.Subscribe()
	fo.Subscribe()

	stats := fo.ChannelStats()
	if len(stats) != 2 {
		t.Fatalf("expected 2 subscriber stats, got %d", len(stats))
	}
	for i, st := range stats {
		if st.Cap != 8 || st.Len != 0 {
			t.Errorf("subscriber %d: expected len=0 cap=8, got %+v", i, st)
		}
	}
}
