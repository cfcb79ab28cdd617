package execution

import (
	"path/filepath"
	"testing"
	"time"
)

func TestJournal_RecordAndRecent(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "deals.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	legs := []Entry{
		{DealID: "d1", Epic: "BTCUSD", Action: "OPEN", Direction: "BUY", Size: 2, Price: 65000, Reason: "RSI 25.00 < oversold 30.00", At: at},
		{DealID: "d1", Epic: "BTCUSD", Action: "CLOSE", Direction: "SELL", Size: 2, Price: 66000, At: at.Add(time.Hour)},
	}
	for _, e := range legs {
		if err := j.Record(e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	deals, err := j.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(deals) != 2 {
		t.Fatalf("expected 2 deals, got %d", len(deals))
	}
	// Newest first.
	if deals[0].Action != "CLOSE" || deals[1].Action != "OPEN" {
		t.Errorf("expected CLOSE then OPEN, got %s then %s", deals[0].Action, deals[1].Action)
	}
	if deals[1].Reason == "" {
		t.Error("expected reason persisted on the open leg")
	}
}

func TestJournal_RecentHonorsLimit(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "deals.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	for i := 0; i < 5; i++ {
		j.Record(Entry{DealID: "d", Action: "OPEN", Direction: "BUY", Size: 1, Price: float64(i), At: time.Now()})
	}
	deals, err := j.Recent(3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(deals) != 3 {
		t.Errorf("expected 3 deals, got %d", len(deals))
	}
}
