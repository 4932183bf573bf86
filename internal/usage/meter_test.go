package usage

import (
	"sync"
	"testing"

	"github.com/salescoach/advisor/internal/domain"
)

func TestMeter_RecordAndTotal(t *testing.T) {
	m := NewMeter(Options{})

	m.Record("t1", "u1", 100)
	m.Record("t1", "u1", 50)
	m.Record("t1", "u2", 30)
	m.Record("t2", "u1", 7)

	if got := m.Total("t1", "u1"); got != 150 {
		t.Fatalf("Total(t1,u1) = %d, want 150", got)
	}
	if got := m.Total("t1", "u2"); got != 30 {
		t.Fatalf("Total(t1,u2) = %d, want 30", got)
	}
	if got := m.Total("t2", "u1"); got != 7 {
		t.Fatalf("Total(t2,u1) = %d, want 7", got)
	}
	if got := m.Total("t3", "u9"); got != 0 {
		t.Fatalf("Total(unknown) = %d, want 0", got)
	}
}

func TestMeter_RecordReturnsNewTotal(t *testing.T) {
	m := NewMeter(Options{})
	if got := m.Record("t1", "u1", 10); got != 10 {
		t.Fatalf("Record() = %d, want 10", got)
	}
	if got := m.Record("t1", "u1", 5); got != 15 {
		t.Fatalf("Record() = %d, want 15", got)
	}
}

func TestMeter_RecordsSnapshot(t *testing.T) {
	m := NewMeter(Options{})
	m.Record("t1", "u1", 10)
	m.Record("t1", "u1", 20)

	records := m.Records()
	if len(records) != 2 {
		t.Fatalf("Records() len = %d, want 2", len(records))
	}
	if records[0].TokensUsed != 10 || records[1].TokensUsed != 20 {
		t.Fatalf("Records() = %+v", records)
	}
}

func TestMeter_ConcurrentRecording(t *testing.T) {
	m := NewMeter(Options{})

	const workers = 10
	const perWorker = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Record("t1", "u1", 1)
			}
		}()
	}
	wg.Wait()

	if got := m.Total("t1", "u1"); got != workers*perWorker {
		t.Fatalf("Total() = %d after concurrent recording, want %d", got, workers*perWorker)
	}
	if got := len(m.Records()); got != workers*perWorker {
		t.Fatalf("Records() len = %d, want %d", got, workers*perWorker)
	}
}

func TestMeter_CheckQuotaDisabled(t *testing.T) {
	m := NewMeter(Options{TokenLimit: 0, Hard: true})
	m.Record("t1", "u1", 1_000_000)
	if err := m.CheckQuota("t1", "u1"); err != nil {
		t.Fatalf("CheckQuota() with no limit error = %v", err)
	}
}

func TestMeter_CheckQuotaAdvisory(t *testing.T) {
	m := NewMeter(Options{TokenLimit: 100})
	m.Record("t1", "u1", 150)
	if err := m.CheckQuota("t1", "u1"); err != nil {
		t.Fatalf("advisory CheckQuota() error = %v, want nil", err)
	}
}

func TestMeter_CheckQuotaHard(t *testing.T) {
	m := NewMeter(Options{TokenLimit: 100, Hard: true})

	if err := m.CheckQuota("t1", "u1"); err != nil {
		t.Fatalf("CheckQuota() under limit error = %v", err)
	}

	m.Record("t1", "u1", 100)
	err := m.CheckQuota("t1", "u1")
	if !domain.IsKind(err, domain.KindQuotaExceeded) {
		t.Fatalf("CheckQuota() at limit error = %v, want quota_exceeded", err)
	}

	// Other keys are unaffected.
	if err := m.CheckQuota("t1", "u2"); err != nil {
		t.Fatalf("CheckQuota() other user error = %v", err)
	}
}

func TestEstimator_CountNonEmpty(t *testing.T) {
	e := NewEstimator()
	n := e.Count("gpt-4.1-mini-2025-04-14", "Prepare me for a renewal call with ACME.")
	if n <= 0 {
		t.Fatalf("Count() = %d, want > 0", n)
	}
}

func TestEstimator_EstimateUsage(t *testing.T) {
	e := NewEstimator()
	in, out := e.EstimateUsage("gpt-4.1-mini-2025-04-14", "a prompt body", `{"summary":"ok"}`)
	if in <= 0 || out <= 0 {
		t.Fatalf("EstimateUsage() = (%d, %d), want positive counts", in, out)
	}
}
