package engine

import (
	"context"
	"testing"

	"paper_ledger/internal/infra"
	"paper_ledger/internal/ledger"
)

// BenchmarkSequencer_ProcessEvent measures ledger mutation speed without channel overhead.
func BenchmarkSequencer_ProcessEvent(b *testing.B) {
	seq := NewSequencer(ledger.New(), 0, Options{Metrics: &infra.Metrics{}})

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if i%2 == 0 {
			seq.processEvent(openBTC("0.01", "10000"))
		} else {
			seq.processEvent(closeBTC("trade_1", "0.001", "10100"))
		}
	}
}

// BenchmarkSequencer_Submit measures end-to-end command processing.
// Note: This benchmark includes channel overhead.
func BenchmarkSequencer_Submit(b *testing.B) {
	seq := NewSequencer(ledger.New(), 0, Options{InboxSize: 1024, Metrics: &infra.Metrics{}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go seq.Run(ctx)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := seq.Submit(ctx, deposit("1")); err != nil {
			b.Fatal(err)
		}
	}
}
