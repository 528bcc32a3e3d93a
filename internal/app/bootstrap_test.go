package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"paper_ledger/internal/domain"
	"paper_ledger/internal/event"
	"paper_ledger/internal/infra"
	"paper_ledger/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, snapshotEvery int) string {
	t.Helper()
	dir := t.TempDir()
	body := "ledger:\n" +
		"  base_currency: USD\n" +
		"  initial_deposit: \"1000\"\n" +
		"engine:\n" +
		"  snapshot_every: " + strconv.Itoa(snapshotEvery) + "\n" +
		"  dump_file: " + filepath.Join(dir, "dump.json") + "\n" +
		"storage:\n" +
		"  enabled: true\n" +
		"  path: " + filepath.Join(dir, "ledger.db") + "\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// runSession boots a ledger, applies fn through a running sequencer and shuts down.
func runSession(t *testing.T, cfgPath string, fn func(ctx context.Context, b *Bootstrap)) {
	t.Helper()
	b := NewBootstrap(cfgPath)
	b.Quiet = true
	b.Metrics = &infra.Metrics{}
	require.NoError(t, b.Initialize())
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	seq, err := b.BuildSequencer(ctx, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		seq.Run(ctx)
		close(done)
	}()
	require.NoError(t, b.SeedInitialDeposit(ctx))
	fn(ctx, b)
	cancel()
	<-done
}

func TestBootstrap_RecoverAcrossRestarts(t *testing.T) {
	for _, every := range []int{0, 2} {
		t.Run("snapshot_every="+strconv.Itoa(every), func(t *testing.T) {
			cfgPath := writeConfig(t, every)
			btcUSD := domain.Pair{Base: "btc", Quote: "usd"}

			runSession(t, cfgPath, func(ctx context.Context, b *Bootstrap) {
				require.NoError(t, b.Sequencer.Submit(ctx, &event.PositionOpenedEvent{Request: domain.OpenRequest{
					Pair: btcUSD, Quantity: decimal.RequireFromString("0.05"), BuyingPrice: decimal.NewFromInt(10000),
				}}))
				require.NoError(t, b.Sequencer.Submit(ctx, &event.PositionClosedEvent{Request: domain.CloseRequest{
					ID: "trade_1", Pair: btcUSD, Quantity: decimal.RequireFromString("0.01"), SellingPrice: decimal.NewFromInt(14000),
				}}))
			})

			runSession(t, cfgPath, func(ctx context.Context, b *Bootstrap) {
				assert.Equal(t, uint64(3), b.Sequencer.LastSeq(), "deposit must not be seeded twice")

				assets := b.Sequencer.Assets()
				require.Len(t, assets, 2)
				assert.Equal(t, "usd", assets[0].Symbol)
				assert.True(t, assets[0].Quantity.Equal(decimal.NewFromInt(640)), "usd: %s", assets[0].Quantity)

				// The id counter survives the restart.
				ev := &event.PositionOpenedEvent{Request: domain.OpenRequest{
					Pair: domain.Pair{Base: "eth", Quote: "usd"}, Quantity: decimal.NewFromInt(1), BuyingPrice: decimal.NewFromInt(100),
				}}
				require.NoError(t, b.Sequencer.Submit(ctx, ev))
				assert.Equal(t, "trade_3", ev.PositionID)

				audit, err := b.ReplayJournal(ctx)
				require.NoError(t, err)
				live, err := json.Marshal(b.Sequencer.State())
				require.NoError(t, err)
				replayed, err := json.Marshal(audit.State())
				require.NoError(t, err)
				assert.JSONEq(t, string(live), string(replayed))
			})
		})
	}
}

func TestBootstrap_StorageDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  enabled: false\n"), 0644))

	b := NewBootstrap(path)
	b.Quiet = true
	b.Metrics = &infra.Metrics{}
	require.NoError(t, b.Initialize())
	assert.Nil(t, b.Storage)

	seq, err := b.BuildSequencer(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq.LastSeq())

	_, err = b.ReplayJournal(context.Background())
	assert.Error(t, err)
}

func TestBootstrap_SnapshotAheadOfJournal(t *testing.T) {
	cfgPath := writeConfig(t, 0)

	b := NewBootstrap(cfgPath)
	b.Quiet = true
	b.Metrics = &infra.Metrics{}
	require.NoError(t, b.Initialize())
	defer b.Close()

	// A snapshot claims seq 5 but the journal holds nothing.
	ctx := context.Background()
	require.NoError(t, b.Storage.SaveSnapshot(ctx, 5, ledger.New().State()))

	_, err := b.BuildSequencer(ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RECOVERY_MISMATCH")
}
