// Package replay wires the Event Loader, Unified Event Stream, Ledger
// Engine, Snapshotter, and output Store into one per-wallet replay, plus
// a batch driver with a concurrency knob (spec.md §5, §6's CLI surface).
package replay

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/neomarket/ledgerengine/internal/engine"
	"github.com/neomarket/ledgerengine/internal/loader"
	"github.com/neomarket/ledgerengine/internal/metrics"
	"github.com/neomarket/ledgerengine/internal/snapshot"
	"github.com/neomarket/ledgerengine/internal/store"
	"github.com/neomarket/ledgerengine/internal/stream"
)

// Params configures one wallet's replay window and snapshot cadence
// (spec.md §6's single-wallet CLI surface).
type Params struct {
	IntervalSeconds   int64
	StartTs           int64
	EndTs             int64
	DryRun            bool
	ExchangeAddresses []common.Address
}

// Replayer wires the loader and store around one replay. It holds no
// per-wallet state, so one Replayer is reused across every wallet in a
// batch.
type Replayer struct {
	loader  *loader.Loader
	store   *store.Store
	cfg     engine.Config
	logger  *zap.Logger
	metrics metrics.Recorder
}

// New builds a Replayer. cfg carries the negative-risk adapter and
// wrapped-collateral addresses every engine instance needs (spec.md
// §4.5's adapter_conversion reconstruction).
func New(ld *loader.Loader, st *store.Store, cfg engine.Config, logger *zap.Logger, rec metrics.Recorder) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Replayer{loader: ld, store: st, cfg: cfg, logger: logger, metrics: rec}
}

// Summary is what one wallet's replay produces, independent of whether
// it was written (DryRun) or committed to the store.
type Summary struct {
	Wallet       common.Address
	LedgerRows   int
	SnapshotRows int
}

// ReplayWallet runs one wallet's full replay: load, fuse, dispatch,
// snapshot, and — unless params.DryRun — commit. A load failure writes
// nothing. The write itself is the store's two independent
// delete+insert pairs, so a snapshots-table failure can leave the
// ledger table already written; re-running the wallet/range repairs it.
func (r *Replayer) ReplayWallet(ctx context.Context, wallet common.Address, params Params) (Summary, error) {
	loaded, err := r.loader.Load(ctx, wallet, params.EndTs, params.ExchangeAddresses)
	if err != nil {
		r.metrics.IncReplayFailure()
		return Summary{}, fmt.Errorf("replay %s: load: %w", wallet.Hex(), err)
	}

	events := stream.Build(loaded.StreamInput)
	if len(events) == 0 {
		return Summary{Wallet: wallet}, nil
	}

	eng := engine.New(wallet, loaded.Catalog, r.cfg, r.logger, r.metrics)
	snaps := snapshot.Drive(events, eng, snapshot.Params{
		IntervalSeconds: params.IntervalSeconds,
		StartTs:         params.StartTs,
		EndTs:           params.EndTs,
	}, wallet)

	summary := Summary{Wallet: wallet, LedgerRows: len(eng.Ledger()), SnapshotRows: len(snaps)}
	if params.DryRun {
		return summary, nil
	}

	start := params.StartTs
	end := params.EndTs
	if end == 0 {
		end = events[len(events)-1].Key.Timestamp
	}
	if err := r.store.WriteRange(ctx, wallet, start, end, eng.Ledger(), snaps); err != nil {
		r.metrics.IncReplayFailure()
		return Summary{}, fmt.Errorf("replay %s: write: %w", wallet.Hex(), err)
	}
	return summary, nil
}

// BatchResult is one wallet's outcome within a batch run.
type BatchResult struct {
	Summary Summary
	Err     error
}

// ReplayBatch runs ReplayWallet for every wallet with up to concurrency
// replays in flight at once. A failing wallet does not abort the
// others — the batch driver records it as failed and continues
// (spec.md §6's "batch driver over a wallet list", §7's per-wallet
// loader-failure handling).
func (r *Replayer) ReplayBatch(ctx context.Context, wallets []common.Address, params Params, concurrency int) []BatchResult {
	results := make([]BatchResult, len(wallets))

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, wallet := range wallets {
		i, wallet := i, wallet
		g.Go(func() error {
			summary, err := r.ReplayWallet(ctx, wallet, params)
			results[i] = BatchResult{Summary: summary, Err: err}
			if err != nil {
				r.logger.Warn("wallet replay failed", zap.String("wallet", wallet.Hex()), zap.Error(err))
			}
			return nil // never abort siblings; failures are recorded, not propagated
		})
	}
	_ = g.Wait()
	return results
}

// AnyFailed reports whether a batch had at least one failing wallet, for
// the CLI's exit-code decision (spec.md §6: "non-zero on any replay
// failure").
func AnyFailed(results []BatchResult) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}
