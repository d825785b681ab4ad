// ledgerctl is the operator-facing entrypoint for the ledger engine: a
// single-wallet replay command, a batch driver over a wallet list, and
// a top-N wallet selector (spec.md §6's "CLI surface").
package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/neomarket/ledgerengine/configs"
	"github.com/neomarket/ledgerengine/internal/engine"
	"github.com/neomarket/ledgerengine/internal/loader"
	"github.com/neomarket/ledgerengine/internal/logging"
	"github.com/neomarket/ledgerengine/internal/metrics"
	"github.com/neomarket/ledgerengine/internal/replay"
	"github.com/neomarket/ledgerengine/internal/store"
)

var (
	configPath string
	envPath    string
	interval   int64
	startTs    int64
	endTs      int64
	dryRun     bool
	concurrent int
)

func main() {
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Replay on-chain prediction-market events into wallet ledgers and snapshots",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.yml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&envPath, "env-file", ".env", "path to an optional .env file")

	root.AddCommand(replayCmd(), batchCmd(), topNCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <wallet>",
		Short: "Replay a single wallet and write its ledger and snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, cfg, err := buildReplayer()
			if err != nil {
				return err
			}
			wallet := common.HexToAddress(args[0])
			summary, err := r.ReplayWallet(cmd.Context(), wallet, replayParams(cfg))
			if err != nil {
				return err
			}
			fmt.Printf("wallet=%s ledger_rows=%d snapshot_rows=%d dry_run=%t\n",
				wallet.Hex(), summary.LedgerRows, summary.SnapshotRows, dryRun)
			return nil
		},
	}
	addReplayFlags(cmd)
	return cmd
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <wallet> [wallet...]",
		Short: "Replay a list of wallets with bounded concurrency, continuing past failures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, cfg, err := buildReplayer()
			if err != nil {
				return err
			}
			wallets := make([]common.Address, len(args))
			for i, a := range args {
				wallets[i] = common.HexToAddress(a)
			}
			results := r.ReplayBatch(cmd.Context(), wallets, replayParams(cfg), concurrent)
			for _, res := range results {
				if res.Err != nil {
					fmt.Printf("wallet=%s FAILED: %v\n", res.Summary.Wallet.Hex(), res.Err)
					continue
				}
				fmt.Printf("wallet=%s ledger_rows=%d snapshot_rows=%d\n",
					res.Summary.Wallet.Hex(), res.Summary.LedgerRows, res.Summary.SnapshotRows)
			}
			if replay.AnyFailed(results) {
				return fmt.Errorf("%d of %d wallets failed", countFailed(results), len(results))
			}
			return nil
		},
	}
	addReplayFlags(cmd)
	cmd.Flags().IntVar(&concurrent, "concurrency", 4, "max wallets replayed in parallel")
	return cmd
}

func topNCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "topn",
		Short: "List the top-N ranked wallets from the pre-aggregated ranking table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := configs.LoadDotEnv(envPath); err != nil {
				return err
			}
			cfg, err := configs.LoadConfig(configPath)
			if err != nil {
				return err
			}
			ld, err := loader.Open(cfg.StoreDSN())
			if err != nil {
				return err
			}
			defer ld.Close()

			wallets, err := ld.TopNWallets(cmd.Context(), n)
			if err != nil {
				return err
			}
			for _, w := range wallets {
				fmt.Println(w.Hex())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 100, "number of wallets to list")
	return cmd
}

func addReplayFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&interval, "interval", 0, "snapshot cadence in seconds (defaults to the config file's value)")
	cmd.Flags().Int64Var(&startTs, "start-ts", 0, "replay window start, unix seconds (0 = unbounded)")
	cmd.Flags().Int64Var(&endTs, "end-ts", 0, "replay window end, unix seconds (0 = unbounded)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute the replay but skip writing to the store")
}

func buildReplayer() (*replay.Replayer, *configs.Config, error) {
	if err := configs.LoadDotEnv(envPath); err != nil {
		return nil, nil, err
	}
	cfg, err := configs.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New("info", false)
	if err != nil {
		return nil, nil, err
	}

	ld, err := loader.Open(cfg.StoreDSN())
	if err != nil {
		return nil, nil, err
	}
	st := store.New(ld.DB())

	engCfg := engine.Config{
		NegRiskAdapterAddress:    common.HexToAddress(cfg.Engine.NegRiskAdapterAddress),
		WrappedCollateralAddress: common.HexToAddress(cfg.Engine.WrappedCollateralAddress),
	}
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	return replay.New(ld, st, engCfg, logger, collector), cfg, nil
}

func replayParams(cfg *configs.Config) replay.Params {
	exchangeAddrs := make([]common.Address, len(cfg.Engine.ExchangeAddresses))
	for i, a := range cfg.Engine.ExchangeAddresses {
		exchangeAddrs[i] = common.HexToAddress(a)
	}

	interval := interval
	if interval == 0 {
		interval = cfg.Snapshot.IntervalSeconds
	}
	return replay.Params{
		IntervalSeconds:   interval,
		StartTs:           startTs,
		EndTs:             endTs,
		DryRun:            dryRun,
		ExchangeAddresses: exchangeAddrs,
	}
}

func countFailed(results []replay.BatchResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
