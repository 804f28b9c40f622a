package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chaingraph/indexer/blob"
	"github.com/chaingraph/indexer/chain"
	"github.com/chaingraph/indexer/chain/ethereum"
	"github.com/chaingraph/indexer/chain/solana"
	"github.com/chaingraph/indexer/chain/substrate"
	"github.com/chaingraph/indexer/model"
	"github.com/chaingraph/indexer/registry"
	"github.com/chaingraph/indexer/runtime"
	"github.com/chaingraph/indexer/service/logger"
	"github.com/chaingraph/indexer/store/postgres"
)

var (
	indexerHash  string
	runtimeChain string
)

func init() {
	runtimeCmd.Flags().StringVar(&indexerHash, "hash", "", "deployment hash of the indexer to run")
	runtimeCmd.Flags().StringVar(&runtimeChain, "chain", "ethereum", "chain family this indexer's data sources subscribe to (solana|ethereum|substrate)")
	runtimeCmd.MarkFlagRequired("hash")
}

var runtimeCmd = &cobra.Command{
	Use:   "runtime",
	Short: "Run a single deployed indexer's steady-state loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		kind, ok := model.ChainFromString(runtimeChain)
		if !ok {
			return fmt.Errorf("unknown chain %q", runtimeChain)
		}

		pool, err := postgres.NewPool(ctx, postgres.WithAppName("indexer-runtime"))
		if err != nil {
			return fmt.Errorf("connect catalog: %w", err)
		}
		defer pool.Close()

		reg := registry.New(pool)
		ix, err := reg.GetIndexer(ctx, indexerHash)
		if err != nil {
			return fmt.Errorf("load indexer %s: %w", indexerHash, err)
		}

		history, err := historyFetcher(ctx, kind)
		if err != nil {
			return err
		}

		scratchDir, err := os.MkdirTemp("", "indexer-"+ix.Hash)
		if err != nil {
			return fmt.Errorf("create scratch dir: %w", err)
		}
		defer os.RemoveAll(scratchDir)

		fetcher := blob.New(viper.GetString("IPFS_URL"))

		rt, err := runtime.New(ctx, *ix, fetcher, pool, reg, scratchDir, viper.GetString("CHAIN_READER_URL"), history)
		if err != nil {
			return fmt.Errorf("start runtime for %s: %w", ix.Hash, err)
		}

		logger.For(ctx).Infof("runtime: %s (%s/%s) entering steady state at got_block=%d", ix.Hash, ix.Network, ix.Namespace, ix.GotBlock)
		return rt.Run(ctx)
	},
}

// historyFetcher dials the RPC endpoint for kind and returns the adapter as
// a chain.HistoryFetcher for the runtime's backfill path.
func historyFetcher(ctx context.Context, kind model.Chain) (chain.HistoryFetcher, error) {
	cfg := chain.Config{Network: viper.GetString("NETWORK")}

	switch kind {
	case model.ChainSolana:
		url := viper.GetString("SOLANA_RPC_URL")
		if url == "" {
			return nil, fmt.Errorf("SOLANA_RPC_URL not configured")
		}
		return solana.New(url, cfg), nil
	case model.ChainEthereum:
		url := viper.GetString("ETHEREUM_RPC_URL")
		if url == "" {
			return nil, fmt.Errorf("ETHEREUM_RPC_URL not configured")
		}
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("dial ethereum RPC: %w", err)
		}
		return ethereum.New(client, cfg), nil
	case model.ChainSubstrate:
		url := viper.GetString("SUBSTRATE_RPC_URL")
		if url == "" {
			return nil, fmt.Errorf("SUBSTRATE_RPC_URL not configured")
		}
		return substrate.Dial(url, cfg)
	default:
		return nil, fmt.Errorf("unsupported chain %s", kind)
	}
}
