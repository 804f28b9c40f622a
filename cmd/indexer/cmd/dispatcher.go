package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chaingraph/indexer/chain"
	"github.com/chaingraph/indexer/chain/ethereum"
	"github.com/chaingraph/indexer/chain/solana"
	"github.com/chaingraph/indexer/chain/substrate"
	"github.com/chaingraph/indexer/dispatcher"
	"github.com/chaingraph/indexer/model"
	"github.com/chaingraph/indexer/service/logger"
)

var dispatcherPort uint64

func init() {
	dispatcherCmd.Flags().Uint64VarP(&dispatcherPort, "port", "p", 4001, "port the dispatcher's streaming RPC server listens on")
}

var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Run the chain readers and the streaming RPC server runtimes subscribe to",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		readers, dispatchers, err := buildReaders(ctx)
		if err != nil {
			return err
		}
		statsInterval := time.Duration(viper.GetInt("STATS_REFRESH_INTERVAL")) * time.Second
		for _, rd := range readers {
			go rd.run(ctx)
			go rd.dispatcher.StatsLoop(ctx, statsInterval)
		}

		server := dispatcher.NewServer(dispatchers...)
		addr := fmt.Sprintf(":%d", dispatcherPort)
		logger.For(ctx).Infof("dispatcher: serving streaming RPC on %s", addr)

		httpServer := &http.Server{Addr: addr, Handler: server}
		go func() {
			<-ctx.Done()
			httpServer.Close()
		}()
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

// chainReader pairs a chain.Adapter with the dispatcher task that consumes
// its output channel.
type chainReader struct {
	adapter    chain.Adapter
	dispatcher *dispatcher.ChainDispatcher
}

func (r chainReader) run(ctx context.Context) {
	out := make(chan model.BlockInfo, 64)
	go r.dispatcher.Run(ctx, out)
	if err := r.adapter.Start(ctx, out); err != nil && ctx.Err() == nil {
		logger.For(ctx).Errorf("dispatcher: chain adapter %s/%s stopped: %s",
			r.dispatcher.Chain, r.dispatcher.Network, err)
	}
}

// buildReaders constructs one chain.Adapter and ChainDispatcher pair per
// configured RPC endpoint. A chain is skipped when its RPC URL is unset.
func buildReaders(ctx context.Context) ([]chainReader, []*dispatcher.ChainDispatcher, error) {
	var readers []chainReader
	var dispatchers []*dispatcher.ChainDispatcher

	cfg := chain.Config{
		StartBlock:     uint64(viper.GetInt("START_BLOCK")),
		BatchSize:      uint64(viper.GetInt("BLOCK_BATCH_SIZE")),
		FinalityMargin: uint64(viper.GetInt("FINALITY_MARGIN")),
	}
	network := viper.GetString("NETWORK")

	if url := viper.GetString("SOLANA_RPC_URL"); url != "" {
		cfg := cfg
		cfg.Network = network
		a := solana.New(url, cfg)
		d := dispatcher.NewChainDispatcher(model.ChainSolana, network)
		readers = append(readers, chainReader{adapter: a, dispatcher: d})
		dispatchers = append(dispatchers, d)
	}

	if url := viper.GetString("ETHEREUM_RPC_URL"); url != "" {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("dial ethereum RPC: %w", err)
		}
		cfg := cfg
		cfg.Network = network
		a := ethereum.New(client, cfg)
		d := dispatcher.NewChainDispatcher(model.ChainEthereum, network)
		readers = append(readers, chainReader{adapter: a, dispatcher: d})
		dispatchers = append(dispatchers, d)
	}

	if url := viper.GetString("SUBSTRATE_RPC_URL"); url != "" {
		cfg := cfg
		cfg.Network = network
		a, err := substrate.Dial(url, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("dial substrate RPC: %w", err)
		}
		d := dispatcher.NewChainDispatcher(model.ChainSubstrate, network)
		readers = append(readers, chainReader{adapter: a, dispatcher: d})
		dispatchers = append(dispatchers, d)
	}

	if len(readers) == 0 {
		return nil, nil, fmt.Errorf("no chain RPC URLs configured: set one of SOLANA_RPC_URL, ETHEREUM_RPC_URL, SUBSTRATE_RPC_URL")
	}
	return readers, dispatchers, nil
}
