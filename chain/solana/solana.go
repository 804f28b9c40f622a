// Package solana implements chain.Adapter for the Solana RPC surface via
// github.com/dfuse-io/solana-go.
package solana

import (
	"context"
	"encoding/json"

	solanaRPC "github.com/dfuse-io/solana-go/rpc"

	"github.com/chaingraph/indexer/chain"
	"github.com/chaingraph/indexer/model"
)

// Adapter polls a single Solana network's RPC endpoint for finalized slots.
type Adapter struct {
	client *solanaRPC.Client
	cfg    chain.Config
}

// New builds a Solana adapter against rpcURL for the given network config.
func New(rpcURL string, cfg chain.Config) *Adapter {
	return &Adapter{
		client: solanaRPC.NewClient(rpcURL),
		cfg:    cfg.WithDefaults(),
	}
}

// Start implements chain.Adapter.
func (a *Adapter) Start(ctx context.Context, out chan<- model.BlockInfo) error {
	last, err := chain.StartSlot(ctx, a.cfg, a.tip)
	if err != nil {
		return err
	}
	return chain.RunPollLoop(ctx, a.cfg, last, a.tip, a.fetch, out)
}

// FetchBlock implements chain.HistoryFetcher.
func (a *Adapter) FetchBlock(ctx context.Context, slot uint64) (*model.Block, error) {
	return a.fetch(ctx, slot)
}

func (a *Adapter) tip(ctx context.Context) (uint64, error) {
	slot, err := a.client.GetSlot(ctx, solanaRPC.CommitmentMax)
	if err != nil {
		return 0, err
	}
	return uint64(slot), nil
}

func (a *Adapter) fetch(ctx context.Context, slot uint64) (*model.Block, error) {
	blk, err := a.client.GetConfirmedBlock(ctx, slot, "json")
	if err != nil {
		return nil, err
	}
	if blk == nil {
		return nil, nil
	}

	txs := make([]model.Transaction, 0, len(blk.Transactions))
	for i, tx := range blk.Transactions {
		keys := make([]model.Address, 0, len(tx.Transaction.Message.AccountKeys))
		for _, k := range tx.Transaction.Message.AccountKeys {
			keys = append(keys, model.Address(k.String()))
		}
		raw, _ := json.Marshal(tx)
		txs = append(txs, model.Transaction{
			Index:       i,
			AccountKeys: keys,
			Raw:         raw,
		})
	}

	payload, err := json.Marshal(blk)
	if err != nil {
		return nil, err
	}

	return &model.Block{
		Chain:        model.ChainSolana,
		Network:      a.cfg.Network,
		Slot:         slot,
		Hash:         blk.Blockhash.String(),
		ParentHash:   blk.PreviousBlockhash.String(),
		Timestamp:    blockTime(uint64(blk.BlockTime)),
		Transactions: txs,
		Payload:      payload,
	}, nil
}
