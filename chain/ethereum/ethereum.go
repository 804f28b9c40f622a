// Package ethereum implements chain.Adapter against go-ethereum's ethclient,
// the way the ethclient.Client + RetryGetBlockNumber pairing is used
// elsewhere in this codebase.
package ethereum

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/chaingraph/indexer/chain"
	"github.com/chaingraph/indexer/model"
)

// Adapter polls a single Ethereum-compatible network's RPC endpoint for
// finalized blocks.
type Adapter struct {
	client *ethclient.Client
	cfg    chain.Config
}

// New builds an Ethereum adapter against an already-dialed ethclient.Client.
func New(client *ethclient.Client, cfg chain.Config) *Adapter {
	return &Adapter{client: client, cfg: cfg.WithDefaults()}
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
func (a *Adapter) FetchBlock(ctx context.Context, number uint64) (*model.Block, error) {
	return a.fetch(ctx, number)
}

func (a *Adapter) tip(ctx context.Context) (uint64, error) {
	return a.client.BlockNumber(ctx)
}

func (a *Adapter) fetch(ctx context.Context, number uint64) (*model.Block, error) {
	blk, err := a.client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, err
	}
	if blk == nil {
		return nil, nil
	}

	txs := make([]model.Transaction, 0, len(blk.Transactions()))
	for i, tx := range blk.Transactions() {
		keys := accountKeys(tx)
		raw, err := tx.MarshalJSON()
		if err != nil {
			raw = nil
		}
		txs = append(txs, model.Transaction{
			Index:       i,
			AccountKeys: keys,
			Raw:         raw,
		})
	}

	return &model.Block{
		Chain:        model.ChainEthereum,
		Network:      a.cfg.Network,
		Slot:         blk.NumberU64(),
		Hash:         blk.Hash().Hex(),
		ParentHash:   blk.ParentHash().Hex(),
		Timestamp:    blockTime(blk.Time()),
		Transactions: txs,
		Payload:      blockPayload(blk),
	}, nil
}

func accountKeys(tx *types.Transaction) []model.Address {
	keys := make([]model.Address, 0, 2)
	if to := tx.To(); to != nil {
		keys = append(keys, model.Address(normalize(*to)))
	}
	signer := types.LatestSignerForChainID(tx.ChainId())
	if from, err := types.Sender(signer, tx); err == nil {
		keys = append(keys, model.Address(normalize(from)))
	}
	return keys
}

func normalize(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
