// Package substrate implements chain.Adapter against a Substrate node via
// github.com/centrifuge/go-substrate-rpc-client/v4.
package substrate

import (
	"context"
	"encoding/json"
	"fmt"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/chaingraph/indexer/chain"
	"github.com/chaingraph/indexer/model"
)

// Adapter polls a single Substrate chain's RPC endpoint for finalized blocks,
// indexed by block number like Ethereum rather than by Solana-style slot.
type Adapter struct {
	api *gsrpc.SubstrateAPI
	cfg chain.Config
}

// New builds a Substrate adapter against an already-dialed SubstrateAPI.
func New(api *gsrpc.SubstrateAPI, cfg chain.Config) *Adapter {
	return &Adapter{api: api, cfg: cfg.WithDefaults()}
}

// Dial connects to a Substrate node's RPC endpoint and wraps it in an Adapter.
func Dial(url string, cfg chain.Config) (*Adapter, error) {
	api, err := gsrpc.NewSubstrateAPI(url)
	if err != nil {
		return nil, fmt.Errorf("dial substrate node: %w", err)
	}
	return New(api, cfg), nil
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
	hash, err := a.api.RPC.Chain.GetFinalizedHead()
	if err != nil {
		return 0, err
	}
	header, err := a.api.RPC.Chain.GetHeader(hash)
	if err != nil {
		return 0, err
	}
	return uint64(header.Number), nil
}

func (a *Adapter) fetch(ctx context.Context, number uint64) (*model.Block, error) {
	hash, err := a.api.RPC.Chain.GetBlockHash(number)
	if err != nil {
		return nil, err
	}

	block, err := a.api.RPC.Chain.GetBlock(hash)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, nil
	}

	txs := make([]model.Transaction, 0, len(block.Block.Extrinsics))
	for i, ext := range block.Block.Extrinsics {
		raw, err := json.Marshal(ext)
		if err != nil {
			raw = nil
		}
		txs = append(txs, model.Transaction{
			Index:       i,
			AccountKeys: signerAddress(ext),
			Raw:         raw,
		})
	}

	return &model.Block{
		Chain:        model.ChainSubstrate,
		Network:      a.cfg.Network,
		Slot:         number,
		Hash:         hash.Hex(),
		ParentHash:   block.Block.Header.ParentHash.Hex(),
		Transactions: txs,
	}, nil
}

func signerAddress(ext types.Extrinsic) []model.Address {
	if !ext.IsSigned() || !ext.Signature.Signer.IsID {
		return nil
	}
	return []model.Address{model.Address(ext.Signature.Signer.AsID.ToHexString())}
}
