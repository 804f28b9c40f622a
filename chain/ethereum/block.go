package ethereum

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

func blockTime(unixSeconds uint64) time.Time {
	return time.Unix(int64(unixSeconds), 0).UTC()
}

func blockPayload(blk *types.Block) []byte {
	type header struct {
		Number     string `json:"number"`
		Hash       string `json:"hash"`
		ParentHash string `json:"parentHash"`
		Time       uint64 `json:"timestamp"`
		TxCount    int    `json:"txCount"`
	}
	raw, err := json.Marshal(header{
		Number:     blk.Number().String(),
		Hash:       blk.Hash().Hex(),
		ParentHash: blk.ParentHash().Hex(),
		Time:       blk.Time(),
		TxCount:    len(blk.Transactions()),
	})
	if err != nil {
		return nil
	}
	return raw
}
