package model

import "strings"

// Chain identifies one of the chain families this system can index.
// Wire values match the BlockRequest.chain_type encoding of the
// dispatcher/runtime streaming protocol.
type Chain int

const (
	ChainSubstrate Chain = 0
	ChainEthereum  Chain = 1
	ChainSolana    Chain = 2
)

func (c Chain) String() string {
	switch c {
	case ChainSubstrate:
		return "substrate"
	case ChainEthereum:
		return "ethereum"
	case ChainSolana:
		return "solana"
	default:
		return "unknown"
	}
}

// ChainFromString parses the textual chain name used in manifests.
func ChainFromString(s string) (Chain, bool) {
	switch strings.ToLower(s) {
	case "substrate":
		return ChainSubstrate, true
	case "ethereum":
		return ChainEthereum, true
	case "solana":
		return ChainSolana, true
	default:
		return 0, false
	}
}

// Address is a chain account/contract identifier. Normalization (hex
// lowercasing for Ethereum, base58 for Solana, the signer's account id as a
// 0x-prefixed hex string for Substrate; Substrate addresses are not SS58
// encoded) is the adapter's job at ingestion time so that Filter's
// set-membership test can compare raw strings.
type Address string

func (a Address) String() string { return string(a) }
