package dispatcher

// BlockRequest is the client-to-server frame opening (or re-opening) a
// streaming subscription: the runtime asks for filtered blocks of one chain
// and network. StartBlockNumber carries the runtime's next wanted slot, but
// the server does not replay from it: a subscription receives only blocks
// committed after it registers, and the runtime backfills any gap before
// the first live block itself.
type BlockRequest struct {
	IndexerHash      string
	StartBlockNumber *uint64
	ChainType        int32 // model.Chain wire values: Substrate=0, Ethereum=1, Solana=2
	Network          string
	Filter           []byte // serialized address set, see model.Filter
}

// BlockResponse is one server-to-client frame: a self-describing batch of
// committed, per-subscriber-filtered blocks.
type BlockResponse struct {
	Version string
	Payload []byte // gob-encoded []*model.Block
}

// protocolVersion is the opaque semver string advertised in BlockResponse;
// clients compare it for compatibility before decoding Payload.
const protocolVersion = "0.1.0"
