package solana

import "time"

// blockTime converts the RPC's blockTime seconds to a time.Time; the field is
// zero for slots whose vote timestamp the node has pruned.
func blockTime(unixSeconds uint64) time.Time {
	if unixSeconds == 0 {
		return time.Time{}
	}
	return time.Unix(int64(unixSeconds), 0).UTC()
}
