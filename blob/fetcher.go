// Package blob implements the content-addressed artifact fetcher every
// IndexerRuntime uses to retrieve a deployment's schema, mapping, and
// manifest blobs from a single IPFS node.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	shell "github.com/ipfs/go-ipfs-api"
)

// Fetcher retrieves and publishes content-addressed artifacts against a
// single IPFS node.
type Fetcher struct {
	client *shell.Shell
}

// New wraps an IPFS node reachable at url.
func New(url string) *Fetcher {
	return &Fetcher{client: shell.NewShell(url)}
}

// CatAll fetches the full content of cid into memory. Deployment artifacts
// (schema text, compiled mapping binaries, manifest YAML) are small enough
// that streaming isn't warranted.
func (f *Fetcher) CatAll(ctx context.Context, cid string) ([]byte, error) {
	reader, err := f.client.Cat(cid)
	if err != nil {
		return nil, fmt.Errorf("ipfs cat %s: %w", cid, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("ipfs cat %s: read body: %w", cid, err)
	}
	return data, nil
}

// Add publishes data and returns its resulting CID.
func (f *Fetcher) Add(ctx context.Context, data []byte) (string, error) {
	cid, err := f.client.Add(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	return cid, nil
}
