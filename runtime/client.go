package runtime

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chaingraph/indexer/dispatcher"
	"github.com/chaingraph/indexer/model"
)

// streamClient is the runtime-side half of the dispatcher's streaming RPC:
// one websocket connection, opened with a BlockRequest and then read as a
// sequence of BlockResponse frames.
type streamClient struct {
	conn *websocket.Conn
}

// dialStream opens a new subscription against the dispatcher at url.
func dialStream(ctx context.Context, url string, req dispatcher.BlockRequest) (*streamClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial dispatcher stream: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("encode BlockRequest: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send BlockRequest: %w", err)
	}

	return &streamClient{conn: conn}, nil
}

// next blocks for the next committed block batch, failing with a timeout
// error if nothing arrives before deadline.
func (c *streamClient) next(deadline time.Duration) ([]*model.Block, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var resp dispatcher.BlockResponse
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode BlockResponse: %w", err)
	}
	return dispatcher.DecodeBlocks(resp.Payload)
}

func (c *streamClient) close() {
	_ = c.conn.Close()
}
