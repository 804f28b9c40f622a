package dispatcher

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/chaingraph/indexer/model"
	"github.com/chaingraph/indexer/service/logger"
)

// Server is the streaming RPC surface a runtime connects to: one upgraded
// websocket connection per indexer subscription, carrying gob-encoded
// BlockRequest/BlockResponse frames over the same duplex-websocket shape
// used elsewhere in this codebase for long-lived streaming.
type Server struct {
	chains   map[string]*ChainDispatcher
	upgrader websocket.Upgrader
}

// NewServer builds a Server fanning requests out across the given per-chain
// dispatchers, keyed by "<chain>/<network>".
func NewServer(dispatchers ...*ChainDispatcher) *Server {
	s := &Server{
		chains: make(map[string]*ChainDispatcher, len(dispatchers)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, d := range dispatchers {
		s.chains[dispatcherKey(d.Chain, d.Network)] = d
	}
	return s
}

func dispatcherKey(chain model.Chain, network string) string {
	return fmt.Sprintf("%s/%s", chain, network)
}

// ServeHTTP upgrades the connection, reads the opening BlockRequest, and
// then streams BlockResponse frames for the lifetime of the connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.For(ctx).Errorf("dispatcher server: upgrade failed: %s", err)
		return
	}
	defer conn.Close()

	var req BlockRequest
	if err := readFrame(conn, &req); err != nil {
		logger.For(ctx).Errorf("dispatcher server: read BlockRequest: %s", err)
		return
	}

	d, ok := s.chains[dispatcherKey(model.Chain(req.ChainType), req.Network)]
	if !ok {
		logger.For(ctx).Errorf("dispatcher server: no dispatcher for chain=%d network=%s", req.ChainType, req.Network)
		return
	}

	filter := model.NewFilter(deserializeAddresses(req.Filter))
	sub := NewSubscriber(req.IndexerHash, filter)
	d.Broadcast.Register(sub)
	defer sub.Close()

	logger.For(ctx).Infof("dispatcher server: indexer %s (sub %s) subscribed to %s", req.IndexerHash, sub.ID, dispatcherKey(d.Chain, d.Network))

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done:
			return
		case blk, ok := <-sub.Out:
			if !ok {
				return
			}
			payload, err := encodeBlocks([]*model.Block{blk})
			if err != nil {
				logger.For(ctx).Errorf("dispatcher server: encode block: %s", err)
				continue
			}
			resp := BlockResponse{Version: protocolVersion, Payload: payload}
			if err := writeFrame(conn, resp); err != nil {
				logger.For(ctx).Errorf("dispatcher server: write BlockResponse: %s", err)
				return
			}
		}
	}
}

func readFrame(conn *websocket.Conn, v interface{}) error {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func writeFrame(conn *websocket.Conn, v interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, buf.Bytes())
}

func encodeBlocks(blocks []*model.Block) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(blocks); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBlocks decodes a BlockResponse payload back into its block batch;
// exported for use by the runtime's client side.
func DecodeBlocks(payload []byte) ([]*model.Block, error) {
	var blocks []*model.Block
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

func deserializeAddresses(raw []byte) []model.Address {
	if len(raw) == 0 {
		return nil
	}
	var addrs []string
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&addrs); err != nil {
		return nil
	}
	out := make([]model.Address, len(addrs))
	for i, a := range addrs {
		out[i] = model.Address(a)
	}
	return out
}

// SerializeAddresses encodes a filter's address set for transport inside a
// BlockRequest.Filter field; the client-side counterpart of
// deserializeAddresses.
func SerializeAddresses(addrs []model.Address) []byte {
	strs := make([]string, len(addrs))
	for i, a := range addrs {
		strs[i] = string(a)
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(strs)
	return buf.Bytes()
}
