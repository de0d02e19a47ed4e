// Package grpcx is a gRPC transport implementing the Broadcast collaborator
// (spec §6: "Broadcast.streamToPeers(tag, bytes) — fire-and-forget; no
// acknowledgement"). It is hand-written against grpc-go's low-level
// ServiceDesc/codec API instead of generated *.pb.go stubs, since this
// repository is built without running protoc: messages are raw byte frames,
// carried through a custom encoding.Codec, and framed with internal/wire
// so a tag and payload travel together on the wire.
package grpcx

import (
	"context"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/mezonai/dagnode/internal/clog"
	"github.com/mezonai/dagnode/internal/wire"
)

const codecName = "dagnode-raw"

// Frame is the unit exchanged over a Gossip stream: an opaque byte slice.
// rawCodec hands it to grpc verbatim instead of marshaling a proto message.
type Frame []byte

type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	f := v.(*Frame)
	return []byte(*f), nil
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	f := v.(*Frame)
	*f = append((*f)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(rawCodec{})
}

const (
	fieldTag     = 1
	fieldPayload = 2
)

func encodeFrame(tag string, payload []byte) Frame {
	w := wire.NewWriter()
	w.BytesField(fieldTag, []byte(tag))
	w.BytesField(fieldPayload, payload)
	return Frame(w.Bytes())
}

func decodeFrame(f Frame) (tag string, payload []byte, err error) {
	r := wire.NewReader([]byte(f))
	for !r.Done() {
		field, wt, ok, err := r.Next()
		if err != nil {
			return "", nil, err
		}
		if !ok {
			break
		}
		switch field {
		case fieldTag:
			b, err := r.Bytes()
			if err != nil {
				return "", nil, err
			}
			tag = string(b)
		case fieldPayload:
			b, err := r.Bytes()
			if err != nil {
				return "", nil, err
			}
			payload = b
		default:
			if err := r.Skip(wt); err != nil {
				return "", nil, err
			}
		}
	}
	return tag, payload, nil
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "dagnode.Gossip",
	HandlerType: (*GossipServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       gossipStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

// GossipServer is implemented by anything that wants to receive frames
// gossiped in by connected peers.
type GossipServer interface {
	Stream(Gossip_StreamServer) error
}

type Gossip_StreamServer interface {
	Send(*Frame) error
	Recv() (*Frame, error)
	grpc.ServerStream
}

type gossipStreamServer struct{ grpc.ServerStream }

func (s *gossipStreamServer) Send(f *Frame) error      { return s.ServerStream.SendMsg(f) }
func (s *gossipStreamServer) Recv() (*Frame, error) {
	f := new(Frame)
	if err := s.ServerStream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}

func gossipStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(GossipServer).Stream(&gossipStreamServer{stream})
}

// RegisterGossipServer registers srv on s using the hand-written ServiceDesc.
func RegisterGossipServer(s *grpc.Server, srv GossipServer) {
	s.RegisterService(&serviceDesc, srv)
}

type Gossip_StreamClient interface {
	Send(*Frame) error
	Recv() (*Frame, error)
	grpc.ClientStream
}

type gossipClientStream struct{ grpc.ClientStream }

func (s *gossipClientStream) Send(f *Frame) error { return s.ClientStream.SendMsg(f) }
func (s *gossipClientStream) Recv() (*Frame, error) {
	f := new(Frame)
	if err := s.ClientStream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}

// DialGossip opens a Gossip stream to a peer at addr.
func DialGossip(ctx context.Context, addr string) (Gossip_StreamClient, *grpc.ClientConn, error) {
	cc, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})))
	if err != nil {
		return nil, nil, err
	}
	stream, err := cc.NewStream(ctx, &serviceDesc.Streams[0], "/dagnode.Gossip/Stream")
	if err != nil {
		_ = cc.Close()
		return nil, nil, err
	}
	return &gossipClientStream{stream}, cc, nil
}

// Gossip is a GossipServer that fans incoming frames out to onRecv and
// tracks every connected peer stream so StreamToPeers can fan a locally
// originated frame out to all of them.
type Gossip struct {
	mu    sync.Mutex
	peers map[*gossipPeer]struct{}

	onRecv func(tag string, payload []byte)
}

type gossipPeer struct {
	send func(*Frame) error
}

// NewGossip returns a Gossip server; onRecv is invoked for every frame
// received from any peer.
func NewGossip(onRecv func(tag string, payload []byte)) *Gossip {
	return &Gossip{peers: map[*gossipPeer]struct{}{}, onRecv: onRecv}
}

// Stream implements GossipServer: it registers the peer for fan-out, then
// blocks relaying inbound frames to onRecv until the peer disconnects.
func (g *Gossip) Stream(stream Gossip_StreamServer) error {
	peer := &gossipPeer{send: stream.Send}
	g.mu.Lock()
	g.peers[peer] = struct{}{}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.peers, peer)
		g.mu.Unlock()
	}()

	for {
		f, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		tag, payload, err := decodeFrame(*f)
		if err != nil {
			clog.Warn("GRPCX", "dropping malformed gossip frame:", err)
			continue
		}
		if g.onRecv != nil {
			g.onRecv(tag, payload)
		}
	}
}

// StreamToPeers is the Broadcast collaborator: fire-and-forget, any peer
// send failure is logged and otherwise ignored (spec §6: "transport may
// drop").
func (g *Gossip) StreamToPeers(tag string, payload []byte) error {
	frame := encodeFrame(tag, payload)
	g.mu.Lock()
	defer g.mu.Unlock()
	for peer := range g.peers {
		if err := peer.send(&frame); err != nil {
			clog.Warn("GRPCX", "gossip send to peer failed, dropping:", err)
		}
	}
	return nil
}
