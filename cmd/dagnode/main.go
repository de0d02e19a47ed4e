// Command dagnode runs the consensus core standalone: it replays or starts
// a block DAG store, runs the genesis approval ceremony, and
// gossips over gRPC with peers.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/mezonai/dagnode/internal/blockstore"
	"github.com/mezonai/dagnode/internal/checkpointsign"
	"github.com/mezonai/dagnode/internal/clog"
	"github.com/mezonai/dagnode/internal/collab"
	"github.com/mezonai/dagnode/internal/config"
	"github.com/mezonai/dagnode/internal/dagstore"
	"github.com/mezonai/dagnode/internal/diagnostics"
	"github.com/mezonai/dagnode/internal/genesis"
	"github.com/mezonai/dagnode/internal/grpcx"
	"github.com/mezonai/dagnode/internal/laststore"
	"github.com/mezonai/dagnode/internal/metastore"
)

func newListener(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

func metaStoreConfig(t *config.NodeTunables, signer *checkpointsign.SigningKey) metastore.Config {
	return metastore.Config{
		MaxSizeFactor:       t.MetaMaxSizeFactor,
		CheckpointSizeBytes: t.CheckpointSizeBytes,
		Signer:              signer,
	}
}

func lastStoreConfig(t *config.NodeTunables) laststore.Config {
	return laststore.Config{MaxSizeFactor: t.LastMaxSizeFactor}
}

func main() {
	nodeConfigPath := flag.String("config", "node.ini", "path to node tunables INI file")
	genesisConfigPath := flag.String("genesis", "genesis.yaml", "path to genesis ceremony YAML file")
	keyPath := flag.String("key", "node.key", "path to hex-encoded Ed25519 seed file")
	listenAddr := flag.String("listen", ":9090", "gRPC gossip listen address")
	pgDSN := flag.String("postgres-dsn", "", "optional Postgres DSN for diagnostics; empty disables it")
	flag.Parse()

	tunables, err := config.LoadNodeTunables(*nodeConfigPath)
	if err != nil {
		clog.Error("MAIN", "load node tunables:", err)
		os.Exit(1)
	}
	clog.Init(clog.Config{Filename: tunables.LogFilename, MaxSizeMB: tunables.LogMaxSizeMB, MaxAgeDays: tunables.LogMaxAgeDays})

	seed, err := config.LoadEd25519PrivKey(*keyPath)
	if err != nil {
		clog.Error("MAIN", "load node key:", err)
		os.Exit(1)
	}
	signingKey := checkpointsign.NewSigningKey(seed)

	var metrics interface{ IncrementCounter(string) } = diagnostics.NewInMemorySink()
	if *pgDSN != "" {
		sink, err := diagnostics.Open(*pgDSN)
		if err != nil {
			clog.Error("MAIN", "open diagnostics sink:", err)
			os.Exit(1)
		}
		defer sink.Close()
		metrics = sink
	}

	blocks, err := blockstore.Open(tunables.StoreDir + "/blocks.bolt")
	if err != nil {
		clog.Error("MAIN", "open block store:", err)
		os.Exit(1)
	}
	defer blocks.Close()

	store, err := dagstore.Open(dagstore.Config{
		Dir:       tunables.StoreDir,
		MetaStore: metaStoreConfig(tunables, signingKey),
		LastStore: lastStoreConfig(tunables),
	})
	if err != nil {
		clog.Error("MAIN", "open dag store:", err)
		os.Exit(1)
	}
	defer store.Close()

	gcfg, err := config.LoadGenesisConfig(*genesisConfigPath)
	if err != nil {
		clog.Error("MAIN", "load genesis config:", err)
		os.Exit(1)
	}
	trusted, err := gcfg.TrustedValidatorKeys()
	if err != nil {
		clog.Error("MAIN", "decode trusted validators:", err)
		os.Exit(1)
	}
	candidateBlock, err := os.ReadFile(gcfg.CandidatePath)
	if err != nil {
		clog.Error("MAIN", "read genesis candidate:", err)
		os.Exit(1)
	}
	candidate := genesis.EncodeCandidate(candidateBlock, uint32(gcfg.Threshold))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ceremony := genesis.New(genesis.Config{
		Candidate:         candidate,
		Validators:        trusted,
		Threshold:         gcfg.Threshold,
		Deadline:          time.Now().Add(gcfg.Duration),
		BroadcastInterval: gcfg.BroadcastInterval,
	})
	var lastApproved genesis.LastApprovedSlot

	gossip := grpcx.NewGossip(func(tag string, payload []byte) {
		switch tag {
		case "BlockApproval":
			_, approval, err := genesis.DecodeBlockApproval(payload)
			if err != nil {
				clog.Warn("MAIN", "dropping malformed BlockApproval:", err)
				return
			}
			if err := ceremony.AddApproval(approval); err != nil {
				clog.Warn("MAIN", "rejected gossiped approval:", err)
				return
			}
			metrics.IncrementCounter("genesis")
		default:
			clog.Debug("MAIN", "ignoring gossip tag", tag)
		}
	})
	server := grpc.NewServer()
	grpcx.RegisterGossipServer(server, gossip)

	lis, err := newListener(*listenAddr)
	if err != nil {
		clog.Error("MAIN", "listen:", err)
		os.Exit(1)
	}
	go func() {
		if err := server.Serve(lis); err != nil {
			clog.Warn("MAIN", "grpc server stopped:", err)
		}
	}()
	defer server.GracefulStop()

	collaborators := collab.Collaborators{
		BlockStorePut:           blocks.Put,
		BlockStoreGet:           blocks.Get,
		BroadcastStreamToPeers:  gossip.StreamToPeers,
		ClockNowMillis:          genesis.SystemClock{}.NowMillis,
		MetricsIncrementCounter: metrics.IncrementCounter,
	}

	go func() {
		err := ceremony.Run(ctx, gcfg.BroadcastInterval, func(payload []byte) error {
			metrics.IncrementCounter("genesis_broadcast")
			return collaborators.BroadcastStreamToPeers("UnapprovedBlock", payload)
		})
		if err != nil {
			clog.Warn("MAIN", "genesis ceremony loop exited:", err)
		}
	}()

	result, err := ceremony.Wait(ctx)
	if err != nil {
		clog.Warn("MAIN", "shutting down before genesis approval completed:", err)
		return
	}
	if err := lastApproved.Set(result); err != nil {
		clog.Warn("MAIN", "last-approved slot already set by a peer:", err)
	}
	clog.Info("MAIN", "genesis approved with", len(result.Approvals), "signatures")
	_ = collaborators.BroadcastStreamToPeers("ApprovedBlock", genesis.EncodeApprovedBlock(result))

	<-ctx.Done()
	clog.Info("MAIN", "shutting down")
}
