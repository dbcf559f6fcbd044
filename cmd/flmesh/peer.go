package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/api"
	"github.com/fedactor/flmesh/internal/classifier"
	"github.com/fedactor/flmesh/internal/gossip"
	"github.com/fedactor/flmesh/internal/persistence"
	"github.com/fedactor/flmesh/internal/storage"
	"github.com/fedactor/flmesh/pkg/config"
)

func peerCmd() *cobra.Command {
	var listenAddr, peerID string
	var seeds []string
	var inputDim, numClasses, numExamples int

	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Run one autonomous gossip-protocol federated learning peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Transport.ListenAddress = listenAddr
			}
			if peerID == "" {
				return fmt.Errorf("peer: --id is required")
			}

			log, err := buildLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer log.Sync()

			store, err := storage.NewBadgerStore(cfg.Storage.Path, cfg.Storage.Sync)
			if err != nil {
				return fmt.Errorf("peer: open storage: %w", err)
			}
			defer store.Close()
			rounds := persistence.NewGossipStore(store)

			sys := actor.NewActorSystem(log, tlsConfigFrom(cfg.Transport))
			sys.AdvertiseHost = cfg.Transport.AdvertiseHost
			sys.MailboxCapacity = cfg.Actor.MailboxCapacity
			if _, err := sys.StartServer(cfg.Transport.ListenAddress); err != nil {
				return fmt.Errorf("peer: bind: %w", err)
			}

			seedAddrs := make([]actor.RemoteAddr, 0, len(seeds))
			for _, s := range seeds {
				addr, err := parseRemoteAddr(s)
				if err != nil {
					return err
				}
				seedAddrs = append(seedAddrs, addr)
			}

			var reporterAddr *actor.RemoteAddr
			if cfg.Gossip.ReporterAddr != "" {
				addr, err := parseRemoteAddr(cfg.Gossip.ReporterAddr)
				if err != nil {
					return err
				}
				reporterAddr = &addr
			}

			gcfg := gossip.Config{
				PeerID:              peerID,
				Fanout:              cfg.Gossip.Fanout,
				GossipInterval:      cfg.Gossip.GossipInterval,
				LocalEpochs:         cfg.Gossip.LocalEpochs,
				BatchSize:           cfg.Gossip.BatchSize,
				ConvergenceEps:      cfg.Gossip.ConvergenceEps,
				ConvergencePatience: cfg.Gossip.ConvergencePatience,
				MaxRounds:           cfg.Gossip.MaxRounds,
				SeedPeers:           seedAddrs,
				ReporterAddr:        reporterAddr,
			}

			examples := syntheticExamples(numExamples, inputDim, numClasses, int64(len(peerID)+1))
			model := classifier.New(inputDim, numClasses, 0.1)
			p := gossip.NewPeer(gcfg, examples, model, rounds, log)
			sys.ActorOf("peer", func() actor.Actor { return p })

			if cfg.Status.Enabled {
				srv := api.NewServer(log, nil, nil, p, nil)
				go func() {
					if err := srv.Start(cfg.Status.ListenAddress); err != nil {
						log.Warn("status endpoint stopped", zap.Error(err))
					}
				}()
				defer srv.Stop()
			}

			host, port := sys.ListenAddr()
			log.Info("gossip peer running", zap.String("peer_id", peerID), zap.String("host", host), zap.Int("port", port))
			waitForSignal()
			sys.Shutdown()
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "override transport.listen_address")
	cmd.Flags().StringVar(&peerID, "id", "", "this peer's identity (required)")
	cmd.Flags().StringSliceVar(&seeds, "seeds", nil, "seed peer host:port list")
	cmd.Flags().IntVar(&inputDim, "input-dim", 8, "classifier input dimension")
	cmd.Flags().IntVar(&numClasses, "num-classes", 3, "classifier class count")
	cmd.Flags().IntVar(&numExamples, "num-examples", 200, "synthetic local dataset size")
	return cmd
}
