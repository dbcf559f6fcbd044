package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/orchestrated"
	"github.com/fedactor/flmesh/internal/persistence"
	"github.com/fedactor/flmesh/internal/storage"
	"github.com/fedactor/flmesh/pkg/config"
)

func aggregatorCmd() *cobra.Command {
	var listenAddr, coordinatorAddr string

	cmd := &cobra.Command{
		Use:   "aggregator",
		Short: "Run the orchestrated protocol's FedAvg aggregator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Transport.ListenAddress = listenAddr
			}
			if coordinatorAddr == "" {
				return fmt.Errorf("aggregator: --coordinator is required")
			}
			coordAddr, err := parseRemoteAddr(coordinatorAddr)
			if err != nil {
				return err
			}

			log, err := buildLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer log.Sync()

			store, err := storage.NewBadgerStore(cfg.Storage.Path, cfg.Storage.Sync)
			if err != nil {
				return fmt.Errorf("aggregator: open storage: %w", err)
			}
			defer store.Close()
			rounds := persistence.NewRoundStore(store)

			sys := actor.NewActorSystem(log, tlsConfigFrom(cfg.Transport))
			sys.AdvertiseHost = cfg.Transport.AdvertiseHost
			sys.MailboxCapacity = cfg.Actor.MailboxCapacity
			if _, err := sys.StartServer(cfg.Transport.ListenAddress); err != nil {
				return fmt.Errorf("aggregator: bind: %w", err)
			}

			agg := orchestrated.NewAggregator(coordAddr, rounds, log)
			sys.ActorOf("aggregator", func() actor.Actor { return agg })

			host, port := sys.ListenAddr()
			log.Info("aggregator running", zap.String("host", host), zap.Int("port", port))
			waitForSignal()
			sys.Shutdown()
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "override transport.listen_address")
	cmd.Flags().StringVar(&coordinatorAddr, "coordinator", "", "coordinator host:port (required)")
	return cmd
}
