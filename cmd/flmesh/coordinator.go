package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/api"
	"github.com/fedactor/flmesh/internal/classifier"
	"github.com/fedactor/flmesh/internal/orchestrated"
	"github.com/fedactor/flmesh/pkg/config"
)

func coordinatorCmd() *cobra.Command {
	var listenAddr string
	var numWorkers, numRounds int
	var inputDim, numClasses int

	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Run the orchestrated round-based aggregation coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Transport.ListenAddress = listenAddr
			}
			if numWorkers > 0 {
				cfg.Coordinator.NumWorkers = numWorkers
			}

			log, err := buildLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer log.Sync()

			sys := actor.NewActorSystem(log, tlsConfigFrom(cfg.Transport))
			sys.AdvertiseHost = cfg.Transport.AdvertiseHost
			sys.MailboxCapacity = cfg.Actor.MailboxCapacity
			if _, err := sys.StartServer(cfg.Transport.ListenAddress); err != nil {
				return fmt.Errorf("coordinator: bind: %w", err)
			}

			model := classifier.New(inputDim, numClasses, 0.1)
			coord := orchestrated.NewCoordinator(cfg.Coordinator.NumWorkers, numRounds, cfg.Coordinator.AutoStart, cfg.Coordinator.Mu, model, log)
			sys.ActorOf("coordinator", func() actor.Actor { return coord })

			if cfg.Status.Enabled {
				srv := api.NewServer(log, nil, coord, nil, nil)
				go func() {
					if err := srv.Start(cfg.Status.ListenAddress); err != nil {
						log.Warn("status endpoint stopped", zap.Error(err))
					}
				}()
				defer srv.Stop()
			}

			host, port := sys.ListenAddr()
			log.Info("coordinator running", zap.String("host", host), zap.Int("port", port))
			waitForSignal()
			sys.Shutdown()
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "override transport.listen_address")
	cmd.Flags().IntVar(&numWorkers, "workers", 0, "override coordinator.num_workers")
	cmd.Flags().IntVar(&numRounds, "rounds", 5, "number of federated rounds to run")
	cmd.Flags().IntVar(&inputDim, "input-dim", 8, "classifier input dimension")
	cmd.Flags().IntVar(&numClasses, "num-classes", 3, "classifier class count")
	return cmd
}
