package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/classifier"
	"github.com/fedactor/flmesh/internal/orchestrated"
	"github.com/fedactor/flmesh/pkg/config"
)

func workerCmd() *cobra.Command {
	var listenAddr, coordinatorAddr, region string
	var inputDim, numClasses, numExamples int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run one orchestrated-protocol training worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Transport.ListenAddress = listenAddr
			}
			if coordinatorAddr == "" {
				return fmt.Errorf("worker: --coordinator is required")
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

			sys := actor.NewActorSystem(log, tlsConfigFrom(cfg.Transport))
			sys.AdvertiseHost = cfg.Transport.AdvertiseHost
			sys.MailboxCapacity = cfg.Actor.MailboxCapacity
			if _, err := sys.StartServer(cfg.Transport.ListenAddress); err != nil {
				return fmt.Errorf("worker: bind: %w", err)
			}

			examples := syntheticExamples(numExamples, inputDim, numClasses, int64(len(region)+1))
			model := classifier.New(inputDim, numClasses, 0.1)
			w := orchestrated.NewWorker(region, examples, cfg.Coordinator.LocalEpochs, cfg.Coordinator.BatchSize, model, coordAddr, log)
			sys.ActorOf(fmt.Sprintf("worker-%s", region), func() actor.Actor { return w })

			host, port := sys.ListenAddr()
			log.Info("worker running", zap.String("region", region), zap.String("host", host), zap.Int("port", port))
			waitForSignal()
			sys.Shutdown()
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "override transport.listen_address")
	cmd.Flags().StringVar(&coordinatorAddr, "coordinator", "", "coordinator host:port (required)")
	cmd.Flags().StringVar(&region, "region", "region-1", "this worker's region id")
	cmd.Flags().IntVar(&inputDim, "input-dim", 8, "classifier input dimension")
	cmd.Flags().IntVar(&numClasses, "num-classes", 3, "classifier class count")
	cmd.Flags().IntVar(&numExamples, "num-examples", 200, "synthetic local dataset size")
	return cmd
}
