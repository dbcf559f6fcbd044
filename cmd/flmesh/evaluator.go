package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/classifier"
	"github.com/fedactor/flmesh/internal/orchestrated"
	"github.com/fedactor/flmesh/internal/persistence"
	"github.com/fedactor/flmesh/internal/storage"
	"github.com/fedactor/flmesh/pkg/config"
)

func evaluatorCmd() *cobra.Command {
	var listenAddr, coordinatorAddr string
	var inputDim, numClasses, numExamples int

	cmd := &cobra.Command{
		Use:   "evaluator",
		Short: "Run the orchestrated protocol's held-out evaluator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Transport.ListenAddress = listenAddr
			}
			if coordinatorAddr == "" {
				return fmt.Errorf("evaluator: --coordinator is required")
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
				return fmt.Errorf("evaluator: open storage: %w", err)
			}
			defer store.Close()
			rounds := persistence.NewRoundStore(store)

			sys := actor.NewActorSystem(log, tlsConfigFrom(cfg.Transport))
			sys.AdvertiseHost = cfg.Transport.AdvertiseHost
			sys.MailboxCapacity = cfg.Actor.MailboxCapacity
			if _, err := sys.StartServer(cfg.Transport.ListenAddress); err != nil {
				return fmt.Errorf("evaluator: bind: %w", err)
			}

			testExamples := syntheticExamples(numExamples, inputDim, numClasses, 99)
			model := classifier.New(inputDim, numClasses, 0.1)
			eval := orchestrated.NewEvaluator(testExamples, model, coordAddr, rounds, log)
			sys.ActorOf("evaluator", func() actor.Actor { return eval })

			host, port := sys.ListenAddr()
			log.Info("evaluator running", zap.String("host", host), zap.Int("port", port))
			waitForSignal()
			sys.Shutdown()
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "override transport.listen_address")
	cmd.Flags().StringVar(&coordinatorAddr, "coordinator", "", "coordinator host:port (required)")
	cmd.Flags().IntVar(&inputDim, "input-dim", 8, "classifier input dimension")
	cmd.Flags().IntVar(&numClasses, "num-classes", 3, "classifier class count")
	cmd.Flags().IntVar(&numExamples, "num-examples", 100, "synthetic held-out dataset size")
	return cmd
}
