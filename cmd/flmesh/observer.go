package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/api"
	"github.com/fedactor/flmesh/internal/gossip"
	"github.com/fedactor/flmesh/pkg/config"
)

func observerCmd() *cobra.Command {
	var listenAddr, reporterID string

	cmd := &cobra.Command{
		Use:   "observer",
		Short: "Run the passive gossip-network observer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Transport.ListenAddress = listenAddr
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
				return fmt.Errorf("observer: bind: %w", err)
			}

			rcfg := gossip.ReporterConfig{ReporterID: reporterID}
			r := gossip.NewReporter(rcfg, log)
			sys.ActorOf("reporter", func() actor.Actor { return r })

			if cfg.Status.Enabled {
				srv := api.NewServer(log, nil, nil, nil, r)
				go func() {
					if err := srv.Start(cfg.Status.ListenAddress); err != nil {
						log.Warn("status endpoint stopped", zap.Error(err))
					}
				}()
				defer srv.Stop()
			}

			host, port := sys.ListenAddr()
			log.Info("observer running", zap.String("host", host), zap.Int("port", port))
			waitForSignal()
			sys.Shutdown()
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "override transport.listen_address")
	cmd.Flags().StringVar(&reporterID, "id", "reporter-1", "this observer's identity")
	return cmd
}
