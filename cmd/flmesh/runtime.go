package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/pkg/config"
)

// tlsConfigFrom builds the actor transport's TLS material from a loaded
// TransportConfig, or nil when TLS is disabled — the "optional TLS layer"
// of §4.3.
func tlsConfigFrom(cfg config.TransportConfig) *actor.TLSConfig {
	if !cfg.TLSEnabled {
		return nil
	}
	return &actor.TLSConfig{
		ServerCert: cfg.CertFile,
		ServerKey:  cfg.KeyFile,
		ClientCA:   cfg.CAFile,
	}
}

// waitForSignal blocks until SIGINT or SIGTERM, the point at which every
// role process begins its clean shutdown.
func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
}
