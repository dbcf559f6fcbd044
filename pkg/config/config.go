package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for one flmesh process, whichever role
// (coordinator, aggregator, worker, evaluator, gossip peer, observer) it
// runs.
type Config struct {
	Actor       ActorConfig       `mapstructure:"actor"`
	Transport   TransportConfig   `mapstructure:"transport"`
	Supervisor  SupervisorConfig  `mapstructure:"supervisor"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Gossip      GossipConfig      `mapstructure:"gossip"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Status      StatusConfig      `mapstructure:"status"`
}

// ActorConfig tunes the local actor runtime.
type ActorConfig struct {
	MailboxCapacity   int           `mapstructure:"mailbox_capacity"`
	AskTimeout        time.Duration `mapstructure:"ask_timeout"`
}

// TransportConfig tunes the remote actor transport.
type TransportConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
	AdvertiseHost string `mapstructure:"advertise_host"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	CertFile      string `mapstructure:"cert_file"`
	KeyFile       string `mapstructure:"key_file"`
	CAFile        string `mapstructure:"ca_file"`
}

// SupervisorConfig tunes the health-check supervision loop.
type SupervisorConfig struct {
	Warmup           time.Duration `mapstructure:"warmup"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
}

// CoordinatorConfig tunes the orchestrated round-based aggregation
// pipeline.
type CoordinatorConfig struct {
	NumWorkers       int     `mapstructure:"num_workers"`
	LocalEpochs      int     `mapstructure:"local_epochs"`
	BatchSize        int     `mapstructure:"batch_size"`
	Mu               float64 `mapstructure:"mu"`
	AutoStart        bool    `mapstructure:"auto_start"`
	CoordinatorAddr  string  `mapstructure:"coordinator_addr"`
}

// GossipConfig tunes the autonomous peer-to-peer gossip protocol.
type GossipConfig struct {
	PeerID              string        `mapstructure:"peer_id"`
	Fanout              int           `mapstructure:"fanout"`
	GossipInterval      time.Duration `mapstructure:"gossip_interval"`
	LocalEpochs         int           `mapstructure:"local_epochs"`
	BatchSize           int           `mapstructure:"batch_size"`
	ConvergenceEps      float64       `mapstructure:"convergence_eps"`
	ConvergencePatience int           `mapstructure:"convergence_patience"`
	MaxRounds           int           `mapstructure:"max_rounds"`
	SeedPeers           []string      `mapstructure:"seed_peers"`
	ReporterAddr        string        `mapstructure:"reporter_addr"`
}

// StorageConfig tunes the badger-backed persistence layer.
type StorageConfig struct {
	Path string `mapstructure:"path"`
	Sync bool   `mapstructure:"sync"`
}

// LoggingConfig tunes zap's output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// StatusConfig tunes the optional read-only HTTP status endpoint (§6).
// It carries no control authority over any actor.
type StatusConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ListenAddress string `mapstructure:"listen_address"`
}

// DefaultConfig returns a configuration usable as-is for a single-process
// local run.
func DefaultConfig() *Config {
	return &Config{
		Actor: ActorConfig{
			MailboxCapacity: 1000,
			AskTimeout:      3 * time.Second,
		},
		Transport: TransportConfig{
			ListenAddress: "0.0.0.0:0",
			AdvertiseHost: "localhost",
			TLSEnabled:    false,
		},
		Supervisor: SupervisorConfig{
			Warmup:           time.Second,
			Interval:         5 * time.Second,
			Timeout:          3 * time.Second,
			FailureThreshold: 2,
		},
		Coordinator: CoordinatorConfig{
			NumWorkers:  1,
			LocalEpochs: 1,
			BatchSize:   32,
			Mu:          0.0,
			AutoStart:   true,
		},
		Gossip: GossipConfig{
			Fanout:              2,
			GossipInterval:      3 * time.Second,
			LocalEpochs:         1,
			BatchSize:           32,
			ConvergenceEps:      1e-3,
			ConvergencePatience: 3,
			SeedPeers:           []string{},
		},
		Storage: StorageConfig{
			Path: "./data",
			Sync: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Status: StatusConfig{
			Enabled:       false,
			ListenAddress: "127.0.0.1:8081",
		},
	}
}

// LoadConfig loads configuration from file and environment variables,
// falling back to DefaultConfig for anything unset.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()

	v.SetDefault("actor.mailbox_capacity", cfg.Actor.MailboxCapacity)
	v.SetDefault("actor.ask_timeout", cfg.Actor.AskTimeout)
	v.SetDefault("transport.listen_address", cfg.Transport.ListenAddress)
	v.SetDefault("transport.advertise_host", cfg.Transport.AdvertiseHost)
	v.SetDefault("transport.tls_enabled", cfg.Transport.TLSEnabled)
	v.SetDefault("supervisor.warmup", cfg.Supervisor.Warmup)
	v.SetDefault("supervisor.interval", cfg.Supervisor.Interval)
	v.SetDefault("supervisor.timeout", cfg.Supervisor.Timeout)
	v.SetDefault("supervisor.failure_threshold", cfg.Supervisor.FailureThreshold)
	v.SetDefault("coordinator.num_workers", cfg.Coordinator.NumWorkers)
	v.SetDefault("coordinator.local_epochs", cfg.Coordinator.LocalEpochs)
	v.SetDefault("coordinator.batch_size", cfg.Coordinator.BatchSize)
	v.SetDefault("coordinator.mu", cfg.Coordinator.Mu)
	v.SetDefault("coordinator.auto_start", cfg.Coordinator.AutoStart)
	v.SetDefault("gossip.fanout", cfg.Gossip.Fanout)
	v.SetDefault("gossip.gossip_interval", cfg.Gossip.GossipInterval)
	v.SetDefault("gossip.local_epochs", cfg.Gossip.LocalEpochs)
	v.SetDefault("gossip.batch_size", cfg.Gossip.BatchSize)
	v.SetDefault("gossip.convergence_eps", cfg.Gossip.ConvergenceEps)
	v.SetDefault("gossip.convergence_patience", cfg.Gossip.ConvergencePatience)
	v.SetDefault("gossip.max_rounds", cfg.Gossip.MaxRounds)
	v.SetDefault("gossip.seed_peers", cfg.Gossip.SeedPeers)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("storage.sync", cfg.Storage.Sync)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)
	v.SetDefault("status.enabled", cfg.Status.Enabled)
	v.SetDefault("status.listen_address", cfg.Status.ListenAddress)

	v.SetEnvPrefix("FLMESH")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return cfg, nil
}
