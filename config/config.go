package config

import (
	"flag"
	"io"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/distnode/core/broadcast"
	"github.com/vadiminshakov/distnode/core/counter"
	"github.com/vadiminshakov/distnode/core/seqkv"
)

const (
	WorkloadBroadcast = "broadcast"
	WorkloadCounter   = "counter"
)

type Config struct {
	Workload        string
	LogLevel        log.Level
	MetricsAddr     string
	GossipInterval  time.Duration
	RefreshInterval time.Duration
	StoreNode       string
	Key             string
}

// Get creates configuration from command-line arguments. Every flag is optional.
func Get() (*Config, error) {
	return parse(flag.CommandLine, nil, true)
}

// Parse builds the configuration from args without touching the global flag set.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("distnode", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return parse(fs, args, false)
}

func parse(fs *flag.FlagSet, args []string, global bool) (*Config, error) {
	workload := fs.String("workload", WorkloadBroadcast, "protocol to run (broadcast or counter)")
	loglevel := fs.String("loglevel", "info", "log level, logs are written to stderr")
	metricsAddr := fs.String("metrics", "", "serve prometheus metrics on this address, disabled if empty")
	gossipInterval := fs.Duration("gossip-interval", broadcast.DefaultInterval, "retransmission interval for unacknowledged gossip")
	refreshInterval := fs.Duration("refresh-interval", counter.DefaultRefreshInterval, "interval of counter reads against the store")
	store := fs.String("store", seqkv.DefaultNode, "node id of the sequential key-value store")
	key := fs.String("key", counter.DefaultKey, "store key holding the counter")

	if global {
		flag.Parse()
	} else if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "parse flags")
	}

	if *workload != WorkloadBroadcast && *workload != WorkloadCounter {
		return nil, errors.Errorf("unknown workload %q", *workload)
	}
	level, err := log.ParseLevel(*loglevel)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	if *gossipInterval <= 0 || *refreshInterval <= 0 {
		return nil, errors.New("intervals must be positive")
	}
	if *store == "" || *key == "" {
		return nil, errors.New("store and key cannot be empty")
	}

	return &Config{
		Workload:        *workload,
		LogLevel:        level,
		MetricsAddr:     *metricsAddr,
		GossipInterval:  *gossipInterval,
		RefreshInterval: *refreshInterval,
		StoreNode:       *store,
		Key:             *key,
	}, nil
}
