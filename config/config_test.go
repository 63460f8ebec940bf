package config

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	conf, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, &Config{
		Workload:        WorkloadBroadcast,
		LogLevel:        log.InfoLevel,
		GossipInterval:  100 * time.Millisecond,
		RefreshInterval: 500 * time.Millisecond,
		StoreNode:       "seq-kv",
		Key:             "reddit",
	}, conf)
}

func TestParse_Flags(t *testing.T) {
	conf, err := Parse([]string{
		"-workload", "counter",
		"-loglevel", "debug",
		"-metrics", "127.0.0.1:9100",
		"-gossip-interval", "50ms",
		"-refresh-interval", "1s",
		"-store", "lin-kv",
		"-key", "total",
	})
	require.NoError(t, err)
	require.Equal(t, WorkloadCounter, conf.Workload)
	require.Equal(t, log.DebugLevel, conf.LogLevel)
	require.Equal(t, "127.0.0.1:9100", conf.MetricsAddr)
	require.Equal(t, 50*time.Millisecond, conf.GossipInterval)
	require.Equal(t, time.Second, conf.RefreshInterval)
	require.Equal(t, "lin-kv", conf.StoreNode)
	require.Equal(t, "total", conf.Key)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string][]string{
		"workload":     {"-workload", "echo"},
		"log level":    {"-loglevel", "loud"},
		"interval":     {"-gossip-interval", "0s"},
		"empty store":  {"-store", ""},
		"unknown flag": {"-role", "coordinator"},
		"bad duration": {"-refresh-interval", "often"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(args)
			require.Error(t, err)
		})
	}
}
