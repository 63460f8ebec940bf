package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/distnode/config"
	"github.com/vadiminshakov/distnode/core/broadcast"
	"github.com/vadiminshakov/distnode/core/counter"
	"github.com/vadiminshakov/distnode/core/node"
	"github.com/vadiminshakov/distnode/io/metrics"
)

func main() {
	conf, err := config.Get()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// stdout carries the protocol, everything else goes to stderr
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(conf.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, conf.MetricsAddr); err != nil {
				log.Errorf("metrics: %v", err)
			}
		}()
	}

	if err := run(ctx, conf, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("node stopped: %v", err)
	}
}

// run executes the configured workload until the input ends or ctx is done.
func run(ctx context.Context, conf *config.Config, in io.Reader, out io.Writer) error {
	log.WithField("workload", conf.Workload).Info("starting node")

	var err error
	switch conf.Workload {
	case config.WorkloadBroadcast:
		err = node.New[broadcast.Retransmit](broadcast.New(conf.GossipInterval)).Run(ctx, in, out)
	case config.WorkloadCounter:
		proto := counter.New(counter.Config{
			Key:             conf.Key,
			StoreNode:       conf.StoreNode,
			RefreshInterval: conf.RefreshInterval,
		})
		err = node.New[counter.Refresh](proto).Run(ctx, in, out)
	default:
		return errors.Errorf("unknown workload %q", conf.Workload)
	}

	if errors.Is(err, context.Canceled) {
		log.Info("shutting down")
		return nil
	}
	return err
}
