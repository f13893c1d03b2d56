// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command enrbridge runs a single ENR Bridge node with a no-op gossip
// publisher, driving its own periodic maintenance tick. It exists to
// demonstrate wiring, not as a deployable gossip participant: the
// transport fabric is an external collaborator per spec.md §1.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vudo/enr-bridge/bridge"
	"github.com/vudo/enr-bridge/gradient"
	"github.com/vudo/enr-bridge/ids"
	"github.com/vudo/enr-bridge/log"
	"github.com/vudo/enr-bridge/metrics"
)

// discardPublisher is the out-of-scope gossip fabric's stand-in: it logs
// and drops, so this binary can run standalone.
type discardPublisher struct {
	log log.Logger
}

func (p discardPublisher) Publish(topic string, payload []byte) error {
	p.log.Debug("publish", "topic", topic, "bytes", len(payload))
	return nil
}

func main() {
	region := flag.String("region", "r1", "region id this node belongs to")
	tick := flag.Duration("tick", bridge.MaintenanceInterval, "maintenance tick interval")
	flag.Parse()

	logger := log.NewNoOp()
	self := ids.GenerateTestID()

	m := metrics.New(prometheus.NewRegistry())
	b := bridge.New(self, discardPublisher{log: logger}, m, bridge.WithLogger(logger))

	if err := b.Gradient.BroadcastLocal(gradient.ResourceGradient{
		CPUAvailable: 1.0, MemoryAvailable: 1.0, BandwidthAvailable: 1.0, StorageAvailable: 1.0,
	}); err != nil {
		logger.Warn("initial gradient broadcast failed", "error", err)
	}

	if _, err := b.Election.Trigger(*region); err != nil {
		logger.Warn("initial election trigger failed", "error", err)
	}

	ticker := time.NewTicker(*tick)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case now := <-ticker.C:
			b.Maintenance(now)
		case <-sig:
			_ = b.Snapshot()
			return
		}
	}
}
