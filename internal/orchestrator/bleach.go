package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"shared-state/internal/reactor"
)

// bleachTickInterval matches the sync loop's cadence (spec.md §4.9
// item 3: "once per second").
const bleachTickInterval = 1

// bleachLoop wakes once per second, reloads type configs, and ages
// every registered type by the wall-clock seconds elapsed since the
// previous completed bleach, so aging stays accurate even if the
// process fell behind (spec.md §4.9 item 3, §4.8).
func (o *Orchestrator) bleachLoop(ctx context.Context) error {
	timer, err := reactor.NewTimer(o.r)
	if err != nil {
		return fmt.Errorf("orchestrator: bleach timer: %w", err)
	}
	defer timer.Close()

	last := o.clock.Now()
	for {
		if _, err := timer.Wait(ctx, bleachTickInterval, 0); err != nil {
			return err
		}

		now := o.clock.Now()
		elapsed := int64(now.Sub(last).Seconds())
		if elapsed <= 0 {
			continue
		}

		if err := o.store.Load(); err != nil {
			o.log.WithError(err).Warn("orchestrator: bleach loop reload config failed")
			continue
		}
		// Advance by whole seconds only, so the fractional remainder
		// counts toward the next pass.
		last = last.Add(time.Duration(elapsed) * time.Second)

		for _, cfg := range o.store.Configs() {
			removed, err := o.store.Bleach(cfg.Name, elapsed)
			if err != nil {
				o.log.WithError(err).WithField("type", cfg.Name).Warn("orchestrator: bleach failed")
				continue
			}
			if removed > 0 {
				o.log.WithFields(logrus.Fields{
					"type": cfg.Name, "removed": removed,
				}).Debug("orchestrator: bleach removed expired entries")
			}
			if o.cfg.Metrics != nil {
				o.cfg.Metrics.ObserveBleach(removed)
			}
		}
	}
}
