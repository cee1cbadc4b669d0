package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/pricing"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/registry"
)

const registrySyncInterval = 30 * time.Second

// startRegistrySync keeps this replica's in-memory state aligned with the
// rest of the fleet. Pricing overrides written through the admin API on
// another replica land in Postgres and are picked up here, then pushed
// back out to the shared Redis rows; health probes clear failure trackers
// for adapters that recovered, so breakers close again without a restart.
func startRegistrySync(ctx context.Context, reg *registry.Registry, pm *pricing.Manager, cache *pricing.Cache, persisted bool, logger *zap.Logger) {
	ticker := time.NewTicker(registrySyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("registry sync stopped")
			return
		case <-ticker.C:
			reg.ProbeHealth()
			if !persisted {
				continue
			}
			if err := pm.LoadDatabaseOverrides(ctx); err != nil {
				logger.Warn("registry sync: failed to reload pricing overrides", zap.Error(err))
				continue
			}
			if cache != nil {
				if err := cache.Refresh(ctx); err != nil {
					logger.Warn("registry sync: failed to refresh pricing cache", zap.Error(err))
				}
			}
		}
	}
}
