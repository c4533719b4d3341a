package lifecycle

import (
	"context"
	"log/slog"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
	"github.com/ashita-ai/scratchnotebook/internal/config"
)

// RunFirstEnableMigration implements spec §4.A's one-time migration: if
// auth is enabled and pads exist under the implicit default tenant, they
// are reassigned to the first configured tenant (SCRATCH_AUTH_TOKENS
// order) in a single transaction, and a structured audit record is
// emitted. A no-op when auth is disabled, no tenants are configured, or
// no pads exist under the default tenant.
func RunFirstEnableMigration(ctx context.Context, store catalog.Store, cfg config.Config, logger *slog.Logger) error {
	if !cfg.EnableAuth {
		return nil
	}
	tenants := cfg.ConfiguredTenants()
	if len(tenants) == 0 {
		return nil
	}
	target := tenants[0]
	if target == cfg.DefaultTenant {
		return nil
	}

	existing, err := store.Tenants(ctx)
	if err != nil {
		return err
	}
	if !containsTenant(existing, cfg.DefaultTenant) {
		return nil
	}

	count, err := store.MigrateTenant(ctx, cfg.DefaultTenant, target)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	logger.Info("tenant.migration.completed",
		"from", cfg.DefaultTenant, "to", target, "pad_count", count)
	return nil
}

func containsTenant(tenants []string, want string) bool {
	for _, t := range tenants {
		if t == want {
			return true
		}
	}
	return false
}
