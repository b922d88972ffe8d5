package main

import (
	"context"
	"log/slog"

	"pactline/internal/agreement"
	"pactline/internal/audit"
	"pactline/internal/notify"
	"pactline/internal/platform/config"
	"pactline/internal/store/memory"
	"pactline/internal/store/postgres"
	httptransport "pactline/internal/transport/http"
	"pactline/internal/verification"
)

// stores are the port implementations the services run on, all backed by
// the same database so a commit spans every table.
type stores struct {
	agreements    agreement.Store
	verifications verification.Store
	chains        verification.ChainSource
	audit         audit.Store
	outbox        notify.Outbox
	checks        map[string]httptransport.HealthCheck
	shutdown      func()
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (*stores, error) {
	if cfg.Postgres.DSN == "" {
		log.Warn("no database configured, state is kept in memory")
		db := memory.New()
		return &stores{
			agreements:    db.Agreements(),
			verifications: db.Verifications(),
			chains:        db.Chains(),
			audit:         db.Audit(),
			outbox:        db.Outbox(),
			checks:        map[string]httptransport.HealthCheck{},
			shutdown:      func() {},
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.Postgres, postgres.WithTxTimeout(cfg.Ledger.Timeout))
	if err != nil {
		return nil, err
	}
	return &stores{
		agreements:    db.Agreements(),
		verifications: db.Verifications(),
		chains:        db.Chains(),
		audit:         db.Audit(),
		outbox:        db.Outbox(),
		checks:        map[string]httptransport.HealthCheck{"postgres": db.Health},
		shutdown:      db.Close,
	}, nil
}
