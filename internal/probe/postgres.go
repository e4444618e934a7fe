package probe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ConnectBest/failover-orchestrator/internal/failover"
	"github.com/ConnectBest/failover-orchestrator/internal/logging"
)

// RecoveryState reports whether a relational node accepts writes or is
// applying replication
type RecoveryState string

const (
	StatePrimary RecoveryState = "primary"
	StateStandby RecoveryState = "standby"
	StateUnknown RecoveryState = "unknown"
)

// Relational is the probe surface the coordinator drives. All operations
// return failures as values; none of them panic or retry internally.
type Relational interface {
	CheckReachable(ctx context.Context, region failover.Region) *failover.Error
	RecoveryState(ctx context.Context, region failover.Region) (RecoveryState, *failover.Error)
	ReplicationLag(ctx context.Context, region failover.Region) (float64, *failover.Error)
	Promote(ctx context.Context, region failover.Region) *failover.Error
	ValidateWrite(ctx context.Context, region failover.Region, token string) *failover.Error
	Addr(region failover.Region) string
}

// Target names one region's relational endpoint
type Target struct {
	Addr string // host:port, published in routing records
	DSN  string
}

const (
	defaultOpTimeout   = 500 * time.Millisecond
	promotePollEvery   = 100 * time.Millisecond
	promotePollTimeout = 3 * time.Second
)

// PostgresProbe inspects and promotes Postgres nodes. It owns one lazily
// connected handle per configured endpoint, acquired at startup and released
// by Close.
type PostgresProbe struct {
	targets   map[failover.Region]Target
	handles   map[failover.Region]*sql.DB
	opTimeout time.Duration
	logger    *logging.Logger
}

// NewPostgresProbe opens a handle per configured target. sql.Open does not
// dial, so construction cannot block on an unreachable endpoint.
func NewPostgresProbe(targets map[failover.Region]Target, logger *logging.Logger) (*PostgresProbe, error) {
	handles := make(map[failover.Region]*sql.DB, len(targets))
	for region, target := range targets {
		db, err := sql.Open("pgx", target.DSN)
		if err != nil {
			return nil, fmt.Errorf("open handle for region %s: %w", region, err)
		}
		db.SetMaxOpenConns(2)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(5 * time.Minute)
		handles[region] = db
	}
	return &PostgresProbe{
		targets:   targets,
		handles:   handles,
		opTimeout: defaultOpTimeout,
		logger:    logger,
	}, nil
}

// Close releases all database handles
func (p *PostgresProbe) Close() error {
	var firstErr error
	for _, db := range p.handles {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Addr returns the host:port of the region's relational endpoint
func (p *PostgresProbe) Addr(region failover.Region) string {
	return p.targets[region].Addr
}

func (p *PostgresProbe) handle(region failover.Region) (*sql.DB, *failover.Error) {
	db, ok := p.handles[region]
	if !ok {
		return nil, failover.NewError(failover.KindUnknownRegion, "no relational endpoint configured for region %s", region)
	}
	return db, nil
}

func (p *PostgresProbe) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.opTimeout)
}

// CheckReachable verifies connection, authentication and a trivial round-trip
func (p *PostgresProbe) CheckReachable(ctx context.Context, region failover.Region) *failover.Error {
	db, ferr := p.handle(region)
	if ferr != nil {
		return ferr
	}

	opCtx, cancel := p.opContext(ctx)
	defer cancel()

	var one int
	if err := db.QueryRowContext(opCtx, "SELECT 1").Scan(&one); err != nil {
		return classifyConnErr(region, err)
	}
	return nil
}

// RecoveryState reports whether the node is a primary (accepting writes) or a
// standby (applying replication)
func (p *PostgresProbe) RecoveryState(ctx context.Context, region failover.Region) (RecoveryState, *failover.Error) {
	db, ferr := p.handle(region)
	if ferr != nil {
		return StateUnknown, ferr
	}

	opCtx, cancel := p.opContext(ctx)
	defer cancel()

	var inRecovery bool
	if err := db.QueryRowContext(opCtx, "SELECT pg_is_in_recovery()").Scan(&inRecovery); err != nil {
		return StateUnknown, classifyConnErr(region, err)
	}
	if inRecovery {
		return StateStandby, nil
	}
	return StatePrimary, nil
}

// replicationLagQuery measures real replay acknowledgement on the standby:
// zero when receive and replay LSNs match, otherwise the age of the last
// applied transaction.
const replicationLagQuery = `
SELECT CASE
	WHEN pg_last_wal_receive_lsn() = pg_last_wal_replay_lsn() THEN 0
	ELSE EXTRACT(EPOCH FROM now() - pg_last_xact_replay_timestamp())
END`

// ReplicationLag returns the observed replication lag of the named standby in
// seconds
func (p *PostgresProbe) ReplicationLag(ctx context.Context, region failover.Region) (float64, *failover.Error) {
	db, ferr := p.handle(region)
	if ferr != nil {
		return 0, ferr
	}

	opCtx, cancel := p.opContext(ctx)
	defer cancel()

	var lag sql.NullFloat64
	if err := db.QueryRowContext(opCtx, replicationLagQuery).Scan(&lag); err != nil {
		return 0, classifyConnErr(region, err)
	}
	if !lag.Valid {
		return 0, failover.NewError(failover.KindLagTooHigh, "region %s has no replay timestamp: replication state unknown", region)
	}
	return lag.Float64, nil
}

// Promote asks the standby to assume primary status and confirms by polling
// the recovery state at 100 ms intervals up to a 3 s cap. Calling it against
// an already promoted node is a no-op.
func (p *PostgresProbe) Promote(ctx context.Context, region failover.Region) *failover.Error {
	db, ferr := p.handle(region)
	if ferr != nil {
		return ferr
	}

	state, ferr := p.RecoveryState(ctx, region)
	if ferr != nil {
		return failover.NewError(failover.KindPromotionFailed, "pre-promotion state check for region %s: %s", region, ferr.Message)
	}
	if state == StatePrimary {
		p.logger.Info("Node already primary, promotion is a no-op", map[string]interface{}{"region": string(region)})
		return nil
	}

	opCtx, cancel := p.opContext(ctx)
	var promoted bool
	err := db.QueryRowContext(opCtx, "SELECT pg_promote(false)").Scan(&promoted)
	cancel()
	if err != nil {
		return failover.NewError(failover.KindPromotionFailed, "promotion command against region %s: %v", region, err)
	}

	pollCtx, cancelPoll := context.WithTimeout(ctx, promotePollTimeout)
	defer cancelPoll()

	ticker := time.NewTicker(promotePollEvery)
	defer ticker.Stop()

	for {
		state, ferr := p.RecoveryState(pollCtx, region)
		if ferr == nil && state == StatePrimary {
			return nil
		}

		select {
		case <-pollCtx.Done():
			return failover.NewError(failover.KindPromotionFailed, "region %s did not report primary within %s", region, promotePollTimeout)
		case <-ticker.C:
		}
	}
}

// ValidateWrite performs an end-to-end write of a sentinel row with the given
// token against the node, followed by a read-back
func (p *PostgresProbe) ValidateWrite(ctx context.Context, region failover.Region, token string) *failover.Error {
	db, ferr := p.handle(region)
	if ferr != nil {
		return ferr
	}

	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS failover_validation (token TEXT PRIMARY KEY, written_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return failover.NewError(failover.KindValidationFailed, "ensure validation table on region %s: %v", region, err)
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO failover_validation (token) VALUES ($1)`, token); err != nil {
		return failover.NewError(failover.KindValidationFailed, "validation write on region %s: %v", region, err)
	}

	var readBack string
	if err := db.QueryRowContext(ctx, `SELECT token FROM failover_validation WHERE token = $1`, token).Scan(&readBack); err != nil {
		return failover.NewError(failover.KindValidationFailed, "validation read-back on region %s: %v", region, err)
	}
	if readBack != token {
		return failover.NewError(failover.KindValidationFailed, "validation read-back mismatch on region %s", region)
	}
	return nil
}

func classifyConnErr(region failover.Region, err error) *failover.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return failover.NewError(failover.KindUnreachable, "region %s did not answer within timeout", region)
	}
	return failover.NewError(failover.KindUnreachable, "region %s: %v", region, err)
}
