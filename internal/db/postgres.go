package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/truthmarkets/integrity-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time so schema init works
// inside the runtime image without shipping the .sql file.
//
//go:embed schema.sql
var schemaSQL string

// ErrInvalidTransition is returned when an alert review would violate the
// pending → dismissed|confirmed lifecycle.
var ErrInvalidTransition = errors.New("alert is not pending")

// PostgresStore is the persistence layer for alerts, trader aggregates and
// follow edges.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Connect initializes the pgx connection pool.
func Connect(ctx context.Context, connStr string, logger zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log := logger.With().Str("component", "db").Logger()
	log.Info().Msg("connected to PostgreSQL")
	return &PostgresStore{pool: pool, log: log}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded DDL. Idempotent.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema migrations: %w", err)
	}
	s.log.Info().Msg("schema initialized")
	return nil
}

// ─── Alerts ────────────────────────────────────────────────────────────

// SaveAlert persists a detector alert for the manual-review workflow.
func (s *PostgresStore) SaveAlert(ctx context.Context, alert models.Alert) error {
	wallets, err := json.Marshal(alert.Wallets)
	if err != nil {
		return fmt.Errorf("marshal alert wallets: %w", err)
	}
	evidence, err := json.Marshal(alert.Evidence)
	if err != nil {
		return fmt.Errorf("marshal alert evidence: %w", err)
	}

	const sql = `
		INSERT INTO alerts (id, alert_type, severity, wallets, evidence, recommended_action, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err = s.pool.Exec(ctx, sql,
		alert.ID, alert.Type, alert.Severity, wallets, evidence,
		alert.RecommendedAction, alert.Status, alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns alerts filtered by status ("" = all), newest first,
// with the total count for pagination.
func (s *PostgresStore) ListAlerts(ctx context.Context, status models.AlertStatus, page, limit int) ([]models.Alert, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	var (
		total int
		err   error
	)
	if status != "" {
		err = s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM alerts WHERE status = $1", status).Scan(&total)
	} else {
		err = s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM alerts").Scan(&total)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	query := `
		SELECT id, alert_type, severity, wallets, evidence, recommended_action, status, created_at
		FROM alerts
	`
	args := []any{limit, offset}
	if status != "" {
		query += " WHERE status = $3"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT $1 OFFSET $2"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var (
			a        models.Alert
			wallets  []byte
			evidence []byte
		)
		if err := rows.Scan(&a.ID, &a.Type, &a.Severity, &wallets, &evidence,
			&a.RecommendedAction, &a.Status, &a.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan alert: %w", err)
		}
		if err := json.Unmarshal(wallets, &a.Wallets); err != nil {
			return nil, 0, fmt.Errorf("decode alert wallets: %w", err)
		}
		if err := json.Unmarshal(evidence, &a.Evidence); err != nil {
			return nil, 0, fmt.Errorf("decode alert evidence: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, total, rows.Err()
}

// ReviewAlert transitions a pending alert to dismissed or confirmed. Any
// other transition fails with ErrInvalidTransition.
func (s *PostgresStore) ReviewAlert(ctx context.Context, id string, status models.AlertStatus) error {
	if status != models.StatusDismissed && status != models.StatusConfirmed {
		return fmt.Errorf("%w: cannot transition to %q", ErrInvalidTransition, status)
	}

	const sql = `
		UPDATE alerts SET status = $1, reviewed_at = NOW()
		WHERE id = $2 AND status = 'pending';
	`
	tag, err := s.pool.Exec(ctx, sql, status, id)
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// ─── Trader aggregates ─────────────────────────────────────────────────

// ApplyResolvedBets increments a wallet's aggregate with a batch of newly
// resolved outcomes. Counters only ever grow; corrections are an explicit
// separate path.
func (s *PostgresStore) ApplyResolvedBets(ctx context.Context, address string, wins, losses int64, volume decimal.Decimal) error {
	const sql = `
		INSERT INTO trader_aggregates (address, total_bets, wins, losses, total_volume)
		VALUES ($1, $2 + $3, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET
			total_bets   = trader_aggregates.total_bets + EXCLUDED.total_bets,
			wins         = trader_aggregates.wins + EXCLUDED.wins,
			losses       = trader_aggregates.losses + EXCLUDED.losses,
			total_volume = trader_aggregates.total_volume + EXCLUDED.total_volume,
			updated_at   = NOW();
	`
	if _, err := s.pool.Exec(ctx, sql, address, wins, losses, volume.String()); err != nil {
		return fmt.Errorf("apply resolved bets: %w", err)
	}
	return nil
}

// GetAggregate fetches one wallet's aggregate. Unknown wallets return a
// zero aggregate, not an error — scoring treats them as unranked Bronze.
func (s *PostgresStore) GetAggregate(ctx context.Context, address string) (models.TraderAggregate, error) {
	const sql = `
		SELECT address, total_bets, wins, losses, total_volume::text, first_seen
		FROM trader_aggregates WHERE address = $1;
	`
	agg, err := scanAggregate(s.pool.QueryRow(ctx, sql, address))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TraderAggregate{Address: address, TotalVolume: decimal.Zero}, nil
	}
	return agg, err
}

// Leaderboard returns the aggregates eligible for public ranking, most
// active first. The minimum-bets gate is applied here in SQL.
func (s *PostgresStore) Leaderboard(ctx context.Context, minBets int64, limit int) ([]models.TraderAggregate, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const sql = `
		SELECT address, total_bets, wins, losses, total_volume::text, first_seen
		FROM trader_aggregates
		WHERE total_bets >= $1
		ORDER BY wins DESC, total_bets DESC
		LIMIT $2;
	`
	rows, err := s.pool.Query(ctx, sql, minBets, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []models.TraderAggregate
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAggregate(row rowScanner) (models.TraderAggregate, error) {
	var (
		agg models.TraderAggregate
		vol string
	)
	if err := row.Scan(&agg.Address, &agg.TotalBets, &agg.Wins, &agg.Losses, &vol, &agg.FirstSeen); err != nil {
		return models.TraderAggregate{}, err
	}
	volume, err := decimal.NewFromString(vol)
	if err != nil {
		return models.TraderAggregate{}, fmt.Errorf("decode volume %q: %w", vol, err)
	}
	agg.TotalVolume = volume
	return agg, nil
}

// ─── Follow edges ──────────────────────────────────────────────────────

// SaveEdge persists a fresh active follow edge.
func (s *PostgresStore) SaveEdge(ctx context.Context, edge models.FollowEdge) error {
	const sql = `
		INSERT INTO follow_edges (follower, leader, active, created_at)
		VALUES ($1, $2, TRUE, $3);
	`
	if _, err := s.pool.Exec(ctx, sql, edge.Follower, edge.Leader, edge.CreatedAt); err != nil {
		return fmt.Errorf("insert follow edge: %w", err)
	}
	return nil
}

// DeactivateEdge marks the active edge inactive. The row is kept; a
// re-follow inserts a new one.
func (s *PostgresStore) DeactivateEdge(ctx context.Context, follower, leader string) error {
	const sql = `
		UPDATE follow_edges SET active = FALSE, deactivated_at = NOW()
		WHERE follower = $1 AND leader = $2 AND active;
	`
	if _, err := s.pool.Exec(ctx, sql, follower, leader); err != nil {
		return fmt.Errorf("deactivate follow edge: %w", err)
	}
	return nil
}

// LoadActiveEdges returns every active edge for graph hydration at startup.
func (s *PostgresStore) LoadActiveEdges(ctx context.Context) ([]models.FollowEdge, error) {
	const sql = `SELECT follower, leader, created_at FROM follow_edges WHERE active;`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query follow edges: %w", err)
	}
	defer rows.Close()

	var edges []models.FollowEdge
	for rows.Next() {
		e := models.FollowEdge{Active: true}
		if err := rows.Scan(&e.Follower, &e.Leader, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan follow edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
