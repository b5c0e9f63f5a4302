package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// Range bounds a stats query to [From, To). Zero values are unbounded.
type Range struct {
	From time.Time
	To   time.Time
}

func (r Range) mongoFilter() bson.M {
	f := bson.M{}
	if !r.From.IsZero() {
		f["$gte"] = r.From.UTC()
	}
	if !r.To.IsZero() {
		f["$lt"] = r.To.UTC()
	}
	return f
}

func (r Range) bounds() (from, to *time.Time) {
	if !r.From.IsZero() {
		from = &r.From
	}
	if !r.To.IsZero() {
		to = &r.To
	}
	return from, to
}

type MenuStat struct {
	MenuID    int64           `json:"menu_id" db:"menu_id"`
	MenuTitle string          `json:"menu_title" db:"menu_title"`
	Orders    int64           `json:"orders" db:"orders"`
	Revenue   decimal.Decimal `json:"revenue" db:"revenue"`
}

type StatsSource interface {
	MenuStats(ctx context.Context, rng Range) ([]MenuStat, error)
}

// PostgresStats aggregates straight from the orders table.
type PostgresStats struct {
	db *sqlx.DB
}

func NewPostgresStats(db *sqlx.DB) *PostgresStats {
	return &PostgresStats{db: db}
}

func (p *PostgresStats) MenuStats(ctx context.Context, rng Range) ([]MenuStat, error) {
	from, to := rng.bounds()
	stats := []MenuStat{}
	err := p.db.SelectContext(ctx, &stats, `
		SELECT menu_id,
		       max(menu_title)          AS menu_title,
		       count(*)                 AS orders,
		       COALESCE(sum(total), 0)  AS revenue
		FROM orders
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		GROUP BY menu_id
		ORDER BY revenue DESC, menu_id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("aggregate menu stats: %w", err)
	}
	return stats, nil
}

type Report struct {
	Source string     `json:"source"`
	Menus  []MenuStat `json:"menus"`
}

// Stats prefers the analytics store and falls back to Postgres when the
// store is absent or failing.
type Stats struct {
	primary  StatsSource
	fallback StatsSource
	logger   *zap.Logger
}

// NewStats builds the stats service. primary may be nil.
func NewStats(primary, fallback StatsSource, logger *zap.Logger) *Stats {
	return &Stats{primary: primary, fallback: fallback, logger: logger}
}

func (s *Stats) MenuStats(ctx context.Context, rng Range) (Report, error) {
	if s.primary != nil {
		stats, err := s.primary.MenuStats(ctx, rng)
		if err == nil {
			return Report{Source: "mongo", Menus: stats}, nil
		}
		s.logger.Warn("analytics store unavailable, using postgres", zap.Error(err))
	}

	stats, err := s.fallback.MenuStats(ctx, rng)
	if err != nil {
		return Report{}, err
	}
	return Report{Source: "postgres", Menus: stats}, nil
}
