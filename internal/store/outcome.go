package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
)

var outcomeColumns = columnNames(outcomesColumns)

type resultRepo struct {
	drv *entsql.Driver
}

func (r *resultRepo) Save(ctx context.Context, rec *OutcomeRecord) error {
	if rec.SessionID == "" {
		return errors.New("save outcome: empty session id")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}

	// A second save for the same session replaces everything but the id.
	query, args := entsql.Dialect(dialect.SQLite).
		Insert(outcomesTable.Name).
		Columns(outcomeColumns...).
		Values(rec.ID, rec.SessionID, rec.Score, rec.ScoreSource, rec.RiskLevel, rec.ServerLevel,
			rec.Summary, rec.StaticAnswered, rec.DynamicAnswered, rec.FailSafe, rec.CompletedAt.UnixMilli()).
		OnConflict(
			entsql.ConflictColumns("session_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				for _, c := range outcomeColumns[2:] {
					u.SetExcluded(c)
				}
			}),
		).
		Query()
	if err := r.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("save outcome: %w", err)
	}
	return nil
}

func (r *resultRepo) Get(ctx context.Context, sessionID string) (*OutcomeRecord, error) {
	b := entsql.Dialect(dialect.SQLite)
	query, args := b.Select(outcomeColumns...).
		From(b.Table(outcomesTable.Name)).
		Where(entsql.EQ("session_id", sessionID)).
		Query()

	out, err := r.query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("query outcome: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

func (r *resultRepo) List(ctx context.Context, opts QueryOpts) ([]OutcomeRecord, error) {
	b := entsql.Dialect(dialect.SQLite)
	sel := b.Select(outcomeColumns...).From(b.Table(outcomesTable.Name))
	if !opts.From.IsZero() {
		sel.Where(entsql.GTE("completed_at", opts.From.UnixMilli()))
	}
	if !opts.To.IsZero() {
		sel.Where(entsql.LTE("completed_at", opts.To.UnixMilli()))
	}
	sel.OrderBy(entsql.Desc("completed_at"), "id")
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}

	query, args := sel.Query()
	out, err := r.query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	return out, nil
}

func (r *resultRepo) query(ctx context.Context, query string, args []any) ([]OutcomeRecord, error) {
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var (
			rec OutcomeRecord
			ms  int64
		)
		err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Score, &rec.ScoreSource, &rec.RiskLevel,
			&rec.ServerLevel, &rec.Summary, &rec.StaticAnswered, &rec.DynamicAnswered,
			&rec.FailSafe, &ms)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		rec.CompletedAt = time.UnixMilli(ms)
		out = append(out, rec)
	}
	return out, rows.Err()
}
