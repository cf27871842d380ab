package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"costalloc/internal/core"
)

func (r *SQLiteRepository) GetPeriodRecord(ctx context.Context, p core.Period) (*core.PeriodRecord, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM period_records WHERE period = ?`, p.Key()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("period record %s: %w", p, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query period record %s: %w", p, err)
	}

	var rec core.PeriodRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decode period record %s: %w", p, err)
	}
	rec.Period = p
	return &rec, nil
}

// PutPeriodRecord replaces the stored record of rec.Period.
func (r *SQLiteRepository) PutPeriodRecord(ctx context.Context, rec *core.PeriodRecord) error {
	if err := rec.Period.Validate(); err != nil {
		return err
	}
	c := rec.Clone()
	c.UpdatedAt = r.now().UTC()
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode period record %s: %w", rec.Period, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO period_records (period, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(period) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		c.Period.Key(), string(payload), c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert period record %s: %w", rec.Period, err)
	}
	return nil
}

func (r *SQLiteRepository) GetLedger(ctx context.Context, projectID string, p core.Period) (*core.LedgerRecord, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM project_ledgers WHERE project_id = ? AND period = ?`,
		projectID, p.Key()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger %s %s: %w", projectID, p, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query ledger %s %s: %w", projectID, p, err)
	}

	var l core.LedgerRecord
	if err := json.Unmarshal([]byte(payload), &l); err != nil {
		return nil, fmt.Errorf("decode ledger %s %s: %w", projectID, p, err)
	}
	return &l, nil
}

func (r *SQLiteRepository) PutLedger(ctx context.Context, ledger *core.LedgerRecord) error {
	c := ledger.Clone()
	c.UpdatedAt = r.now().UTC()
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode ledger %s %s: %w", c.ProjectID, c.Period, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO project_ledgers (project_id, period, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, period) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		c.ProjectID, c.Period.Key(), string(payload), c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert ledger %s %s: %w", c.ProjectID, c.Period, err)
	}
	return nil
}
