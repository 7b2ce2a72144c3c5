package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertTenant adds a new tenant.
func (s *Store) InsertTenant(ctx context.Context, t *Tenant) error {
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().UnixMilli()
	}
	if t.Plan == "" {
		t.Plan = "free"
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO tenants (id, name, plan, token_hash, webhook_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Plan, t.TokenHash, t.WebhookURL, t.CreatedAt,
	)
	return err
}

// GetTenant retrieves a tenant by ID. Returns nil, nil when absent.
func (s *Store) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, name, plan, token_hash, webhook_url, created_at
		FROM tenants WHERE id = ?`, id)

	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Plan, &t.TokenHash, &t.WebhookURL, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	return &t, nil
}

// UpdateTenant updates a tenant's mutable fields.
func (s *Store) UpdateTenant(ctx context.Context, t *Tenant) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE tenants SET name=?, plan=?, token_hash=?, webhook_url=? WHERE id=?`,
		t.Name, t.Plan, t.TokenHash, t.WebhookURL, t.ID,
	)
	return err
}

// TenantPlans returns the plan of every tenant, keyed by tenant ID. The
// scheduler uses this to score and quota-gate the whole fleet in one query.
func (s *Store) TenantPlans(ctx context.Context) (map[string]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, plan FROM tenants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make(map[string]string)
	for rows.Next() {
		var id, plan string
		if err := rows.Scan(&id, &plan); err != nil {
			return nil, fmt.Errorf("scan tenant plan: %w", err)
		}
		plans[id] = plan
	}
	return plans, rows.Err()
}
