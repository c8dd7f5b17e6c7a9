package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema creates the tables the resolver reads and the workflow writes.
// Deleting an organization removes its domains and associations.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL,
		category   TEXT NOT NULL DEFAULT 'Corporate',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS organization_domains (
		id              BIGSERIAL PRIMARY KEY,
		organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		domain          TEXT NOT NULL,
		is_primary      BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_organization_domains_domain ON organization_domains (LOWER(domain))`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id         BIGSERIAL PRIMARY KEY,
		first_name TEXT NOT NULL DEFAULT '',
		last_name  TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS contact_emails (
		id         BIGSERIAL PRIMARY KEY,
		contact_id BIGINT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
		address    TEXT NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contact_emails_contact ON contact_emails (contact_id)`,
	`CREATE TABLE IF NOT EXISTS contact_organizations (
		contact_id      BIGINT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
		organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		is_primary      BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (contact_id, organization_id)
	)`,
}

// EnsureSchema creates missing tables and indexes.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
