// Package postgres implements the PostgreSQL persistence layer for the
// referral service.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE USERS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create users and user_emails tables
-- Version: 001

CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    username VARCHAR(100) NOT NULL DEFAULT '',
    referral_code VARCHAR(16) NOT NULL,
    points INTEGER NOT NULL DEFAULT 0,
    referred_by UUID REFERENCES users(id),
    profile JSONB NOT NULL DEFAULT '{}'::jsonb,
    visitor_ip VARCHAR(45) NOT NULL DEFAULT '',
    visitor_user_agent TEXT NOT NULL DEFAULT '',
    visitor_language VARCHAR(35) NOT NULL DEFAULT '',
    visitor_referrer_url TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    -- Constraints for data integrity
    CONSTRAINT users_referral_code_key UNIQUE (referral_code),
    CONSTRAINT valid_points CHECK (points >= 0),
    CONSTRAINT no_self_referral CHECK (referred_by IS NULL OR referred_by <> id)
);

-- Indexes for ranking queries
CREATE INDEX IF NOT EXISTS idx_users_points_desc ON users(points DESC);
CREATE INDEX IF NOT EXISTS idx_users_points_asc ON users(points ASC, id);
CREATE INDEX IF NOT EXISTS idx_users_referred_by ON users(referred_by) WHERE referred_by IS NOT NULL;

-- Email addresses live in their own table: a user may carry several, and
-- the unique index here is the single authority on duplicate signups.
CREATE TABLE IF NOT EXISTS user_emails (
    id SERIAL PRIMARY KEY,
    address VARCHAR(255) NOT NULL,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    verified BOOLEAN NOT NULL DEFAULT FALSE,
    position INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT user_emails_address_key UNIQUE (address)
);

CREATE INDEX IF NOT EXISTS idx_user_emails_user_id ON user_emails(user_id);
`

const migration001Down = `
DROP TABLE IF EXISTS user_emails;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_users",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
	}
}
