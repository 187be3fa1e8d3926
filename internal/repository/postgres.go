package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"policychat/internal/model"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresRepository handles database operations
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(dsn string, maxConn, maxIdleConn int) (*PostgresRepository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute) // Shorter lifetime to avoid stale connections
	db.SetConnMaxIdleTime(2 * time.Minute) // Close idle connections sooner

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

// DB exposes the pool for components that share it (the pgvector index).
func (r *PostgresRepository) DB() *sqlx.DB {
	return r.db
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// LoadProfile returns the stored profile, or an empty one for unknown users.
func (r *PostgresRepository) LoadProfile(ctx context.Context, userID int64) (model.UserProfile, error) {
	var profile model.UserProfile
	query := `SELECT profile FROM user_profiles WHERE user_id = $1`
	err := r.db.GetContext(ctx, &profile, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.UserProfile{}, nil
		}
		return model.UserProfile{}, fmt.Errorf("failed to load profile: %w", err)
	}
	return profile, nil
}

// MergeAndSaveProfile overlays update onto the stored profile and persists it.
// Concurrent merges for the same user are last-write-wins.
func (r *PostgresRepository) MergeAndSaveProfile(ctx context.Context, userID int64, update model.UserProfile) (model.UserProfile, error) {
	stored, err := r.LoadProfile(ctx, userID)
	if err != nil {
		return model.UserProfile{}, err
	}
	merged := stored.Merge(update)

	query := `
		INSERT INTO user_profiles (user_id, profile, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET profile = EXCLUDED.profile, updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, userID, merged); err != nil {
		return stored, fmt.Errorf("failed to save profile: %w", err)
	}
	return merged, nil
}

// GetFavorites returns the most recently favorited listings of a user.
func (r *PostgresRepository) GetFavorites(ctx context.Context, userID int64, limit int) ([]model.PropertyInterest, error) {
	query := `
		SELECT
			COALESCE(p.transaction_type, '') AS transaction_type,
			COALESCE(p.deposit, 0)           AS deposit,
			COALESCE(p.monthly_rent, 0)      AS monthly_rent,
			COALESCE(p.area, 0)              AS area,
			COALESCE(p.address, '')          AS address
		FROM favorites f
		JOIN properties p ON p.id = f.property_id
		WHERE f.user_id = $1
		ORDER BY f.created_at DESC
		LIMIT $2
	`
	var interests []model.PropertyInterest
	if err := r.db.SelectContext(ctx, &interests, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to get favorites: %w", err)
	}
	return interests, nil
}

// ListActivePolicies returns every active policy, the index's source of truth.
func (r *PostgresRepository) ListActivePolicies(ctx context.Context) ([]model.PolicyRecord, error) {
	query := `
		SELECT
			id, title,
			COALESCE(organization, '') AS organization,
			COALESCE(category, '')     AS category,
			COALESCE(target, '')       AS target,
			COALESCE(content, '')      AS content,
			COALESCE(region, '')       AS region,
			details
		FROM policies
		WHERE is_active = true
		ORDER BY id
	`
	var policies []model.PolicyRecord
	if err := r.db.SelectContext(ctx, &policies, query); err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	return policies, nil
}

// LogConsultation records one answered chat turn
func (r *PostgresRepository) LogConsultation(ctx context.Context, sessionID string, userID int64, question, path string, meta model.ChatMetadata, success bool, responseTimeMs int64) error {
	logQuery := `
		INSERT INTO consultation_logs
			(session_id, user_id, question, path, policies_found, eligible_policies, ranked_policies, success, response_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, logQuery,
		sessionID, userID, question, path,
		meta.PoliciesFound, meta.EligiblePolicies, meta.RankedPolicies,
		success, responseTimeMs,
	)
	if err != nil {
		return fmt.Errorf("failed to log consultation: %w", err)
	}
	return nil
}
