package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"micromart/internal/domain"
)

// RevokedTokenRepository is the SQL Revocation Store. SQL has no native TTL,
// so lookups ignore rows older than the retention window and Purge deletes
// them for housekeeping.
type RevokedTokenRepository struct {
	db        *gorm.DB
	retention time.Duration
	now       func() time.Time
}

func NewRevokedTokenRepository(db *gorm.DB, retention time.Duration) *RevokedTokenRepository {
	return &RevokedTokenRepository{db: db, retention: retention, now: time.Now}
}

type revokedTokenModel struct {
	Digest    string    `gorm:"column:digest;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (revokedTokenModel) TableName() string { return "revoked_tokens" }

func toDomainRevokedToken(m revokedTokenModel) *domain.RevokedToken {
	return &domain.RevokedToken{Digest: m.Digest, CreatedAt: m.CreatedAt}
}

// Add records token as revoked. added is false when it was already present.
func (r *RevokedTokenRepository) Add(ctx context.Context, token string) (bool, error) {
	m := revokedTokenModel{Digest: tokenDigest(token), CreatedAt: r.now().UTC()}
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "digest"}}, DoNothing: true}).
		Create(&m)
	if tx.Error != nil {
		return false, fmt.Errorf("revoke token: %w", tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

func (r *RevokedTokenRepository) Contains(ctx context.Context, token string) (bool, error) {
	entry, err := r.get(ctx, tokenDigest(token))
	if err != nil {
		return false, err
	}
	return entry != nil && entry.Live(r.now().UTC(), r.retention), nil
}

func (r *RevokedTokenRepository) get(ctx context.Context, digest string) (*domain.RevokedToken, error) {
	var rows []revokedTokenModel
	tx := r.db.WithContext(ctx).Where("digest = ?", digest).Limit(1).Find(&rows)
	if tx.Error != nil {
		return nil, fmt.Errorf("lookup revoked token: %w", tx.Error)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return toDomainRevokedToken(rows[0]), nil
}

// Purge deletes entries past the retention window and reports how many.
func (r *RevokedTokenRepository) Purge(ctx context.Context) (int64, error) {
	cutoff := r.now().UTC().Add(-r.retention)
	tx := r.db.WithContext(ctx).Where("created_at <= ?", cutoff).Delete(&revokedTokenModel{})
	if tx.Error != nil {
		return 0, fmt.Errorf("purge revoked tokens: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}
