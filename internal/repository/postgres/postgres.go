package postgres

import (
	"DeepLink-Backend/internal/domain"
	"DeepLink-Backend/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Storage implements repository.Storage on a relational store via GORM.
type Storage struct {
	db  *gorm.DB
	log *zap.Logger
}

// New creates a new relational storage instance
func New(db *gorm.DB, log *zap.Logger) *Storage {
	return &Storage{
		db:  db,
		log: log,
	}
}

// --- Link Methods ---

// SaveLink persists a new deep link
func (s *Storage) SaveLink(ctx context.Context, link *domain.Link) error {
	if err := s.db.WithContext(ctx).Create(link).Error; err != nil {
		s.log.Error("failed to save link", zap.String("link_id", link.LinkID), zap.Error(err))
		return fmt.Errorf("failed to save link: %w", err)
	}

	s.log.Info("saved new link", zap.String("link_id", link.LinkID), zap.String("target_url", link.TargetURL))
	return nil
}

// GetActiveLink returns the link only while it is active and unexpired
func (s *Storage) GetActiveLink(ctx context.Context, linkID string) (*domain.Link, error) {
	var link domain.Link

	err := s.db.WithContext(ctx).Where("link_id = ? AND active = ?", linkID, true).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrLinkNotFound
	}
	if err != nil {
		s.log.Error("failed to get link", zap.String("link_id", linkID), zap.Error(err))
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	if link.ExpiresAt != nil && !link.ExpiresAt.After(time.Now()) {
		return nil, repository.ErrLinkExpired
	}

	return &link, nil
}

// GetLink returns the link regardless of active/expiry state
func (s *Storage) GetLink(ctx context.Context, linkID string) (*domain.Link, error) {
	var link domain.Link

	err := s.db.WithContext(ctx).Where("link_id = ?", linkID).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrLinkNotFound
	}
	if err != nil {
		s.log.Error("failed to get link", zap.String("link_id", linkID), zap.Error(err))
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return &link, nil
}

// --- Fingerprint Methods ---

// RecordClick stores the click fingerprint and increments the link click
// counter in a single transaction.
func (s *Storage) RecordClick(ctx context.Context, fp *domain.DeviceFingerprint) (int64, error) {
	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(fp).Error; err != nil {
		tx.Rollback()
		s.log.Error("failed to create fingerprint", zap.String("link_id", fp.LinkID), zap.Error(err))
		return 0, fmt.Errorf("failed to create fingerprint: %w", err)
	}

	err := tx.Model(&domain.Link{}).Where("link_id = ?", fp.LinkID).
		Update("click_count", gorm.Expr("click_count + 1")).Error
	if err != nil {
		tx.Rollback()
		s.log.Error("failed to update click count", zap.String("link_id", fp.LinkID), zap.Error(err))
		return 0, fmt.Errorf("failed to update click count: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		s.log.Error("failed to commit click transaction", zap.String("link_id", fp.LinkID), zap.Error(err))
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Info("recorded click",
		zap.String("link_id", fp.LinkID),
		zap.String("fingerprint_hash", fp.FingerprintHash),
		zap.Int64("fingerprint_id", fp.ID))
	return fp.ID, nil
}

// FindUnmatchedCandidates returns unmatched fingerprints for the IP created
// at or after the window start, newest first.
func (s *Storage) FindUnmatchedCandidates(ctx context.Context, ipAddress string, after time.Time) ([]*domain.DeviceFingerprint, error) {
	var candidates []*domain.DeviceFingerprint

	err := s.db.WithContext(ctx).
		Where("ip_address = ? AND created_at >= ? AND matched = ?", ipAddress, after, false).
		Order("created_at DESC").
		Find(&candidates).Error
	if err != nil {
		s.log.Error("failed to find candidates", zap.String("ip_address", ipAddress), zap.Error(err))
		return nil, fmt.Errorf("failed to find candidates: %w", err)
	}

	return candidates, nil
}

// FindAllUnmatchedCandidates is the IP-less candidate query.
func (s *Storage) FindAllUnmatchedCandidates(ctx context.Context, after time.Time) ([]*domain.DeviceFingerprint, error) {
	var candidates []*domain.DeviceFingerprint

	err := s.db.WithContext(ctx).
		Where("created_at >= ? AND matched = ?", after, false).
		Order("created_at DESC").
		Find(&candidates).Error
	if err != nil {
		s.log.Error("failed to find candidates", zap.Error(err))
		return nil, fmt.Errorf("failed to find candidates: %w", err)
	}

	return candidates, nil
}

// FindByFingerprintHash returns all fingerprints stored under the exact hash
func (s *Storage) FindByFingerprintHash(ctx context.Context, hash string) ([]*domain.DeviceFingerprint, error) {
	var fingerprints []*domain.DeviceFingerprint

	err := s.db.WithContext(ctx).Where("fingerprint_hash = ?", hash).Find(&fingerprints).Error
	if err != nil {
		s.log.Error("failed to find fingerprints by hash", zap.String("fingerprint_hash", hash), zap.Error(err))
		return nil, fmt.Errorf("failed to find fingerprints by hash: %w", err)
	}

	return fingerprints, nil
}

// --- Attribution Methods ---

// GetMatchByDevice returns the stored attribution decision for a device
func (s *Storage) GetMatchByDevice(ctx context.Context, deviceID string) (*domain.AttributionMatch, error) {
	var match domain.AttributionMatch

	err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&match).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrMatchNotFound
	}
	if err != nil {
		s.log.Error("failed to get match by device", zap.String("device_id", deviceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	return &match, nil
}

// RecordMatch consumes the winning fingerprint, inserts the attribution row
// and increments the link install counter in one transaction. The conditional
// matched update and the unique device index arbitrate concurrent writers:
// losing either race rolls back the whole transaction.
func (s *Storage) RecordMatch(ctx context.Context, match *domain.AttributionMatch) error {
	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	res := tx.Model(&domain.DeviceFingerprint{}).
		Where("id = ? AND matched = ?", match.FingerprintID, false).
		Update("matched", true)
	if res.Error != nil {
		tx.Rollback()
		s.log.Error("failed to consume fingerprint", zap.Int64("fingerprint_id", match.FingerprintID), zap.Error(res.Error))
		return fmt.Errorf("failed to consume fingerprint: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return repository.ErrFingerprintConsumed
	}

	if err := tx.Create(match).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repository.ErrDeviceAlreadyMatched
		}
		s.log.Error("failed to create attribution match", zap.String("device_id", match.DeviceID), zap.Error(err))
		return fmt.Errorf("failed to create attribution match: %w", err)
	}

	err := tx.Model(&domain.Link{}).Where("link_id = ?", match.LinkID).
		Update("install_count", gorm.Expr("install_count + 1")).Error
	if err != nil {
		tx.Rollback()
		s.log.Error("failed to update install count", zap.String("link_id", match.LinkID), zap.Error(err))
		return fmt.Errorf("failed to update install count: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		s.log.Error("failed to commit match transaction", zap.String("device_id", match.DeviceID), zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Info("recorded attribution match",
		zap.String("device_id", match.DeviceID),
		zap.String("link_id", match.LinkID),
		zap.Float64("match_score", match.MatchScore))
	return nil
}

// CountMatchesByLink returns the number of attributions recorded for a link
func (s *Storage) CountMatchesByLink(ctx context.Context, linkID string) (int64, error) {
	var count int64

	err := s.db.WithContext(ctx).Model(&domain.AttributionMatch{}).Where("link_id = ?", linkID).Count(&count).Error
	if err != nil {
		s.log.Error("failed to count matches", zap.String("link_id", linkID), zap.Error(err))
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}

	return count, nil
}
