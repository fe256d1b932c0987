package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/skillforge/skill-badges/internal/database"
	"github.com/skillforge/skill-badges/internal/models"
	"github.com/skillforge/skill-badges/internal/utils"
)

// mutableFields is the allow-list for partial updates. The order is
// fixed so the generated statement binds parameters deterministically.
var mutableFields = []string{"badge_name", "badge_description", "verified", "student_id"}

// BadgeService handles skill badge business logic. Every operation
// issues exactly one statement against the injected connection; none
// of them retries or spans a multi-statement transaction.
type BadgeService struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewBadgeService creates a new instance of BadgeService. The service
// never opens connections itself; the pool is owned by the caller.
func NewBadgeService(db *gorm.DB, logger zerolog.Logger) *BadgeService {
	return &BadgeService{
		db:     db,
		logger: logger,
	}
}

// CreateRequest represents a request to create a badge
type CreateRequest struct {
	StudentID        int
	BadgeName        string
	BadgeDescription *string
	Verified         bool
}

// EnsureSchema idempotently provisions the skill_badges table, its
// updated_at trigger and the student_id index.
func (s *BadgeService) EnsureSchema(ctx context.Context) error {
	if err := database.EnsureSchema(s.db.WithContext(ctx)); err != nil {
		s.logger.Error().Err(err).Msg("failed to provision skill_badges schema")
		return utils.WrapDatabaseError("provision schema", err)
	}

	s.logger.Info().Msg("skill_badges schema provisioned")
	return nil
}

// Create persists a new badge
func (s *BadgeService) Create(ctx context.Context, req CreateRequest) (*models.SkillBadge, error) {
	if req.StudentID == 0 {
		return nil, utils.RequiredFieldError("student_id")
	}
	if req.BadgeName == "" {
		return nil, utils.RequiredFieldError("badge_name")
	}

	badge := &models.SkillBadge{
		StudentID:        req.StudentID,
		BadgeName:        req.BadgeName,
		BadgeDescription: req.BadgeDescription,
		Verified:         req.Verified,
	}

	if err := s.db.WithContext(ctx).Create(badge).Error; err != nil {
		s.logger.Error().Err(err).Msg("failed to create badge")
		return nil, utils.WrapDatabaseError("create badge", err)
	}

	s.logger.Info().
		Uint("id", badge.ID).
		Int("student_id", badge.StudentID).
		Str("badge_name", badge.BadgeName).
		Msg("created badge")

	return badge, nil
}

// List returns badges ordered newest first, optionally filtered by
// student. An empty result is not an error. No limit is applied;
// unbounded result size is a known limitation.
func (s *BadgeService) List(ctx context.Context, studentID *int) ([]*models.SkillBadge, error) {
	query := s.db.WithContext(ctx).Model(&models.SkillBadge{})

	if studentID != nil {
		query = query.Where("student_id = ?", *studentID)
	}

	badges := make([]*models.SkillBadge, 0)
	if err := query.Order("created_at DESC").Find(&badges).Error; err != nil {
		s.logger.Error().Err(err).Msg("failed to list badges")
		return nil, utils.WrapDatabaseError("list badges", err)
	}

	return badges, nil
}

// GetByID retrieves a badge by its ID
func (s *BadgeService) GetByID(ctx context.Context, id uint) (*models.SkillBadge, error) {
	var badge models.SkillBadge
	if err := s.db.WithContext(ctx).First(&badge, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.WrapNotFoundError("badge", fmt.Sprintf("%d", id))
		}
		s.logger.Error().Err(err).Msg("failed to get badge by id")
		return nil, utils.WrapDatabaseError("get badge by id", err)
	}

	return &badge, nil
}

// Update applies a presence-based partial update. Only fields present
// in the request body are touched; a field set to its current value
// still counts as an update. The statement refreshes updated_at and
// the provisioned trigger does the same on the storage side.
func (s *BadgeService) Update(ctx context.Context, id uint, fields map[string]interface{}) (*models.SkillBadge, error) {
	set := make([]string, 0, len(mutableFields)+1)
	args := make([]interface{}, 0, len(mutableFields)+2)

	for _, field := range mutableFields {
		value, present := fields[field]
		if !present {
			continue
		}
		set = append(set, field+" = ?")
		args = append(args, coerceFieldValue(field, value))
	}

	if len(set) == 0 {
		return nil, utils.WrapValidationError("", "no valid fields provided to update")
	}

	set = append(set, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, id)

	stmt := "UPDATE skill_badges SET " + strings.Join(set, ", ") + " WHERE id = ?"
	tx := s.db.WithContext(ctx).Exec(stmt, args...)
	if tx.Error != nil {
		s.logger.Error().Err(tx.Error).Uint("id", id).Msg("failed to update badge")
		return nil, utils.WrapDatabaseError("update badge", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return nil, utils.WrapNotFoundError("badge", fmt.Sprintf("%d", id))
	}

	s.logger.Info().Uint("id", id).Int("fields", len(set)-1).Msg("updated badge")

	return s.GetByID(ctx, id)
}

// SetVerified sets the verified flag to the given value, or flips the
// stored value when verified is nil. The negation runs inside the
// single UPDATE statement so concurrent toggles never race an earlier
// application-level read.
func (s *BadgeService) SetVerified(ctx context.Context, id uint, verified *bool) (*models.SkillBadge, error) {
	var tx *gorm.DB
	if verified != nil {
		tx = s.db.WithContext(ctx).Exec(
			"UPDATE skill_badges SET verified = ?, updated_at = ? WHERE id = ?",
			*verified, time.Now().UTC(), id,
		)
	} else {
		tx = s.db.WithContext(ctx).Exec(
			"UPDATE skill_badges SET verified = NOT verified, updated_at = ? WHERE id = ?",
			time.Now().UTC(), id,
		)
	}

	if tx.Error != nil {
		s.logger.Error().Err(tx.Error).Uint("id", id).Msg("failed to set verified flag")
		return nil, utils.WrapDatabaseError("set verified flag", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return nil, utils.WrapNotFoundError("badge", fmt.Sprintf("%d", id))
	}

	return s.GetByID(ctx, id)
}

// Delete removes a badge and returns its last-known field values
func (s *BadgeService) Delete(ctx context.Context, id uint) (*models.SkillBadge, error) {
	var badge models.SkillBadge
	if err := s.db.WithContext(ctx).First(&badge, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.WrapNotFoundError("badge", fmt.Sprintf("%d", id))
		}
		s.logger.Error().Err(err).Msg("failed to find badge")
		return nil, utils.WrapDatabaseError("find badge", err)
	}

	if err := s.db.WithContext(ctx).Delete(&badge).Error; err != nil {
		s.logger.Error().Err(err).Uint("id", id).Msg("failed to delete badge")
		return nil, utils.WrapDatabaseError("delete badge", err)
	}

	s.logger.Info().Uint("id", id).Msg("deleted badge")

	return &badge, nil
}

// Count returns the total number of badges
func (s *BadgeService) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.SkillBadge{}).Count(&count).Error; err != nil {
		s.logger.Error().Err(err).Msg("failed to count badges")
		return 0, utils.WrapDatabaseError("count badges", err)
	}

	return count, nil
}

// coerceFieldValue normalizes decoded JSON values for binding.
// JSON numbers arrive as float64 and student_id is an integer column.
func coerceFieldValue(field string, value interface{}) interface{} {
	if field == "student_id" {
		if f, ok := value.(float64); ok {
			return int(f)
		}
	}
	return value
}
