// AngelaMos | 2026
// repository.go

package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carterperez-dev/acey-control-center/internal/core"
	"github.com/carterperez-dev/acey-control-center/internal/skill"
)

var ErrNoTrialRemaining = errors.New("no trial remaining")

// Totals are the per-user counters the database can aggregate on its own.
type Totals struct {
	Installed    int   `db:"installed"`
	PrePurchased int   `db:"pre_purchased"`
	Wishlisted   int   `db:"wishlisted"`
	Savings      int64 `db:"savings"`
}

type Repository interface {
	ListSkills(ctx context.Context, userID string) ([]skill.Skill, error)
	GetSkill(ctx context.Context, userID, skillID string) (skill.Skill, error)
	GetAccess(ctx context.Context, userID string) (skill.UserAccess, error)
	MarkInstalled(ctx context.Context, userID, skillID string) error
	MarkPrePurchased(ctx context.Context, userID, skillID string, discountPercent int) error
	ToggleWishlist(ctx context.Context, userID, skillID string) (bool, error)
	StartTrial(ctx context.Context, userID, skillID string) error
	SetTier(ctx context.Context, userID, tierID string) error
	Totals(ctx context.Context, userID string) (Totals, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const skillColumns = `
		s.id, s.name, s.category, s.required_tier_id, s.price_cents,
		s.release_date, s.trial_remaining,
		COALESCE(us.discount_percent, s.discount_percent) AS discount_percent,
		COALESCE(us.installed, FALSE)     AS installed,
		COALESCE(us.pre_purchased, FALSE) AS pre_purchased,
		COALESCE(us.wishlisted, FALSE)    AS wishlisted,
		COALESCE(us.trial_active, FALSE)  AS trial_active`

func (r *repository) ListSkills(
	ctx context.Context,
	userID string,
) ([]skill.Skill, error) {
	query := `
		SELECT` + skillColumns + `
		FROM skills s
		LEFT JOIN user_skills us ON us.skill_id = s.id AND us.user_id = $1
		ORDER BY s.release_date, s.id`

	var skills []skill.Skill
	if err := r.db.SelectContext(ctx, &skills, query, userID); err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}

	return skills, nil
}

func (r *repository) GetSkill(
	ctx context.Context,
	userID, skillID string,
) (skill.Skill, error) {
	query := `
		SELECT` + skillColumns + `
		FROM skills s
		LEFT JOIN user_skills us ON us.skill_id = s.id AND us.user_id = $1
		WHERE s.id = $2`

	var sk skill.Skill
	err := r.db.GetContext(ctx, &sk, query, userID, skillID)
	if errors.Is(err, sql.ErrNoRows) {
		return skill.Skill{}, fmt.Errorf("get skill: %w", core.ErrNotFound)
	}
	if err != nil {
		return skill.Skill{}, fmt.Errorf("get skill: %w", err)
	}

	return sk, nil
}

func (r *repository) GetAccess(
	ctx context.Context,
	userID string,
) (skill.UserAccess, error) {
	query := `
		SELECT user_id, tier_id, role, trial_remaining
		FROM user_access
		WHERE user_id = $1`

	var access skill.UserAccess
	err := r.db.GetContext(ctx, &access, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return skill.UserAccess{}, fmt.Errorf("get access: %w", core.ErrNotFound)
	}
	if err != nil {
		return skill.UserAccess{}, fmt.Errorf("get access: %w", err)
	}

	unlockedQuery := `
		SELECT skill_id
		FROM user_skills
		WHERE user_id = $1 AND installed
		ORDER BY skill_id`

	if err := r.db.SelectContext(ctx, &access.UnlockedSkills, unlockedQuery, userID); err != nil {
		return skill.UserAccess{}, fmt.Errorf("list unlocked skills: %w", err)
	}

	return access, nil
}

func (r *repository) MarkInstalled(
	ctx context.Context,
	userID, skillID string,
) error {
	query := `
		INSERT INTO user_skills (user_id, skill_id, installed)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (user_id, skill_id) DO UPDATE
		SET installed = TRUE, trial_active = FALSE, updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, userID, skillID); err != nil {
		return fmt.Errorf("mark installed: %w", err)
	}

	return nil
}

func (r *repository) MarkPrePurchased(
	ctx context.Context,
	userID, skillID string,
	discountPercent int,
) error {
	query := `
		INSERT INTO user_skills (user_id, skill_id, pre_purchased, discount_percent)
		VALUES ($1, $2, TRUE, NULLIF($3, 0))
		ON CONFLICT (user_id, skill_id) DO UPDATE
		SET pre_purchased = TRUE,
		    discount_percent = COALESCE(NULLIF($3, 0), user_skills.discount_percent),
		    updated_at = NOW()
		WHERE NOT user_skills.pre_purchased`

	result, err := r.db.ExecContext(ctx, query, userID, skillID, discountPercent)
	if err != nil {
		return fmt.Errorf("mark pre-purchased: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark pre-purchased: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("mark pre-purchased: %w", core.ErrDuplicateKey)
	}

	return nil
}

func (r *repository) ToggleWishlist(
	ctx context.Context,
	userID, skillID string,
) (bool, error) {
	query := `
		INSERT INTO user_skills (user_id, skill_id, wishlisted)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (user_id, skill_id) DO UPDATE
		SET wishlisted = NOT user_skills.wishlisted, updated_at = NOW()
		RETURNING wishlisted`

	var wishlisted bool
	if err := r.db.GetContext(ctx, &wishlisted, query, userID, skillID); err != nil {
		return false, fmt.Errorf("toggle wishlist: %w", err)
	}

	return wishlisted, nil
}

// StartTrial spends one of the user's trials and marks the skill trial-active
// in a single statement, so concurrent trials can never overspend.
func (r *repository) StartTrial(
	ctx context.Context,
	userID, skillID string,
) error {
	query := `
		WITH spent AS (
			UPDATE user_access
			SET trial_remaining = trial_remaining - 1, updated_at = NOW()
			WHERE user_id = $1 AND trial_remaining > 0
			RETURNING user_id
		)
		INSERT INTO user_skills (user_id, skill_id, trial_active)
		SELECT user_id, $2, TRUE FROM spent
		ON CONFLICT (user_id, skill_id) DO UPDATE
		SET trial_active = TRUE, updated_at = NOW()`

	result, err := r.db.ExecContext(ctx, query, userID, skillID)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("start trial: %w", core.ErrNotFound)
		}
		return fmt.Errorf("start trial: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("start trial: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("start trial: %w", ErrNoTrialRemaining)
	}

	return nil
}

func (r *repository) SetTier(
	ctx context.Context,
	userID, tierID string,
) error {
	query := `
		UPDATE user_access
		SET tier_id = $2, updated_at = NOW()
		WHERE user_id = $1`

	result, err := r.db.ExecContext(ctx, query, userID, tierID)
	if err != nil {
		return fmt.Errorf("set tier: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set tier: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("set tier: %w", core.ErrNotFound)
	}

	return nil
}

// Totals aggregates the counters and savings of one user. Savings follow
// skill.Skill.SavingsCents: price times the clamped discount, floored.
func (r *repository) Totals(
	ctx context.Context,
	userID string,
) (Totals, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE us.installed)     AS installed,
			COUNT(*) FILTER (WHERE us.pre_purchased) AS pre_purchased,
			COUNT(*) FILTER (WHERE us.wishlisted)    AS wishlisted,
			COALESCE(SUM(
				s.price_cents * LEAST(GREATEST(COALESCE(us.discount_percent, s.discount_percent), 0), 100) / 100
			) FILTER (WHERE us.pre_purchased), 0)::BIGINT AS savings
		FROM user_skills us
		JOIN skills s ON s.id = us.skill_id
		WHERE us.user_id = $1`

	var totals Totals
	if err := r.db.GetContext(ctx, &totals, query, userID); err != nil {
		return Totals{}, fmt.Errorf("aggregate totals: %w", err)
	}

	return totals, nil
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
