package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/casebeam/caseload-api/internal/models"
)

const availabilityColumns = `id, provider_id, school_id, school_site, day_of_week, created_at`

// AvailabilityRepository manages which weekdays a provider works each site.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs an AvailabilityRepository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListByProvider returns a provider's availability rows within a school scope.
func (r *AvailabilityRepository) ListByProvider(ctx context.Context, providerID, schoolID, schoolSite string) ([]models.ProviderAvailability, error) {
	conditions := []string{"provider_id = $1"}
	args := []interface{}{providerID}
	conditions, args = schoolScope(conditions, args, schoolID, schoolSite)
	query := fmt.Sprintf(`SELECT %s FROM provider_availability WHERE %s ORDER BY day_of_week`,
		availabilityColumns, strings.Join(conditions, " AND "))

	var rows []models.ProviderAvailability
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return rows, nil
}

// Replace swaps a provider's availability for one site in a single
// transaction: the client always sends the complete set of work days.
func (r *AvailabilityRepository) Replace(ctx context.Context, providerID string, schoolID *string, schoolSite string, days []int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin availability tx: %w", err)
	}
	defer tx.Rollback()

	const clear = `DELETE FROM provider_availability
        WHERE provider_id = $1 AND LOWER(school_site) = LOWER($2)`
	if _, err := tx.ExecContext(ctx, clear, providerID, schoolSite); err != nil {
		return fmt.Errorf("clear availability: %w", err)
	}

	const insert = `INSERT INTO provider_availability (id, provider_id, school_id, school_site, day_of_week, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	now := time.Now().UTC()
	for _, day := range days {
		if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), providerID, schoolID, schoolSite, day, now); err != nil {
			return fmt.Errorf("insert availability: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit availability: %w", err)
	}
	return nil
}
