package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/munisalud/piscinas-api/internal/models"
)

const pqUniqueViolation = "23505"

const poolColumns = `id, file_number, legal_name, commercial_name, pool_type, address, district,
	capacity, area_m2, volume_m3, approval_resolution_number, approval_date, state, observations,
	expiration_date, last_inspection_date, current_state, latitude, longitude, image_url, rating`

// PoolRepository manages persistence for pool facility records.
type PoolRepository struct {
	db *sqlx.DB
}

// NewPoolRepository constructs a PoolRepository.
func NewPoolRepository(db *sqlx.DB) *PoolRepository {
	return &PoolRepository{db: db}
}

// Create inserts a new pool record and assigns its surrogate id.
func (r *PoolRepository) Create(ctx context.Context, pool *models.Pool) error {
	const query = `INSERT INTO pools (file_number, legal_name, commercial_name, pool_type, address, district,
		capacity, area_m2, volume_m3, approval_resolution_number, approval_date, state, observations,
		expiration_date, last_inspection_date, current_state, latitude, longitude, image_url, rating)
		VALUES (:file_number, :legal_name, :commercial_name, :pool_type, :address, :district,
		:capacity, :area_m2, :volume_m3, :approval_resolution_number, :approval_date, :state, :observations,
		:expiration_date, :last_inspection_date, :current_state, :latitude, :longitude, :image_url, :rating)
		RETURNING id`

	rows, err := r.db.NamedQueryContext(ctx, query, pool)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create pool: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&pool.ID); err != nil {
			return fmt.Errorf("scan pool id: %w", err)
		}
	}
	return rows.Err()
}

// FindByID fetches a pool record by surrogate id.
func (r *PoolRepository) FindByID(ctx context.Context, id int64) (*models.Pool, error) {
	query := fmt.Sprintf("SELECT %s FROM pools WHERE id = $1 LIMIT 1", poolColumns)
	var pool models.Pool
	if err := r.db.GetContext(ctx, &pool, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find pool by id: %w", err)
	}
	return &pool, nil
}

// List returns every pool record ordered by id.
func (r *PoolRepository) List(ctx context.Context) ([]models.Pool, error) {
	query := fmt.Sprintf("SELECT %s FROM pools ORDER BY id ASC", poolColumns)
	pools := []models.Pool{}
	if err := r.db.SelectContext(ctx, &pools, query); err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	return pools, nil
}

// ListByState returns pools whose approval state matches exactly.
func (r *PoolRepository) ListByState(ctx context.Context, state models.PoolState) ([]models.Pool, error) {
	query := fmt.Sprintf("SELECT %s FROM pools WHERE state = $1 ORDER BY id ASC", poolColumns)
	pools := []models.Pool{}
	if err := r.db.SelectContext(ctx, &pools, query, state); err != nil {
		return nil, fmt.Errorf("list pools by state: %w", err)
	}
	return pools, nil
}

// ListByDistrict returns pools in the given district, matched
// case-insensitively.
func (r *PoolRepository) ListByDistrict(ctx context.Context, district string) ([]models.Pool, error) {
	query := fmt.Sprintf("SELECT %s FROM pools WHERE LOWER(district) = LOWER($1) ORDER BY id ASC", poolColumns)
	pools := []models.Pool{}
	if err := r.db.SelectContext(ctx, &pools, query, district); err != nil {
		return nil, fmt.Errorf("list pools by district: %w", err)
	}
	return pools, nil
}

// ListFiltered returns pools matching every criterion in the filter,
// AND-combined. District matches case-insensitively.
func (r *PoolRepository) ListFiltered(ctx context.Context, filter models.PoolFilter) ([]models.Pool, error) {
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.State != "" {
		conditions = append(conditions, fmt.Sprintf("state = $%d", len(args)+1))
		args = append(args, filter.State)
	}
	if filter.CurrentState != "" {
		conditions = append(conditions, fmt.Sprintf("current_state = $%d", len(args)+1))
		args = append(args, filter.CurrentState)
	}
	if filter.District != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(district) = LOWER($%d)", len(args)+1))
		args = append(args, filter.District)
	}

	query := fmt.Sprintf("SELECT %s FROM pools WHERE %s ORDER BY id ASC", poolColumns, strings.Join(conditions, " AND "))
	pools := []models.Pool{}
	if err := r.db.SelectContext(ctx, &pools, query, args...); err != nil {
		return nil, fmt.Errorf("list pools filtered: %w", err)
	}
	return pools, nil
}

// CountByState returns one (state, count) row per state value present.
func (r *PoolRepository) CountByState(ctx context.Context) ([]models.StateCount, error) {
	const query = `SELECT state, COUNT(id) AS count FROM pools GROUP BY state ORDER BY state ASC`
	counts := []models.StateCount{}
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count pools by state: %w", err)
	}
	return counts, nil
}

// ExistsByFileNumber checks whether a pool with the given file number
// exists, optionally excluding an id.
func (r *PoolRepository) ExistsByFileNumber(ctx context.Context, fileNumber string, excludeID int64) (bool, error) {
	query := "SELECT 1 FROM pools WHERE file_number = $1"
	args := []interface{}{fileNumber}
	if excludeID > 0 {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check file number: %w", err)
	}
	return true, nil
}

// Update replaces every mutable field of a pool record.
func (r *PoolRepository) Update(ctx context.Context, pool *models.Pool) error {
	const query = `UPDATE pools SET file_number = :file_number, legal_name = :legal_name,
		commercial_name = :commercial_name, pool_type = :pool_type, address = :address,
		district = :district, capacity = :capacity, area_m2 = :area_m2, volume_m3 = :volume_m3,
		approval_resolution_number = :approval_resolution_number, approval_date = :approval_date,
		state = :state, observations = :observations, expiration_date = :expiration_date,
		last_inspection_date = :last_inspection_date, current_state = :current_state,
		latitude = :latitude, longitude = :longitude, image_url = :image_url, rating = :rating
		WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, pool)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("update pool: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update pool: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
