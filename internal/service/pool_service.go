package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/munisalud/piscinas-api/internal/models"
	"github.com/munisalud/piscinas-api/internal/repository"
	appErrors "github.com/munisalud/piscinas-api/pkg/errors"
	"github.com/munisalud/piscinas-api/pkg/export"
)

const statisticsCacheKey = "pools:statistics:by_state"

type poolRepository interface {
	Create(ctx context.Context, pool *models.Pool) error
	FindByID(ctx context.Context, id int64) (*models.Pool, error)
	List(ctx context.Context) ([]models.Pool, error)
	ListByState(ctx context.Context, state models.PoolState) ([]models.Pool, error)
	ListByDistrict(ctx context.Context, district string) ([]models.Pool, error)
	ListFiltered(ctx context.Context, filter models.PoolFilter) ([]models.Pool, error)
	CountByState(ctx context.Context) ([]models.StateCount, error)
	ExistsByFileNumber(ctx context.Context, fileNumber string, excludeID int64) (bool, error)
	Update(ctx context.Context, pool *models.Pool) error
}

// CreatePoolRequest is the payload for registering a pool facility.
type CreatePoolRequest struct {
	FileNumber               string       `json:"file_number" validate:"required,max=50"`
	LegalName                string       `json:"legal_name" validate:"required,max=255"`
	CommercialName           *string      `json:"commercial_name"`
	PoolType                 string       `json:"pool_type" validate:"required,max=50"`
	Address                  string       `json:"address" validate:"required"`
	District                 string       `json:"district" validate:"required,max=100"`
	Capacity                 int          `json:"capacity" validate:"gte=0"`
	AreaM2                   float64      `json:"area_m2" validate:"gte=0"`
	VolumeM3                 float64      `json:"volume_m3" validate:"gte=0"`
	ApprovalResolutionNumber *string      `json:"approval_resolution_number"`
	ApprovalDate             *models.Date `json:"approval_date"`
	State                    string       `json:"state"`
	Observations             *string      `json:"observations"`
	ExpirationDate           *models.Date `json:"expiration_date"`
	LastInspectionDate       *models.Date `json:"last_inspection_date"`
	CurrentState             string       `json:"current_state"`
	Latitude                 *float64     `json:"latitude"`
	Longitude                *float64     `json:"longitude"`
	ImageURL                 *string      `json:"image_url" validate:"omitempty,url"`
	Rating                   *float64     `json:"rating" validate:"omitempty,gte=1,lte=5"`
}

// PoolService handles pool registry use-cases and query filtering.
type PoolService struct {
	repo      poolRepository
	cache     *repository.CacheRepository
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewPoolService constructs the pool service.
func NewPoolService(repo poolRepository, cache *repository.CacheRepository, validate *validator.Validate, logger *zap.Logger, statisticsTTL time.Duration) *PoolService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if statisticsTTL <= 0 {
		statisticsTTL = 5 * time.Minute
	}
	return &PoolService{repo: repo, cache: cache, validator: validate, logger: logger, cacheTTL: statisticsTTL}
}

// WithMetrics attaches cache instrumentation to the service.
func (s *PoolService) WithMetrics(metrics *MetricsService) *PoolService {
	s.metrics = metrics
	return s
}

// Create validates and registers a new pool facility.
func (s *PoolService) Create(ctx context.Context, req CreatePoolRequest) (*models.Pool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pool payload")
	}

	pool, err := s.buildPool(req)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByFileNumber(ctx, pool.FileNumber, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate file number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file_number %q already registered", pool.FileNumber))
	}

	if err := s.repo.Create(ctx, pool); err != nil {
		// Concurrent create with the same file number loses the race past
		// the pre-check and hits the unique index instead.
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file_number %q already registered", pool.FileNumber))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create pool")
	}

	s.invalidateStatistics(ctx)
	return pool, nil
}

// Get returns one pool record by id.
func (s *PoolService) Get(ctx context.Context, id int64) (*models.Pool, error) {
	pool, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pool not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pool")
	}
	return pool, nil
}

// List returns every registered pool.
func (s *PoolService) List(ctx context.Context) ([]models.Pool, error) {
	pools, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pools")
	}
	return pools, nil
}

// ListByState returns pools whose approval state matches exactly. The
// value is matched as-is; a state no pool carries yields an empty list.
func (s *PoolService) ListByState(ctx context.Context, state string) ([]models.Pool, error) {
	pools, err := s.repo.ListByState(ctx, models.PoolState(state))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pools by state")
	}
	return pools, nil
}

// ListByDistrict returns pools in the district, case-insensitively.
func (s *PoolService) ListByDistrict(ctx context.Context, district string) ([]models.Pool, error) {
	pools, err := s.repo.ListByDistrict(ctx, district)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pools by district")
	}
	return pools, nil
}

// ListFiltered applies the combined filter. Enum-valued criteria are
// validated; district is free text.
func (s *PoolService) ListFiltered(ctx context.Context, filter models.PoolFilter) ([]models.Pool, error) {
	if filter.State != "" && !models.ValidPoolState(filter.State) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown state %q", filter.State))
	}
	if filter.CurrentState != "" && !models.ValidPoolCondition(filter.CurrentState) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown current_state %q", filter.CurrentState))
	}
	pools, err := s.repo.ListFiltered(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to filter pools")
	}
	return pools, nil
}

// Statistics returns grouped pool counts per approval state, served from
// cache when fresh. Cache failures degrade to direct reads.
func (s *PoolService) Statistics(ctx context.Context) ([]models.StateCount, error) {
	if s.cache != nil {
		var cached []models.StateCount
		if err := s.cache.Get(ctx, statisticsCacheKey, &cached); err == nil {
			s.observeCache(true)
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("statistics cache read failed", zap.Error(err))
		}
		s.observeCache(false)
	}

	counts, err := s.repo.CountByState(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute statistics")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, statisticsCacheKey, counts, s.cacheTTL); err != nil {
			s.logger.Warn("statistics cache write failed", zap.Error(err))
		}
	}
	return counts, nil
}

// ExportDataset flattens the full registry into a tabular dataset for CSV
// download.
func (s *PoolService) ExportDataset(ctx context.Context) (export.Dataset, error) {
	pools, err := s.repo.List(ctx)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export pools")
	}

	headers := []string{"file_number", "legal_name", "commercial_name", "pool_type", "address", "district",
		"capacity", "area_m2", "volume_m3", "state", "current_state", "last_inspection_date", "rating"}
	rows := make([]map[string]string, 0, len(pools))
	for _, pool := range pools {
		row := map[string]string{
			"file_number":   pool.FileNumber,
			"legal_name":    pool.LegalName,
			"pool_type":     pool.PoolType,
			"address":       pool.Address,
			"district":      pool.District,
			"capacity":      strconv.Itoa(pool.Capacity),
			"area_m2":       strconv.FormatFloat(pool.AreaM2, 'f', 2, 64),
			"volume_m3":     strconv.FormatFloat(pool.VolumeM3, 'f', 2, 64),
			"state":         string(pool.State),
			"current_state": string(pool.CurrentState),
		}
		if pool.CommercialName != nil {
			row["commercial_name"] = *pool.CommercialName
		}
		if pool.LastInspectionDate != nil {
			row["last_inspection_date"] = pool.LastInspectionDate.Format("2006-01-02")
		}
		if pool.Rating != nil {
			row["rating"] = strconv.FormatFloat(*pool.Rating, 'f', 1, 64)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}, nil
}

// Update fully replaces a pool record.
func (s *PoolService) Update(ctx context.Context, id int64, req CreatePoolRequest) (*models.Pool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pool payload")
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pool not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pool")
	}

	exists, err := s.repo.ExistsByFileNumber(ctx, req.FileNumber, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate file number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file_number %q already registered", req.FileNumber))
	}

	pool, err := s.buildPool(req)
	if err != nil {
		return nil, err
	}
	pool.ID = id

	if err := s.repo.Update(ctx, pool); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pool not found")
		}
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file_number %q already registered", req.FileNumber))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update pool")
	}

	s.invalidateStatistics(ctx)
	return pool, nil
}

func (s *PoolService) buildPool(req CreatePoolRequest) (*models.Pool, error) {
	state := models.StateResolutionValid
	if req.State != "" {
		if !models.ValidPoolState(req.State) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown state %q", req.State))
		}
		state = models.PoolState(req.State)
	}

	condition := models.ConditionHealthy
	if req.CurrentState != "" {
		if !models.ValidPoolCondition(req.CurrentState) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown current_state %q", req.CurrentState))
		}
		condition = models.PoolCondition(req.CurrentState)
	}

	return &models.Pool{
		FileNumber:               req.FileNumber,
		LegalName:                req.LegalName,
		CommercialName:           req.CommercialName,
		PoolType:                 req.PoolType,
		Address:                  req.Address,
		District:                 req.District,
		Capacity:                 req.Capacity,
		AreaM2:                   req.AreaM2,
		VolumeM3:                 req.VolumeM3,
		ApprovalResolutionNumber: req.ApprovalResolutionNumber,
		ApprovalDate:             req.ApprovalDate,
		State:                    state,
		Observations:             req.Observations,
		ExpirationDate:           req.ExpirationDate,
		LastInspectionDate:       req.LastInspectionDate,
		CurrentState:             condition,
		Latitude:                 req.Latitude,
		Longitude:                req.Longitude,
		ImageURL:                 req.ImageURL,
		Rating:                   req.Rating,
	}, nil
}

func (s *PoolService) observeCache(hit bool) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveCacheLookup(hit)
}

func (s *PoolService) invalidateStatistics(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statisticsCacheKey); err != nil {
		s.logger.Warn("statistics cache invalidation failed", zap.Error(err))
	}
}
