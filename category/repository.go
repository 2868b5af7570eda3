package category

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"goflare.io/storefront/models"
)

const (
	listCacheKey = "categories:ordered"
	cacheTTL     = 30 * time.Minute
)

var _ Repository = (*repository)(nil)

type Repository interface {
	List(ctx context.Context) ([]models.Category, error)
	Reorder(ctx context.Context, ids []string) error
}

// Gateway is the part of the backend client the repository needs.
type Gateway interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	ReorderCategories(ctx context.Context, ids []string) error
}

type repository struct {
	gateway Gateway
	cache   *redis.Client
	logger  *zap.Logger
}

// NewRepository reads categories through gw. When cache is non-nil the ordered list is kept
// there for 30 minutes and dropped on every reorder.
func NewRepository(gw Gateway, cache *redis.Client, logger *zap.Logger) Repository {
	return &repository{
		gateway: gw,
		cache:   cache,
		logger:  logger,
	}
}

func (r *repository) List(ctx context.Context) ([]models.Category, error) {
	// 嘗試從快取中獲取
	if categories, found := r.cached(ctx); found {
		return categories, nil
	}

	categories, err := r.gateway.ListCategories(ctx)
	if err != nil {
		r.logger.Error("Failed to list categories", zap.Error(err))
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	// 更新快取
	r.store(ctx, categories)

	return categories, nil
}

func (r *repository) Reorder(ctx context.Context, ids []string) error {
	if err := r.gateway.ReorderCategories(ctx, ids); err != nil {
		r.logger.Error("Failed to reorder categories", zap.Int("count", len(ids)), zap.Error(err))
		return fmt.Errorf("failed to reorder categories: %w", err)
	}

	// 從快取中刪除
	if r.cache != nil {
		if err := r.cache.Del(ctx, listCacheKey).Err(); err != nil {
			r.logger.Warn("Failed to delete categories from cache", zap.Error(err))
		}
	}

	return nil
}

func (r *repository) cached(ctx context.Context) ([]models.Category, bool) {
	if r.cache == nil {
		return nil, false
	}

	data, err := r.cache.Get(ctx, listCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.logger.Warn("Failed to get categories from cache", zap.Error(err))
		return nil, false
	}

	var categories []models.Category
	if err := json.Unmarshal(data, &categories); err != nil {
		r.logger.Warn("Failed to decode cached categories", zap.Error(err))
		return nil, false
	}
	return categories, true
}

func (r *repository) store(ctx context.Context, categories []models.Category) {
	if r.cache == nil {
		return
	}

	data, err := json.Marshal(categories)
	if err != nil {
		r.logger.Warn("Failed to encode categories", zap.Error(err))
		return
	}
	if err := r.cache.Set(ctx, listCacheKey, data, cacheTTL).Err(); err != nil {
		r.logger.Warn("Failed to cache categories", zap.Error(err))
	}
}
