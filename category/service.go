package category

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"goflare.io/storefront/models"
)

var ErrIndexOutOfRange = errors.New("category index out of range")

// Reorderer holds the visible category order and keeps it in step with the backend.
type Reorderer struct {
	repo   Repository
	logger *zap.Logger

	ops sync.Mutex

	mu         sync.RWMutex
	categories []models.Category
}

func NewReorderer(repo Repository, logger *zap.Logger) *Reorderer {
	return &Reorderer{
		repo:   repo,
		logger: logger,
	}
}

// Categories returns a copy of the visible order.
func (r *Reorderer) Categories() []models.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Category(nil), r.categories...)
}

func (r *Reorderer) Load(ctx context.Context) error {
	r.ops.Lock()
	defer r.ops.Unlock()

	categories, err := r.repo.List(ctx)
	if err != nil {
		return err
	}

	r.set(categories)
	return nil
}

// Move shows the category at from in position to right away, then sends the full order.
// The previous order is restored when the backend rejects it.
func (r *Reorderer) Move(ctx context.Context, from, to int) error {
	r.ops.Lock()
	defer r.ops.Unlock()

	previous := r.Categories()
	if from < 0 || from >= len(previous) || to < 0 || to >= len(previous) {
		return fmt.Errorf("%w: move %d to %d of %d", ErrIndexOutOfRange, from, to, len(previous))
	}
	if from == to {
		return nil
	}

	moved := move(previous, from, to)
	r.set(moved)

	if err := r.repo.Reorder(ctx, models.CategoryIDs(moved)); err != nil {
		r.logger.Error("Failed to move category, restoring previous order",
			zap.String("category_id", previous[from].ID),
			zap.Int("from", from),
			zap.Int("to", to),
			zap.Error(err))
		r.set(previous)
		return err
	}

	return nil
}

func (r *Reorderer) set(categories []models.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories = categories
}

// move returns a new slice with the element at from shifted to to and positions renumbered.
func move(categories []models.Category, from, to int) []models.Category {
	out := make([]models.Category, 0, len(categories))
	out = append(out, categories[:from]...)
	out = append(out, categories[from+1:]...)

	picked := categories[from]
	out = append(out[:to], append([]models.Category{picked}, out[to:]...)...)

	for i := range out {
		out[i].Position = i
	}
	return out
}
