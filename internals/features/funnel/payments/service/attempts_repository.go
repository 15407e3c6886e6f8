package service

import (
	"context"

	"gorm.io/gorm"

	"funnel_backend/internals/features/funnel/payments/model"
)

/* ====================== PAYMENT ATTEMPTS ====================== */

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) Record(ctx context.Context, a *model.PaymentAttemptModel) error {
	return r.DB.WithContext(ctx).Create(a).Error
}

// List returns one page in the given order plus the total row count.
// order must come from a column whitelist.
func (r *AttemptRepository) List(ctx context.Context, offset, limit int, order string) ([]model.PaymentAttemptModel, int64, error) {
	var total int64
	q := r.DB.WithContext(ctx).Model(&model.PaymentAttemptModel{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	rows := make([]model.PaymentAttemptModel, 0, limit)
	if err := q.
		Order(order).
		Offset(offset).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
