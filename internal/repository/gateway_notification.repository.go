package repository

import (
	"context"

	"github.com/nimasrn/matatu-pay/internal/model"
	"github.com/nimasrn/matatu-pay/pkg/pg"
	pkgerrors "github.com/pkg/errors"
)

type GatewayNotificationRepository struct {
	*pg.DB
}

func NewGatewayNotificationRepository(db *pg.DB) *GatewayNotificationRepository {
	return &GatewayNotificationRepository{
		db,
	}
}

func (r *GatewayNotificationRepository) Create(ctx context.Context, n *model.GatewayNotification) (*model.GatewayNotification, error) {
	entity := toGatewayNotificationEntity(n)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, pkgerrors.Wrapf(err, "record notification for %s", n.CheckoutID)
	}

	return toGatewayNotificationModel(entity), nil
}

func (r *GatewayNotificationRepository) ListByCheckoutID(ctx context.Context, checkoutID string) ([]*model.GatewayNotification, error) {
	var entities []*GatewayNotificationEntity
	err := r.Read(ctx).
		Where("checkout_id = ?", checkoutID).
		Order("id ASC").
		Find(&entities).Error
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "list notifications for %s", checkoutID)
	}
	return toGatewayNotificationModels(entities), nil
}
