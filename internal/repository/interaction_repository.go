package repository

import (
	"context"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
)

type InteractionRepository interface {
	Create(ctx context.Context, it model.Interaction) error
}
