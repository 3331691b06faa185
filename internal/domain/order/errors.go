package order

import (
	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
)

var (
	ErrOrderNotFound     = apperrors.ErrOrderNotFound
	ErrInvalidOrderState = apperrors.ErrInvalidOrderState
)
