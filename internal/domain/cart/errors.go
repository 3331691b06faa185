package cart

import (
	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
)

var (
	ErrCartNotFound = apperrors.ErrCartNotFound
	ErrEmptyCart    = apperrors.ErrEmptyCart
)
