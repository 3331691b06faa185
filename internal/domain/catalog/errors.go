package catalog

import (
	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
)

// 领域错误（复用全局错误码空间）
var (
	ErrProductNotFound   = apperrors.ErrProductNotFound
	ErrInsufficientStock = apperrors.ErrInsufficientStock
)
