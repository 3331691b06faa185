package user

import (
	"context"

	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
)

// Repository 用户仓储接口（只读）
type Repository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// ErrUserNotFound 用户不存在
// 对外统一报"邮箱或密码错误"，不泄露邮箱是否注册
var ErrUserNotFound = apperrors.New(apperrors.ErrCodeNotFound, "用户不存在")
