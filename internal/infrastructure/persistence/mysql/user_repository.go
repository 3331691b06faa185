package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ayo-anu/ecommerce-backend/internal/domain/user"
	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
)

// UserModel 用户表（backend服务所有，网关只读）
type UserModel struct {
	ID           uint   `gorm:"primaryKey"`
	Email        string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:128;not null"`
	IsActive     bool   `gorm:"not null;default:true"`
	IsStaff      bool   `gorm:"not null;default:false"`
	CreatedAt    time.Time
}

// TableName 指定表名
func (UserModel) TableName() string { return "users" }

// userRepository 用户仓储MySQL实现
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储实例
func NewUserRepository(db *gorm.DB) user.Repository {
	return &userRepository{db: db}
}

// GetByEmail 按邮箱查询用户
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var model UserModel
	err := getDB(ctx, r.db).Where("email = ?", email).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrUserNotFound
		}
		return nil, apperrors.Wrap(err, "查询用户失败")
	}
	return &user.User{
		ID:           model.ID,
		Email:        model.Email,
		PasswordHash: model.PasswordHash,
		IsActive:     model.IsActive,
		IsStaff:      model.IsStaff,
		CreatedAt:    model.CreatedAt,
	}, nil
}
