package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
)

// SessionStore 会话存储（JWT吊销名单）
// 设计说明：
// 1. JWT无状态、无法撤回，登出/强制下线通过吊销名单实现
// 2. Key按Token哈希存储（revoked:{sha256}），避免完整Token落入Redis
// 3. TTL等于Token剩余有效期——Token自然过期后名单项自动清理，
//    名单大小有界
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore 创建会话存储
func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

// tokenKey Token的吊销名单键（存哈希不存原文）
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("revoked:%s", hex.EncodeToString(sum[:]))
}

// Revoke 吊销Token
// 使用场景：
// 1. 用户登出
// 2. Token泄露后强制失效
// ttl为Token剩余有效期，已过期的Token无需入名单
func (s *SessionStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, tokenKey(token), "revoked", ttl).Err(); err != nil {
		return apperrors.WrapWithCode(err, apperrors.ErrCodeRedisError, "吊销Token失败")
	}
	return nil
}

// IsRevoked 检查Token是否已吊销
func (s *SessionStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, tokenKey(token)).Result()
	if err != nil {
		return false, apperrors.WrapWithCode(err, apperrors.ErrCodeRedisError, "查询吊销名单失败")
	}
	return n > 0, nil
}
