package jwt

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
)

const testSecret = "test-secret-key-at-least-32-chars!!"

// TestManager_GenerateAndParse 签发后可解析，字段完整
func TestManager_GenerateAndParse(t *testing.T) {
	m := NewManager(testSecret, "HS256", 30*time.Minute)

	token, err := m.Generate("42", "user@example.com", []string{"user", "admin"})
	if err != nil {
		t.Fatalf("签发失败: %v", err)
	}
	if token.TokenType != "bearer" {
		t.Errorf("期望token_type=bearer，实际%s", token.TokenType)
	}
	if token.ExpiresIn != 1800 {
		t.Errorf("期望expires_in=1800，实际%d", token.ExpiresIn)
	}

	claims, err := m.Parse(token.AccessToken)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if claims.Subject != "42" {
		t.Errorf("期望subject=42，实际%s", claims.Subject)
	}
	if claims.Email != "user@example.com" {
		t.Errorf("期望email完整，实际%s", claims.Email)
	}
	if len(claims.Scopes) != 2 {
		t.Errorf("期望2个scope，实际%v", claims.Scopes)
	}
}

// TestManager_ParseExpired 过期Token返回ErrTokenExpired
func TestManager_ParseExpired(t *testing.T) {
	m := NewManager(testSecret, "HS256", -time.Minute) // 签发即过期

	token, err := m.Generate("1", "a@b.c", nil)
	if err != nil {
		t.Fatalf("签发失败: %v", err)
	}

	_, err = m.Parse(token.AccessToken)
	if !errors.Is(err, apperrors.ErrTokenExpired) {
		t.Errorf("期望ErrTokenExpired，实际%v", err)
	}
}

// TestManager_ParseWrongSecret 密钥不匹配拒绝
func TestManager_ParseWrongSecret(t *testing.T) {
	m1 := NewManager(testSecret, "HS256", time.Hour)
	m2 := NewManager("another-secret-key-32-chars-long!!!", "HS256", time.Hour)

	token, _ := m1.Generate("1", "a@b.c", nil)

	_, err := m2.Parse(token.AccessToken)
	if !errors.Is(err, apperrors.ErrInvalidToken) {
		t.Errorf("期望ErrInvalidToken，实际%v", err)
	}
}

// TestManager_ParseGarbage 非法Token拒绝
func TestManager_ParseGarbage(t *testing.T) {
	m := NewManager(testSecret, "HS256", time.Hour)

	_, err := m.Parse("not.a.token")
	if !errors.Is(err, apperrors.ErrInvalidToken) {
		t.Errorf("期望ErrInvalidToken，实际%v", err)
	}
}

// TestManager_RemainingTTL 剩余有效期用于吊销名单TTL
func TestManager_RemainingTTL(t *testing.T) {
	m := NewManager(testSecret, "HS256", time.Hour)

	token, _ := m.Generate("1", "a@b.c", nil)
	claims, _ := m.Parse(token.AccessToken)

	ttl := m.RemainingTTL(claims)
	if ttl <= 59*time.Minute || ttl > time.Hour {
		t.Errorf("剩余TTL应接近1小时，实际%v", ttl)
	}
}
