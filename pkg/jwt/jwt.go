package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
)

// Manager JWT管理器
// 设计说明：
// 1. Access Token短期有效（默认30分钟），减少泄露风险
// 2. 主动失效通过Redis吊销名单实现（见persistence/redis.SessionStore）：
//    JWT本身无状态、无法撤回，登出时按Token剩余有效期写入名单
// 3. 签名算法可配置（JWT_ALGORITHM），仅接受HMAC族，防止alg混淆攻击
type Manager struct {
	secret       string
	algorithm    string        // HS256 | HS384 | HS512
	accessExpire time.Duration // Access Token有效期
}

// NewManager 创建JWT管理器
func NewManager(secret, algorithm string, accessExpire time.Duration) *Manager {
	if algorithm == "" {
		algorithm = "HS256"
	}
	return &Manager{
		secret:       secret,
		algorithm:    algorithm,
		accessExpire: accessExpire,
	}
}

// Claims 自定义JWT Claims
// 学习要点：
// 1. 嵌入jwt.RegisteredClaims获取标准字段（sub、exp、iat、nbf）
// 2. Subject即用户ID，是吊销名单和限流的主体标识
type Claims struct {
	Email  string   `json:"email,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// Token 签发结果
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"` // 秒
}

// signingMethod 解析配置的签名算法
func (m *Manager) signingMethod() jwt.SigningMethod {
	switch m.algorithm {
	case "HS384":
		return jwt.SigningMethodHS384
	case "HS512":
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

// Generate 签发Access Token
//
// 参数：
//   - subject: 用户ID
//   - email: 用户邮箱
//   - scopes: 授权范围
func (m *Manager) Generate(subject, email string, scopes []string) (*Token, error) {
	now := time.Now()

	claims := Claims{
		Email:  email,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessExpire)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "api-gateway",
		},
	}

	token := jwt.NewWithClaims(m.signingMethod(), claims)
	signed, err := token.SignedString([]byte(m.secret))
	if err != nil {
		return nil, apperrors.Wrap(err, "签发Token失败")
	}

	return &Token{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresIn:   int64(m.accessExpire.Seconds()),
	}, nil
}

// Parse 解析并验证Token
// 验证内容：签名算法族、签名、过期时间（exp）、生效时间（nbf）
func (m *Manager) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// 只接受HMAC族，防止下发RS256等算法的伪造Token
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrInvalidToken
		}
		return []byte(m.secret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}

// RemainingTTL 计算Token的剩余有效时长（吊销名单的TTL依据）
// Token已过期或无exp时返回0
func (m *Manager) RemainingTTL(claims *Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return 0
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl < 0 {
		return 0
	}
	return ttl
}
