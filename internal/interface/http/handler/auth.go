package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ayo-anu/ecommerce-backend/internal/domain/user"
	"github.com/ayo-anu/ecommerce-backend/internal/infrastructure/persistence/redis"
	"github.com/ayo-anu/ecommerce-backend/internal/interface/http/dto"
	apperrors "github.com/ayo-anu/ecommerce-backend/pkg/errors"
	"github.com/ayo-anu/ecommerce-backend/pkg/jwt"
	"github.com/ayo-anu/ecommerce-backend/pkg/response"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	jwtManager   *jwt.Manager
	sessionStore *redis.SessionStore
	userRepo     user.Repository
	log          *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(jwtManager *jwt.Manager, sessionStore *redis.SessionStore, userRepo user.Repository, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		jwtManager:   jwtManager,
		sessionStore: sessionStore,
		userRepo:     userRepo,
		log:          log,
	}
}

// Login 登录签发Token
// POST /auth/login
//
// 校验流程：
// 1. 按邮箱查用户（网关只读backend的用户表）
// 2. bcrypt比对密码哈希
// 3. 签发JWT（subject=用户ID，scopes按用户身份）
//
// 安全要点:无论"用户不存在"还是"密码错误"都返回同一错误——
// 不向探测者泄露邮箱是否注册
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.ErrBindError)
		return
	}

	u, err := h.userRepo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Error(c, apperrors.ErrInvalidPassword)
		return
	}

	if !u.IsActive {
		response.Error(c, apperrors.ErrForbidden)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		response.Error(c, apperrors.ErrInvalidPassword)
		return
	}

	token, err := h.jwtManager.Generate(formatUserID(u.ID), u.Email, u.Scopes())
	if err != nil {
		response.Error(c, err)
		return
	}

	h.log.Info("user logged in",
		zap.String("correlation_id", c.GetString("correlation_id")),
		zap.Uint("user_id", u.ID))

	c.JSON(http.StatusOK, dto.LoginResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresIn:   token.ExpiresIn,
	})
}

// Logout 登出（吊销当前Token）
// POST /auth/logout
// Token按剩余有效期写入吊销名单，立即全网关生效
func (h *AuthHandler) Logout(c *gin.Context) {
	tokenString := c.GetString("token")
	claims, err := h.jwtManager.Parse(tokenString)
	if err != nil {
		response.Error(c, err)
		return
	}

	ttl := h.jwtManager.RemainingTTL(claims)
	if err := h.sessionStore.Revoke(c.Request.Context(), tokenString, ttl); err != nil {
		response.Error(c, err)
		return
	}

	h.log.Info("token revoked",
		zap.String("correlation_id", c.GetString("correlation_id")),
		zap.String("user_id", claims.Subject))

	c.Status(http.StatusNoContent)
}

// formatUserID 用户ID转JWT subject
func formatUserID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// Me 查询当前身份
// GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	scopes, _ := c.Get("scopes")
	list, _ := scopes.([]string)

	response.Success(c, dto.MeResponse{
		UserID: c.GetString("user_id"),
		Email:  c.GetString("email"),
		Scopes: list,
	})
}
