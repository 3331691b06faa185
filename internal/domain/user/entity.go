package user

import (
	"time"
)

// User 用户实体
// 网关只读用户表做登录校验和身份签发；
// 用户CRUD归backend服务所有（共享同一事务库）
type User struct {
	ID           uint
	Email        string
	PasswordHash string // bcrypt哈希
	IsActive     bool
	IsStaff      bool // 运维身份（熔断器管理等admin scope）
	CreatedAt    time.Time
}

// Scopes 签发Token时的授权范围
func (u *User) Scopes() []string {
	scopes := []string{"user"}
	if u.IsStaff {
		scopes = append(scopes, "admin")
	}
	return scopes
}
