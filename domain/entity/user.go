package entity

import "time"

// Role 用户角色
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid 判断角色是否合法
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher || r == RoleAdmin
}

// User Clerk 用户同步表
type User struct {
	ID        string `gorm:"primaryKey;size:64"` // Clerk user_id
	Email     string `gorm:"size:255"`
	Name      string `gorm:"size:100;index"`
	AvatarURL string `gorm:"size:500"`
	Role      Role   `gorm:"size:16;default:student;index"`
	Suspended bool   `gorm:"default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin 是否管理员
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
