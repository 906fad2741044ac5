package audit

import (
	"errors"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrWriteFailed 审计存储拒绝或无法完成写入
	ErrWriteFailed = errors.New("audit: write failed")
	// ErrImmutable 审计记录只能追加，不允许更新或删除
	ErrImmutable = errors.New("audit: records are immutable")
)

const (
	maxIPAddressLen = 45
	maxUserAgentLen = 255
)

// Record 审计日志记录，写入后不可修改
type Record struct {
	ID          uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	Category    Category          `gorm:"type:varchar(50);not null;index:idx_audit_category" json:"action"`
	Description string            `gorm:"type:text;not null" json:"description"`
	IPAddress   string            `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent   string            `gorm:"type:varchar(255)" json:"user_agent"`
	UserID      *string           `gorm:"type:varchar(36);index:idx_audit_user" json:"user_id,omitempty"`
	Username    string            `gorm:"type:varchar(80)" json:"username,omitempty"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;index:idx_audit_created_at" json:"timestamp"`
}

// TableName 指定表名
func (Record) TableName() string {
	return "audit_logs"
}

// BeforeUpdate GORM 钩子：拒绝更新
func (r *Record) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutable
}

// BeforeDelete GORM 钩子：拒绝删除
func (r *Record) BeforeDelete(tx *gorm.DB) error {
	return ErrImmutable
}

// Origin 请求来源，仅作为元数据记录
type Origin struct {
	Address   string
	UserAgent string
	RequestID string
}

// Actor 发起操作的身份；系统发起或认证前失败时为空
type Actor struct {
	ID       string
	Username string
}

// Entry 一次审计写入的输入
type Entry struct {
	Category    Category
	Description string
	Origin      Origin
	Actor       *Actor
	Metadata    map[string]any
}

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
