// Package servicestatus 缓存每个 systemd 服务最近一次观测到的状态。
// 缓存仅用于展示，同名服务的并发写入以最后一次为准。
package servicestatus

import (
	"context"
	"errors"
	"time"

	"opsdash/internal/command"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record 服务状态记录，每个服务名一行
type Record struct {
	ID          uint                 `gorm:"primaryKey;autoIncrement" json:"id"`
	ServiceName string               `gorm:"type:varchar(50);uniqueIndex;not null" json:"service_name"`
	Status      command.ServiceState `gorm:"type:varchar(20);not null" json:"status"`
	LastChecked time.Time            `gorm:"not null" json:"last_checked"`
	AutoStart   bool                 `gorm:"not null;default:false" json:"auto_start"`
}

// TableName 指定表名
func (Record) TableName() string {
	return "service_status"
}

// Store 服务状态存储
type Store struct {
	db *gorm.DB
}

// NewStore 创建状态存储
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Upsert 按服务名插入或更新状态与检查时间，auto_start 保持不变
func (s *Store) Upsert(ctx context.Context, service string, status command.ServiceState, checkedAt time.Time) error {
	rec := Record{
		ServiceName: service,
		Status:      status,
		LastChecked: checkedAt.UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "service_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_checked"}),
	}).Create(&rec).Error
}

// SetAutoStart 记录 enable/disable 的结果；尚无记录时以 unknown 状态创建
func (s *Store) SetAutoStart(ctx context.Context, service string, enabled bool, at time.Time) error {
	rec := Record{
		ServiceName: service,
		Status:      command.StateUnknown,
		LastChecked: at.UTC(),
		AutoStart:   enabled,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "service_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"auto_start"}),
	}).Create(&rec).Error
}

// Get 返回最近一次已知状态；从未观测过的服务返回 unknown
func (s *Store) Get(ctx context.Context, service string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("service_name = ?", service).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Record{ServiceName: service, Status: command.StateUnknown}, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List 按服务名列出全部记录
func (s *Store) List(ctx context.Context) ([]Record, error) {
	var records []Record
	err := s.db.WithContext(ctx).Order("service_name ASC").Find(&records).Error
	return records, err
}
