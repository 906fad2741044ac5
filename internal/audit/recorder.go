package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"opsdash/internal/logger"
	"opsdash/internal/metrics"
	"opsdash/pkg/types"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultPageSize 审计日志每页条数
const DefaultPageSize = 50

// Recorder 审计日志记录器：同步写入，失败即返回错误，从不静默丢弃
type Recorder struct {
	db     *gorm.DB
	logger *zap.Logger

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewRecorder 创建审计记录器
func NewRecorder(db *gorm.DB, zl *zap.Logger) *Recorder {
	return &Recorder{
		db:     db,
		logger: logger.OrNop(zl),
		now:    time.Now,
	}
}

// Record 追加一条审计记录。时间戳在写入时分配（UTC），在进程内单调不减。
func (r *Recorder) Record(ctx context.Context, e Entry) (*Record, error) {
	if !e.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrWriteFailed, e.Category)
	}

	rec := &Record{
		Category:    e.Category,
		Description: e.Description,
		IPAddress:   clip(e.Origin.Address, maxIPAddressLen),
		UserAgent:   clip(e.Origin.UserAgent, maxUserAgentLen),
		CreatedAt:   r.timestamp(),
	}
	if e.Actor != nil {
		id := e.Actor.ID
		rec.UserID = &id
		rec.Username = e.Actor.Username
	}
	if len(e.Metadata) > 0 || e.Origin.RequestID != "" {
		rec.Metadata = make(map[string]any, len(e.Metadata)+1)
		for k, v := range e.Metadata {
			rec.Metadata[k] = v
		}
		if e.Origin.RequestID != "" {
			rec.Metadata["request_id"] = e.Origin.RequestID
		}
	}

	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		logger.Attach(ctx, r.logger).Error("审计日志写入失败",
			zap.String("category", string(e.Category)),
			zap.String("description", e.Description),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return rec, nil
}

func (r *Recorder) timestamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.now().UTC()
	if t.Before(r.last) {
		t = r.last
	}
	r.last = t
	return t
}

// Query 审计日志查询条件
type Query struct {
	Category Category
	UserID   string
	Since    *time.Time
	Until    *time.Time
	Page     int
	PageSize int
}

// Query 分页查询，按时间倒序
func (r *Recorder) Query(ctx context.Context, q Query) ([]Record, *types.PaginationResponse, error) {
	page := types.PaginationRequest{Page: q.Page, PageSize: q.PageSize}.Normalize(DefaultPageSize)

	db := r.db.WithContext(ctx).Model(&Record{})
	if q.Category != "" {
		db = db.Where("category = ?", q.Category)
	}
	if q.UserID != "" {
		db = db.Where("user_id = ?", q.UserID)
	}
	if q.Since != nil {
		db = db.Where("created_at >= ?", q.Since.UTC())
	}
	if q.Until != nil {
		db = db.Where("created_at <= ?", q.Until.UTC())
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	var records []Record
	err := db.Order("created_at DESC").Order("id DESC").
		Offset(page.Offset()).Limit(page.PageSize).
		Find(&records).Error
	if err != nil {
		return nil, nil, err
	}
	return records, types.NewPaginationResponse(page, total), nil
}

// Recent 某个用户最近的 limit 条记录
func (r *Recorder) Recent(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	var records []Record
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// ActivitySummary 用户最近 days 天内各分类的操作次数
func (r *Recorder) ActivitySummary(ctx context.Context, userID string, days int) (map[Category]int64, error) {
	if days <= 0 {
		days = 30
	}
	var rows []struct {
		Category Category
		Count    int64
	}
	since := r.now().UTC().AddDate(0, 0, -days)
	err := r.db.WithContext(ctx).
		Model(&Record{}).
		Select("category, COUNT(*) AS count").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Group("category").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	summary := make(map[Category]int64, len(rows))
	for _, row := range rows {
		summary[row.Category] = row.Count
	}
	return summary, nil
}
