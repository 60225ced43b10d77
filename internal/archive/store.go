package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/deepresearch/internal/database"
	"github.com/BaSui01/deepresearch/research"
	"github.com/BaSui01/deepresearch/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound 表示归档中没有该运行。
var ErrNotFound = errors.New("run not found")

const saveRetries = 3

// RunRecord 是一次结束的研究运行。
type RunRecord struct {
	ID           uint            `gorm:"primaryKey"`
	RunID        string          `gorm:"size:64;uniqueIndex;not null"`
	Outcome      string          `gorm:"size:32;index;not null"`
	Question     string          `gorm:"type:text"`
	Brief        string          `gorm:"type:text"`
	Text         string          `gorm:"type:text"`
	Notes        []string        `gorm:"serializer:json"`
	RawNotes     []string        `gorm:"serializer:json"`
	Conversation []types.Message `gorm:"serializer:json"`
	Iterations   int
	ReportTokens int
	Error        string    `gorm:"type:text"`
	StartedAt    time.Time `gorm:"index"`
	FinishedAt   time.Time
	CreatedAt    time.Time
}

// TableName 固定表名。
func (RunRecord) TableName() string { return "research_runs" }

// Duration 返回运行耗时。
func (r RunRecord) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Store 基于 GORM 的运行归档，实现 research.RunRecorder。
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

var _ research.RunRecorder = (*Store)(nil)

// NewStore 建表并返回 Store。
func NewStore(pool *database.PoolManager, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("migrate run archive: %w", err)
	}
	return &Store{pool: pool, logger: logger.With(zap.String("component", "archive"))}, nil
}

// Save 写入一条记录。
func (s *Store) Save(ctx context.Context, rec *RunRecord) error {
	if rec == nil || rec.RunID == "" {
		return types.NewError(types.ErrInvalidRequest, "run record requires a run id")
	}
	err := s.pool.WithTransactionRetry(ctx, saveRetries, func(tx *gorm.DB) error {
		return tx.Create(rec).Error
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.RunID, err)
	}
	s.logger.Debug("run archived",
		zap.String("run_id", rec.RunID),
		zap.String("outcome", rec.Outcome))
	return nil
}

// Get 按 run id 读取记录。
func (s *Store) Get(ctx context.Context, runID string) (*RunRecord, error) {
	var rec RunRecord
	err := s.pool.DB().WithContext(ctx).Where("run_id = ?", runID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &rec, nil
}

// List 按开始时间倒序返回最近的记录，limit <= 0 时返回全部。
func (s *Store) List(ctx context.Context, limit int) ([]RunRecord, error) {
	q := s.pool.DB().WithContext(ctx).Order("started_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []RunRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return recs, nil
}

// RecordRun 将 Orchestrator 的运行结果写入归档。
func (s *Store) RecordRun(ctx context.Context, res *research.Result, runErr error) error {
	if res == nil {
		return types.NewError(types.ErrInvalidRequest, "run result is nil")
	}
	return s.Save(ctx, FromResult(res, runErr))
}

// FromResult 将运行结果展平为归档记录。
func FromResult(res *research.Result, runErr error) *RunRecord {
	rec := &RunRecord{
		RunID:        res.RunID,
		Outcome:      string(res.Outcome),
		Brief:        res.State.ResearchBrief,
		Text:         res.Text,
		Notes:        res.State.Notes,
		RawNotes:     res.State.RawNotes,
		Conversation: res.State.Conversation,
		Iterations:   res.Iterations,
		ReportTokens: res.ReportTokens,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
	}
	for _, msg := range res.State.Conversation {
		if msg.Role == types.RoleUser {
			rec.Question = msg.Content
			break
		}
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return rec
}
