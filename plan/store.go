package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BaSui01/planflow/types"
	"gorm.io/gorm"
)

// Store 计划与聊天记录的持久层
type Store struct {
	db *gorm.DB
}

// NewStore 创建 Store 并自动迁移表结构
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Record{}, &ChatMessage{}); err != nil {
		return nil, fmt.Errorf("auto migrate plan tables: %w", err)
	}
	return &Store{db: db}, nil
}

// SavePlan 持久化一条已结构化计划
func (s *Store) SavePlan(ctx context.Context, planID, filename, text string, pageCount int, summary *Summary) (*Record, error) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}

	record := &Record{
		PlanID:      planID,
		Filename:    filename,
		Text:        text,
		SummaryJSON: string(payload),
		PageCount:   pageCount,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("save plan %s: %w", planID, err)
	}
	return record, nil
}

// GetPlan 按对外 ID 取回计划记录
func (s *Store) GetPlan(ctx context.Context, planID string) (*Record, error) {
	var record Record
	err := s.db.WithContext(ctx).Where("plan_id = ?", planID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrPlanNotFound, fmt.Sprintf("plan %s not found", planID)).WithHTTPStatus(404)
	}
	if err != nil {
		return nil, fmt.Errorf("get plan %s: %w", planID, err)
	}
	return &record, nil
}

// Summary 反序列化记录内的计划摘要
func (r *Record) Summary() (*Summary, error) {
	var summary Summary
	if err := json.Unmarshal([]byte(r.SummaryJSON), &summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary of plan %s: %w", r.PlanID, err)
	}
	return &summary, nil
}

// AppendMessage 追加一条聊天记录
func (s *Store) AppendMessage(ctx context.Context, planID, role, content string) error {
	msg := &ChatMessage{PlanID: planID, Role: role, Content: content}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("append chat message for plan %s: %w", planID, err)
	}
	return nil
}

// AppendExchange 在同一事务内写入一轮问答，保证两条记录要么都落库要么都不落
func (s *Store) AppendExchange(ctx context.Context, planID, question, answer string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ChatMessage{PlanID: planID, Role: "user", Content: question}).Error; err != nil {
			return err
		}
		return tx.Create(&ChatMessage{PlanID: planID, Role: "assistant", Content: answer}).Error
	})
	if err != nil {
		return fmt.Errorf("append chat exchange for plan %s: %w", planID, err)
	}
	return nil
}

// History 按时间顺序返回某计划最近的聊天记录
func (s *Store) History(ctx context.Context, planID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	var msgs []ChatMessage
	err := s.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("load chat history for plan %s: %w", planID, err)
	}

	// 倒序取最近 N 条，再翻回时间顺序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
