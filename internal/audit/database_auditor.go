package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseAuditor 数据库审计器
// 把审计事件落到 change_logs 表
type DatabaseAuditor struct{}

// NewDatabaseAuditor 创建数据库审计器
func NewDatabaseAuditor() Auditor {
	return &DatabaseAuditor{}
}

// Record 写入审计记录
// 传入的 tx 决定记录是否与业务变更同事务提交
func (a *DatabaseAuditor) Record(ctx context.Context, tx *gorm.DB, entry *Entry) error {
	if tx == nil {
		return fmt.Errorf("audit record requires a database handle")
	}

	record := &model.ChangeLog{
		RequestID: entry.RequestID,
		StepID:    entry.StepID,
		Action:    entry.Action,
		ActorID:   entry.ActorID,
		ActorName: entry.ActorName,
		TargetID:  entry.TargetID,
		Comment:   entry.Comment,
	}

	if entry.OldValue != nil {
		data, err := json.Marshal(entry.OldValue)
		if err != nil {
			return fmt.Errorf("failed to marshal audit old value: %w", err)
		}
		record.OldValue = datatypes.JSON(data)
	}
	if entry.NewValue != nil {
		data, err := json.Marshal(entry.NewValue)
		if err != nil {
			return fmt.Errorf("failed to marshal audit new value: %w", err)
		}
		record.NewValue = datatypes.JSON(data)
	}

	if err := tx.WithContext(ctx).Create(record).Error; err != nil {
		logger.Errorf("Failed to create change log (action=%s, actor=%s): %v",
			entry.Action, entry.ActorID, err)
		return fmt.Errorf("failed to create change log: %w", err)
	}

	return nil
}
