package models

import (
	"encoding/json"
	"time"

	"github.com/steelstorehq/store_backend/utils"
	"gorm.io/gorm"
)

// History is the append-only change log: one row per mutating operation with
// before/after snapshots. Forced stock overrides and audit repairs are
// required to land here so they stay reviewable.
type History struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ActionType    string    `gorm:"size:20;not null" json:"action_type"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceId   int       `gorm:"index" json:"reference_id"`
	ReferenceType string    `gorm:"size:10" json:"reference_type"`
	UserId        int       `gorm:"index" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func CreateHistory(tx *gorm.DB, actionType string, referenceId int, referenceType string, before interface{}, after interface{}, description string) error {
	b, _ := json.Marshal(before)
	a, _ := json.Marshal(after)

	ctx := tx.Statement.Context
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	history := History{
		ActionType:    actionType,
		Before:        string(b),
		After:         string(a),
		Description:   description,
		ReferenceId:   referenceId,
		ReferenceType: referenceType,
		UserId:        userId,
		UserName:      userName,
		CorrelationId: correlationId,
	}
	return tx.Create(&history).Error
}
