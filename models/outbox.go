package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/steelstorehq/store_backend/config"
	"github.com/steelstorehq/store_backend/utils"
	"gorm.io/gorm"
)

// DomainEventRecord is the transactional outbox row. RecordDomainEvent writes
// it inside the caller's DB transaction but does NOT publish; the dispatcher
// publishes after commit, so an event can never describe a write that was
// rolled back.
type DomainEventRecord struct {
	ID               int        `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	EventType        string     `gorm:"size:50;not null;index" json:"event_type"`
	ReferenceId      int        `gorm:"index;not null" json:"reference_id"`
	ReferenceType    string     `gorm:"size:10;not null" json:"reference_type"`
	OccurredAt       time.Time  `gorm:"index;not null" json:"occurred_at"`
	Payload          []byte     `gorm:"type:blob" json:"payload"`
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// RecordDomainEvent appends an outbox row carrying the new derived totals.
// Consumers must treat the event as a notification to re-read current state,
// not as the state itself.
func RecordDomainEvent(ctx context.Context, tx *gorm.DB, eventType string, referenceId int, referenceType string, payload interface{}) error {
	var payloadBytes []byte
	var err error
	if payload != nil {
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	record := DomainEventRecord{
		EventType:     eventType,
		ReferenceId:   referenceId,
		ReferenceType: referenceType,
		OccurredAt:    time.Now().UTC(),
		Payload:       payloadBytes,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func ConvertToDomainEvent(record DomainEventRecord) config.DomainEvent {
	return config.DomainEvent{
		ID:            record.ID,
		EventType:     record.EventType,
		ReferenceId:   record.ReferenceId,
		ReferenceType: record.ReferenceType,
		OccurredAt:    record.OccurredAt,
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}
