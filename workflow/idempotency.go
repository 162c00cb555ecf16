package workflow

import (
	"context"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/steelstorehq/store_backend/models"
	"github.com/steelstorehq/store_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrIdempotencyInProgress = errors.New("idempotency in progress")

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// BeginIdempotency inserts STARTED. If SUCCEEDED exists, returns (true, nil)
// meaning "skip safely": the double-submitted request was already applied.
func BeginIdempotency(tx *gorm.DB, handlerName, messageId string) (skip bool, err error) {
	key := models.IdempotencyKey{
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return false, nil
	} else if !isDuplicateKeyErr(err) {
		return false, err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("handler_name = ? AND message_id = ?", handlerName, messageId).
		First(&existing).Error; err != nil {
		return false, err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return true, nil
	case models.IdempotencyStatusStarted:
		// If another worker is currently processing, tell the caller to retry.
		// If the row is stale, reclaim it by setting STARTED again.
		if time.Since(existing.UpdatedAt) < 5*time.Minute {
			return false, ErrIdempotencyInProgress
		}
		return false, resetIdempotencyKey(tx, existing.ID)
	default:
		return false, resetIdempotencyKey(tx, existing.ID)
	}
}

func resetIdempotencyKey(tx *gorm.DB, id int) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
}

func MarkIdempotencySucceeded(tx *gorm.DB, handlerName, messageId string) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("handler_name = ? AND message_id = ?", handlerName, messageId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "last_error": nil}).Error
}

// MarkIdempotencyFailed upserts a FAILED row with the last error. The STARTED
// row rolls back together with a failed posting transaction, so this must run
// on its own connection, outside the failed transaction. A replay of the same
// request id reclaims the row and retries.
func MarkIdempotencyFailed(db *gorm.DB, handlerName, messageId string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	key := models.IdempotencyKey{
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusFailed,
		LastError:   &msg,
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "handler_name"}, {Name: "message_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":     models.IdempotencyStatusFailed,
			"last_error": &msg,
		}),
	}).Create(&key).Error
}

// noteIdempotentFailure records a deterministic rejection against the request
// id so operators can see why a replayed request keeps failing. Transient
// errors (lock contention, in-progress) are not recorded; they will succeed
// on retry.
func noteIdempotentFailure(ctx context.Context, db *gorm.DB, handlerName, messageId string, cause error) {
	if messageId == "" || !utils.IsValidationError(cause) {
		return
	}
	_ = MarkIdempotencyFailed(db.WithContext(ctx), handlerName, messageId, cause)
}
