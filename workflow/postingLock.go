package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/steelstorehq/store_backend/utils"
	"gorm.io/gorm"
)

var errLockNotAcquired = errors.New("posting lock not acquired")

const (
	lockWaitSeconds = 2
	lockAttempts    = 4
)

func InvoiceLockName(invoiceId int) string {
	return fmt.Sprintf("posting:invoice:%d", invoiceId)
}

func CustomerLockName(customerId int) string {
	return fmt.Sprintf("posting:customer:%d", customerId)
}

func ProductLockName(productId int) string {
	return fmt.Sprintf("posting:product:%d", productId)
}

// acquirePostingLock serializes writers per invoice/customer using MySQL
// advisory locks. GET_LOCK is connection-scoped, so it must run on the same
// pinned connection that carries the posting transaction.
func acquirePostingLock(tx *gorm.DB, lockName string) error {
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, ?)", lockName, lockWaitSeconds).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("%w: %s", errLockNotAcquired, lockName)
	}
	return nil
}

func releasePostingLock(tx *gorm.DB, lockName string) {
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// RunLocked executes fn inside one DB transaction holding the named advisory
// locks, so the triggering change and the recomputed caches commit as a
// single atomic unit. The locks live on a pinned connection and are released
// only after COMMIT: the next writer can never read pre-commit state through
// the lock. Lock contention is retried with bounded backoff; when attempts
// are exhausted the caller gets utils.ErrResourceBusy, which is transient and
// retry-suggested, never a validation failure.
func RunLocked(ctx context.Context, db *gorm.DB, lockNames []string, fn func(tx *gorm.DB) error) error {
	var lastErr error
	for attempt := 0; attempt < lockAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
			}
		}
		err := db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
			acquired := make([]string, 0, len(lockNames))
			defer func() {
				for i := len(acquired) - 1; i >= 0; i-- {
					releasePostingLock(conn, acquired[i])
				}
			}()
			for _, name := range lockNames {
				if err := acquirePostingLock(conn, name); err != nil {
					return err
				}
				acquired = append(acquired, name)
			}
			return conn.Transaction(fn)
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, errLockNotAcquired) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w (%v)", utils.ErrResourceBusy, lastErr)
}
