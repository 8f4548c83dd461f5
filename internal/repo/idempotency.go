// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file is the idempotency guard for the publish
// endpoint: it decides, per (user_id, key), whether a request gets to run
// its side effects or must be answered with the previously saved response.
//
// Contract (consumed by services.PublishService):
//
//   - BeginOrReuse durably inserts a pending record, then opens and returns a
//     fresh work transaction. The caller owns that transaction and must end
//     the record's lifecycle on every path: SaveResponse on success,
//     ReleasePending after rolling back on failure.
//   - If a completed record already exists, the stored response is returned
//     instead: replays are byte-identical.
//   - If a pending record exists, ErrInFlight is returned immediately; the
//     guard fails fast as a conflict rather than blocking behind the other
//     request.
//
// The insert race between two concurrent identical requests is resolved by
// the store's unique index on (user_id, key), not by application logic:
// exactly one insert wins, the loser observes the constraint violation.
//
// A crash after the pending insert leaves a durable pending record. Such a
// record blocks its key until it ages past pendingTTL, at which point the
// next attempt takes it over (guarded delete + reinsert, so only one of
// several concurrent takeovers wins).
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// ErrInFlight is returned when a pending idempotency record exists for the
// given (user_id, key): another request is mid-flight, or a prior attempt
// crashed before completing and its record has not aged past pendingTTL.
var ErrInFlight = errors.New("request already being processed")

// StoredResponse is the HTTP response saved for a completed request.
type StoredResponse struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// BeginOrReuse attempts to admit exclusive processing of (userID, key).
//
// Outcomes:
//   - (tx, nil, nil): a pending record was committed and tx is a fresh work
//     transaction owned by the caller. The caller must finish via
//     SaveResponse(tx, ...) or, after tx.Rollback(), ReleasePending.
//   - (nil, saved, nil): a completed record exists; saved carries the exact
//     status, headers, and body bytes previously produced.
//   - (nil, nil, ErrInFlight): a pending record exists and is younger than
//     pendingTTL.
//
// Pass pendingTTL <= 0 to disable stale-pending takeover (fail-fast forever).
func BeginOrReuse(ctx context.Context, db *gorm.DB, userID, key string, pendingTTL time.Duration) (*gorm.DB, *StoredResponse, error) {
	err := db.WithContext(ctx).Create(newPendingRecord(userID, key)).Error
	if err != nil {
		if !isUniqueViolation(err) {
			return nil, nil, err
		}

		var existing domain.Idempotency
		ferr := db.WithContext(ctx).
			Where("user_id = ? AND key = ?", userID, key).
			First(&existing).Error
		if ferr != nil {
			// Record vanished under us (concurrent takeover or release).
			if errors.Is(ferr, gorm.ErrRecordNotFound) {
				return nil, nil, ErrInFlight
			}
			return nil, nil, ferr
		}

		if existing.Completed() {
			saved, derr := decodeStoredResponse(&existing)
			if derr != nil {
				return nil, nil, derr
			}
			return nil, saved, nil
		}

		if pendingTTL <= 0 || time.Since(existing.CreatedAt) < pendingTTL {
			return nil, nil, ErrInFlight
		}
		if terr := takeOverStale(ctx, db, userID, key, pendingTTL); terr != nil {
			return nil, nil, terr
		}
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		// The pending marker must not outlive a transaction we never handed out.
		_ = ReleasePending(ctx, db, userID, key)
		return nil, nil, tx.Error
	}
	return tx, nil, nil
}

// takeOverStale replaces a pending record that outlived pendingTTL. The
// delete is guarded by the same age filter so that only one of several
// concurrent takeover attempts wins; the others observe zero rows deleted
// (or a duplicate on reinsert) and report ErrInFlight.
func takeOverStale(ctx context.Context, db *gorm.DB, userID, key string, pendingTTL time.Duration) error {
	cutoff := time.Now().UTC().Add(-pendingTTL)

	res := db.WithContext(ctx).
		Where("user_id = ? AND key = ? AND response_status IS NULL AND created_at <= ?", userID, key, cutoff).
		Delete(&domain.Idempotency{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInFlight
	}
	if err := db.WithContext(ctx).Create(newPendingRecord(userID, key)).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrInFlight
		}
		return err
	}
	return nil
}

// SaveResponse writes the completed response into the pending record inside
// tx and commits tx. The update and the caller's side effects therefore
// become visible atomically: no completed record without the work, no
// committed work without the saved response.
func SaveResponse(tx *gorm.DB, userID, key string, status int, headers http.Header, body []byte) error {
	hdrJSON, err := json.Marshal(headers)
	if err != nil {
		tx.Rollback()
		return err
	}
	hdr := string(hdrJSON)
	now := time.Now().UTC()

	res := tx.Model(&domain.Idempotency{}).
		Where("user_id = ? AND key = ? AND response_status IS NULL", userID, key).
		Updates(map[string]any{
			"response_status":  status,
			"response_headers": hdr,
			"response_body":    body,
			"completed_at":     now,
		})
	if res.Error != nil {
		tx.Rollback()
		return res.Error
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return ErrNotFound
	}
	return tx.Commit().Error
}

// ReleasePending deletes a still-pending record so the client can retry
// immediately after a failed attempt. Callers roll back their work
// transaction first; completed records are never touched.
func ReleasePending(ctx context.Context, db *gorm.DB, userID, key string) error {
	return db.WithContext(ctx).
		Where("user_id = ? AND key = ? AND response_status IS NULL", userID, key).
		Delete(&domain.Idempotency{}).Error
}

// GetStoredResponse fetches the saved response for a completed record, or
// ErrNotFound when the record is missing or still pending.
func GetStoredResponse(ctx context.Context, db *gorm.DB, userID, key string) (*StoredResponse, error) {
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("user_id = ? AND key = ?", userID, key).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	if !rec.Completed() {
		return nil, ErrNotFound
	}
	return decodeStoredResponse(&rec)
}

func newPendingRecord(userID, key string) *domain.Idempotency {
	return &domain.Idempotency{
		ID:        uuid.NewString(),
		UserID:    userID,
		Key:       key,
		CreatedAt: time.Now().UTC(),
	}
}

func decodeStoredResponse(rec *domain.Idempotency) (*StoredResponse, error) {
	saved := &StoredResponse{
		Status: *rec.ResponseStatus,
		Body:   rec.ResponseBody,
	}
	if rec.ResponseHeaders != nil && *rec.ResponseHeaders != "" {
		if err := json.Unmarshal([]byte(*rec.ResponseHeaders), &saved.Headers); err != nil {
			return nil, err
		}
	}
	return saved, nil
}
