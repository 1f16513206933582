// internal/workers/notification/dispatch-notifications/claim.go
package dispatchnotifications

import (
	"context"

	apperrors "riseready-notifications/internal/common/errors"
	"riseready-notifications/internal/common/metrics"
	"riseready-notifications/internal/models"
)

type claimedBatch struct {
	token   string
	due     int
	records []models.Notification
}

// claim selects up to BatchSize due ids, stamps them with a fresh token in a
// single conditional update, and reads back what the token actually won.
// Ids another pass took in between are simply not in the result.
func (h *Handler) claim(ctx context.Context) (*claimedBatch, error) {
	pipeline := h.config.Pipeline

	ids, err := h.store.FindDue(ctx, h.now(), h.config.BatchSize)
	if err != nil {
		return nil, apperrors.NewStoreQueryFailedError("find_due", err)
	}
	batch := &claimedBatch{due: len(ids)}
	if len(ids) == 0 {
		return batch, nil
	}

	token := h.newToken()
	updated, err := h.store.ClaimMany(ctx, ids, token, h.now())
	if err != nil {
		return nil, apperrors.NewClaimFailedError(err).WithMetadata("claimToken", token)
	}

	if lost := int64(len(ids)) - updated; lost > 0 {
		metrics.ClaimRacesLost.WithLabelValues(pipeline).Add(float64(lost))
	}
	if updated == 0 {
		h.logger.Debug("every due notification was claimed by another pass", map[string]interface{}{
			"due": len(ids),
		})
		return batch, nil
	}
	batch.token = token

	records, err := h.store.FindClaimed(ctx, token)
	if err != nil {
		// the claim is in place; these records stay stuck until reclaimed
		return nil, apperrors.NewStoreQueryFailedError("find_claimed", err).
			WithMetadata("claimToken", token).
			WithMetadata("claimed", updated)
	}
	batch.records = records

	metrics.NotificationsClaimed.WithLabelValues(pipeline).Add(float64(len(records)))
	return batch, nil
}
