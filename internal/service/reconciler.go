package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"policy_sync/internal/domain"
)

// StagingReconciler is the CDC core: it compares incoming fingerprints
// against the last-known fingerprint per policy id and advances the
// staging state accordingly.
type StagingReconciler struct {
	landing LandingStore
	staging StagingStore
	tx      TransactionManager
	logger  *slog.Logger
}

func NewStagingReconciler(
	landing LandingStore,
	staging StagingStore,
	tx TransactionManager,
	logger *slog.Logger,
) *StagingReconciler {
	return &StagingReconciler{
		landing: landing,
		staging: staging,
		tx:      tx,
		logger:  logger.With("component", "reconciler"),
	}
}

// Classify records the observed version in the landing table and classifies
// it against the current staging state. The whole step runs in one
// transaction; the staging row lock serializes concurrent batches touching
// the same policy id. A row lock cannot cover a policy id nobody has staged
// yet, so two workers can both classify the same id as NEW and collide on
// the unique policy_id constraint; the loser retries once and finds the
// winner's row.
func (r *StagingReconciler) Classify(ctx context.Context, rec *domain.LandingRecord) (domain.Classification, error) {
	class, err := r.classifyOnce(ctx, rec)
	if isRetryableConflict(err) {
		r.logger.Warn("concurrent first observation, retrying", "policy_id", rec.PolicyID)
		class, err = r.classifyOnce(ctx, rec)
	}
	return class, err
}

func (r *StagingReconciler) classifyOnce(ctx context.Context, rec *domain.LandingRecord) (domain.Classification, error) {
	var class domain.Classification

	err := r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := r.landing.Insert(txCtx, rec); err != nil {
			return fmt.Errorf("insert landing record: %w", err)
		}

		state, err := r.staging.GetForUpdate(txCtx, rec.PolicyID)
		if err != nil {
			return fmt.Errorf("load staging state: %w", err)
		}

		now := time.Now().UTC()

		switch {
		case state == nil:
			class = domain.ClassNew
			return r.staging.Insert(txCtx, &domain.StagingRecord{
				PolicyID:   rec.PolicyID,
				RecordHash: rec.RecordHash,
				FirstSeen:  now,
				LastSeen:   now,
				Lifecycle:  domain.LifecycleActive,
			})

		case state.RecordHash != rec.RecordHash:
			class = domain.ClassChanged
			state.RecordHash = rec.RecordHash
			state.LastSeen = now
			state.Lifecycle = domain.LifecycleActive
			return r.staging.Update(txCtx, state)

		case state.Lifecycle != domain.LifecycleActive:
			// Reappearance with identical content: unchanged for the core
			// tables, but the staging record becomes active again.
			class = domain.ClassUnchanged
			state.LastSeen = now
			state.Lifecycle = domain.LifecycleActive
			r.logger.Info("policy reappeared in feed", "policy_id", rec.PolicyID)
			return r.staging.Update(txCtx, state)

		default:
			class = domain.ClassUnchanged
			return r.staging.Touch(txCtx, rec.PolicyID, now)
		}
	})
	if err != nil {
		return "", err
	}

	return class, nil
}

// MarkRemoved deactivates every staging record whose policy id was not part
// of the completed batch and returns the affected ids.
func (r *StagingReconciler) MarkRemoved(ctx context.Context, seen []string) ([]string, error) {
	removed, err := r.staging.MarkMissing(ctx, seen)
	if err != nil {
		return nil, fmt.Errorf("mark missing policies: %w", err)
	}

	if len(removed) > 0 {
		r.logger.Info("policies removed from feed", "count", len(removed))
	}

	return removed, nil
}
