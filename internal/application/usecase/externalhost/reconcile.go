package externalhost

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/domain/externalhost"
)

// Reconcile polls every hosted copy still being processed. Rejected or failed
// copies are removed from the host, and copies the host no longer knows are
// forgotten.
func (s *Syncer) Reconcile(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "ReconcileExternalHost")
	defer span.End()

	rows, err := s.hostRepo.ListNonTerminal(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, row := range rows {
		if err := s.reconcileOne(ctx, row); err != nil {
			span.RecordError(err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Syncer) reconcileOne(ctx context.Context, row *externalhost.Video) error {
	l := s.logger.With(zap.String("video_key", row.VideoKey.String()), zap.String("external_id", row.ExternalID))
	release, ok, err := s.locker.TryLock(ctx, lockKey(row.VideoKey), s.settings.LockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	defer release()

	if row.ExternalID == "" {
		return nil
	}
	status, err := s.host.VideoStatus(ctx, row.ExternalID)
	if err != nil {
		l.Error("Failed to read hosted status", err)
		return err
	}

	switch {
	case status.Dead():
		if err := s.host.DeleteVideo(ctx, row.ExternalID); err != nil {
			return err
		}
		l.Warn("Hosted copy rejected by host, removed", zap.String("host_status", string(status)))
		return s.hostRepo.Delete(ctx, row.VideoKey)
	case status == externalhost.StatusDeleted:
		l.Warn("Hosted copy no longer exists")
		return s.hostRepo.Delete(ctx, row.VideoKey)
	case status != row.Status:
		row.Status = status
		return s.hostRepo.Update(ctx, row)
	}
	return nil
}
