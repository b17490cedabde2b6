package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

// releaser deletes objects whose rows are already gone. Failures are logged only.
type releaser struct {
	store  service.ObjectStore
	logger logger.Logger
}

func (r releaser) object(ctx context.Context, bucket, key string) {
	if key == "" {
		return
	}
	if err := r.store.Delete(ctx, bucket, key); err != nil {
		r.logger.Warn("Failed to release object", zap.String("bucket", bucket), zap.String("object_key", key), zap.Error(err))
	}
}

func (r releaser) prefix(ctx context.Context, bucket, prefix string) {
	if err := r.store.DeletePrefix(ctx, bucket, prefix); err != nil {
		r.logger.Warn("Failed to release prefix", zap.String("bucket", bucket), zap.String("prefix", prefix), zap.Error(err))
	}
}
