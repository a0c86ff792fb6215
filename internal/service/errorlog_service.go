package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/Danilnaisov/praktika05/internal/models"
	appErrors "github.com/Danilnaisov/praktika05/pkg/errors"
)

type errorLogRepository interface {
	Create(ctx context.Context, entry *models.ErrorLog) error
	ListRecent(ctx context.Context, limit int) ([]models.ErrorLog, error)
}

// ErrorLogService records application failures for later review.
type ErrorLogService struct {
	repo   errorLogRepository
	logger *zap.Logger
}

// NewErrorLogService constructs the error log service.
func NewErrorLogService(repo errorLogRepository, logger *zap.Logger) *ErrorLogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorLogService{repo: repo, logger: logger}
}

// Log persists one error record. Persistence failures are logged only;
// error reporting must never break the request path.
func (s *ErrorLogService) Log(ctx context.Context, code, message string) {
	entry := &models.ErrorLog{ErrorCode: code, Message: message}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to persist error log", zap.String("code", code), zap.Error(err))
	}
}

// ListRecent returns the newest error records.
func (s *ErrorLogService) ListRecent(ctx context.Context, limit int) ([]models.ErrorLog, error) {
	entries, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list error logs")
	}
	return entries, nil
}
