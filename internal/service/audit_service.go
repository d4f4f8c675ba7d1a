package service

import (
	"context"
	"time"

	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const auditWriteTimeout = 5 * time.Second

type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditService creates a new audit service.
// If repo is nil, audit entries are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, log: log}
}

// Log records an audit entry without blocking the request. Missing IDs and
// timestamps are filled in.
func (s *auditService) Log(ctx context.Context, entry *domain.AuditLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	// The request context is canceled once the response is written.
	bg := context.WithoutCancel(ctx)

	go func() {
		ev := s.log.Info().
			Str("action", string(entry.Action)).
			Str("resource_type", entry.ResourceType).
			Str("resource_id", entry.ResourceID).
			Str("ip", entry.IPAddress)
		if entry.ProfileID != nil {
			ev = ev.Str("profile_id", *entry.ProfileID)
		}
		ev.Msg("audit")

		if s.repo == nil {
			return
		}
		writeCtx, cancel := context.WithTimeout(bg, auditWriteTimeout)
		defer cancel()
		if err := s.repo.Create(writeCtx, entry); err != nil {
			s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
		}
	}()
}
