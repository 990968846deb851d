// Package quota enforces tier-based usage limits. Counters are derived from
// persisted rows at decision time, never stored, so the check must always
// run before the new row for the current action is written.
package quota

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/docchat/backend/internal/storage/models"
	"github.com/docchat/backend/pkg/logger"
)

var ErrQuotaExceeded = errors.New("quota exceeded")

type Store interface {
	GetOrCreateUser(externalID string) (*models.User, error)
	CountUserMessages(userID, documentID string) (int, error)
	CountDocuments(userID string) (int, error)
}

type Limits struct {
	FreeQuestionLimit int
	ProQuestionLimit  int
	FreeDocumentLimit int
	ProDocumentLimit  int
}

type Decision struct {
	Allowed bool
	Reason  string
	Pro     bool
}

type Manager struct {
	store  Store
	limits Limits
}

func NewManager(store Store, limits Limits) *Manager {
	return &Manager{
		store:  store,
		limits: limits,
	}
}

// Authorize decides whether the user may ask another question about the
// document. Limits apply per (user, document) pair, counting only the
// user-role turns.
func (m *Manager) Authorize(ctx context.Context, userID, documentID string) (Decision, error) {
	user, err := m.store.GetOrCreateUser(userID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to resolve user: %w", err)
	}

	count, err := m.store.CountUserMessages(userID, documentID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count questions: %w", err)
	}

	limit := m.limits.FreeQuestionLimit
	if user.ActiveMembership {
		limit = m.limits.ProQuestionLimit
	}

	if count >= limit {
		logger.Info("Question quota denied",
			zap.String("user_id", userID),
			zap.String("document_id", documentID),
			zap.Bool("pro", user.ActiveMembership),
			zap.Int("count", count),
		)

		reason := fmt.Sprintf(
			"You can only ask %d questions per document with the free plan. Upgrade to PRO for %d questions per document!",
			m.limits.FreeQuestionLimit, m.limits.ProQuestionLimit,
		)
		if user.ActiveMembership {
			reason = fmt.Sprintf(
				"You've reached the PRO limit of %d questions for this document!",
				m.limits.ProQuestionLimit,
			)
		}

		return Decision{Allowed: false, Reason: reason, Pro: user.ActiveMembership}, nil
	}

	return Decision{Allowed: true, Pro: user.ActiveMembership}, nil
}

// AuthorizeUpload enforces the per-user document cap.
func (m *Manager) AuthorizeUpload(ctx context.Context, userID string) (Decision, error) {
	user, err := m.store.GetOrCreateUser(userID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to resolve user: %w", err)
	}

	count, err := m.store.CountDocuments(userID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count documents: %w", err)
	}

	limit := m.limits.FreeDocumentLimit
	if user.ActiveMembership {
		limit = m.limits.ProDocumentLimit
	}

	if count >= limit {
		reason := fmt.Sprintf(
			"You can only store %d documents with the free plan. Upgrade to PRO to store up to %d documents!",
			m.limits.FreeDocumentLimit, m.limits.ProDocumentLimit,
		)
		if user.ActiveMembership {
			reason = fmt.Sprintf(
				"You've reached the PRO limit of %d documents!",
				m.limits.ProDocumentLimit,
			)
		}

		return Decision{Allowed: false, Reason: reason, Pro: user.ActiveMembership}, nil
	}

	return Decision{Allowed: true, Pro: user.ActiveMembership}, nil
}
