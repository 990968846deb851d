package handlers

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docchat/backend/internal/events"
	"github.com/docchat/backend/internal/storage/models"
	"github.com/docchat/backend/pkg/logger"
)

const (
	EventMembershipActivated   = "membership.activated"
	EventMembershipDeactivated = "membership.deactivated"
)

type BillingStore interface {
	GetOrCreateUser(externalID string) (*models.User, error)
	SetMembership(externalID string, active bool) error
}

// WebhookHandler ingests billing events from the payment provider. The core
// never initiates billing; it only flips the membership flag the quota
// manager reads.
type WebhookHandler struct {
	store  BillingStore
	hub    *events.Hub
	secret string
}

func NewWebhookHandler(store BillingStore, hub *events.Hub, secret string) *WebhookHandler {
	return &WebhookHandler{
		store:  store,
		hub:    hub,
		secret: secret,
	}
}

func (h *WebhookHandler) HandleBillingEvent(c *fiber.Ctx) error {
	signature := c.Get("X-Webhook-Secret")
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(signature), []byte(h.secret)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid webhook signature",
		})
	}

	var req struct {
		UserID string `json:"user_id"`
		Event  string `json:"event"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	var active bool
	switch req.Event {
	case EventMembershipActivated:
		active = true
	case EventMembershipDeactivated:
		active = false
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown event type",
		})
	}

	if _, err := h.store.GetOrCreateUser(req.UserID); err != nil {
		logger.Error("Failed to provision user for billing event", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process event",
		})
	}

	if err := h.store.SetMembership(req.UserID, active); err != nil {
		logger.Error("Failed to update membership", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process event",
		})
	}

	h.hub.Publish(events.Event{
		Type:   events.TypeSubscriptionUpdated,
		UserID: req.UserID,
	})

	logger.Info("Billing event processed",
		zap.String("user_id", req.UserID),
		zap.String("event", req.Event),
	)

	return c.JSON(fiber.Map{"received": true})
}
