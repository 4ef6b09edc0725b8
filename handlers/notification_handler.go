package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fenilmodi00/ipogains-backend/services"
)

type NotificationHandler struct {
	notifications *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// History serves GET /api/admin/notifications.
func (h *NotificationHandler) History(c *fiber.Ctx) error {
	list, err := h.notifications.History(c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"notifications": list, "total": len(list)})
}

// Pending serves GET /api/admin/notifications/pending.
func (h *NotificationHandler) Pending(c *fiber.Ctx) error {
	count, err := h.notifications.PendingCount()
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"pending": count})
}

// Process serves POST /api/admin/notifications/process, forcing an immediate
// sweep outside the schedule.
func (h *NotificationHandler) Process(c *fiber.Ctx) error {
	if err := h.notifications.ProcessPending(); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"message": "Pending notifications processed"})
}

// Digest serves POST /api/admin/notifications/digest, triggering the daily
// digest on demand.
func (h *NotificationHandler) Digest(c *fiber.Ctx) error {
	if err := h.notifications.SendDailyDigest(); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"message": "Daily digest sent"})
}
