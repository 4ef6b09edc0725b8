package handlers

import (
	"fmt"
	"html"

	"github.com/gofiber/fiber/v2"

	"github.com/fenilmodi00/ipogains-backend/services"
	"github.com/fenilmodi00/ipogains-backend/shared"
)

type SubscriberHandler struct {
	subscribers *services.SubscriberService
	frontendURL string
}

func NewSubscriberHandler(subscribers *services.SubscriberService, frontendURL string) *SubscriberHandler {
	return &SubscriberHandler{subscribers: subscribers, frontendURL: frontendURL}
}

type subscribeRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Subscribe serves POST /api/subscribers.
func (h *SubscriberHandler) Subscribe(c *fiber.Ctx) error {
	var req subscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	sub, err := h.subscribers.Subscribe(req.Email, req.Name, "")
	if err != nil {
		return respondError(c, err)
	}
	return respondCreated(c, fiber.Map{"subscriber": sub})
}

// Unsubscribe serves GET /api/subscribers/unsubscribe/:token. It is hit from
// an email link, so the response is a small HTML page rather than JSON.
func (h *SubscriberHandler) Unsubscribe(c *fiber.Ctx) error {
	token := c.Params("token")
	sub, err := h.subscribers.UnsubscribeByToken(token)

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	if err != nil {
		c.Status(fiber.StatusNotFound)
		return c.SendString(unsubscribePage("Invalid link",
			"This unsubscribe link is not valid. It may have been replaced by a newer one.", h.frontendURL))
	}
	return c.SendString(unsubscribePage("You are unsubscribed",
		fmt.Sprintf("%s will no longer receive IPO updates.", html.EscapeString(sub.Email)), h.frontendURL))
}

func unsubscribePage(heading, message, frontendURL string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body style="font-family: Arial, sans-serif; text-align: center; padding-top: 80px; color: #1a1a2e;">
  <h1 style="color: #0f3460;">%s</h1>
  <p>%s</p>
  <p><a href="%s" style="color: #0f3460;">Back to IPOGains</a></p>
</body>
</html>`, html.EscapeString(heading), html.EscapeString(heading), message, html.EscapeString(frontendURL))
}

// UpdatePreferences serves PUT /api/subscribers/preferences/:token.
func (h *SubscriberHandler) UpdatePreferences(c *fiber.Ctx) error {
	var req services.PreferencesUpdate
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	sub, err := h.subscribers.UpdatePreferences(c.Params("token"), req)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"subscriber": sub})
}

// Check serves GET /api/subscribers/check/:email.
func (h *SubscriberHandler) Check(c *fiber.Ctx) error {
	email := c.Params("email")
	if email == "" {
		return respondError(c, shared.NewValidationError("Email parameter is required"))
	}
	subscribed, err := h.subscribers.IsSubscribed(email)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"subscribed": subscribed})
}

// Stats serves GET /api/subscribers/stats. Aggregate counts only, nothing
// per-subscriber.
func (h *SubscriberHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.subscribers.Stats()
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"stats": stats})
}
