package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fenilmodi00/ipogains-backend/models"
	"github.com/fenilmodi00/ipogains-backend/services"
)

// AdminHandler covers the write side of the IPO catalogue plus user and
// subscriber administration. All routes sit behind the admin middleware.
type AdminHandler struct {
	ipos          *services.IPOService
	users         *services.UserService
	subscribers   *services.SubscriberService
	allotments    *services.AllotmentService
	notifications *services.NotificationService
}

func NewAdminHandler(ipos *services.IPOService, users *services.UserService, subscribers *services.SubscriberService, allotments *services.AllotmentService, notifications *services.NotificationService) *AdminHandler {
	return &AdminHandler{ipos: ipos, users: users, subscribers: subscribers, allotments: allotments, notifications: notifications}
}

// CreateIPO serves POST /api/admin/ipos.
func (h *AdminHandler) CreateIPO(c *fiber.Ctx) error {
	var ipo models.IPO
	if err := c.BodyParser(&ipo); err != nil {
		return badBody(c)
	}
	created, err := h.ipos.CreateIPO(&ipo)
	if err != nil {
		return respondError(c, err)
	}
	return respondCreated(c, fiber.Map{"ipo": created})
}

// UpdateIPO serves PUT /api/admin/ipos/:id.
func (h *AdminHandler) UpdateIPO(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var ipo models.IPO
	if err := c.BodyParser(&ipo); err != nil {
		return badBody(c)
	}
	updated, err := h.ipos.UpdateIPO(id, &ipo)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"ipo": updated})
}

// DeleteIPO serves DELETE /api/admin/ipos/:id.
func (h *AdminHandler) DeleteIPO(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := h.ipos.DeleteIPO(id); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"message": "IPO deleted"})
}

// UpdateSubscription serves PUT /api/admin/ipos/:id/subscription.
func (h *AdminHandler) UpdateSubscription(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var sub models.Subscription
	if err := c.BodyParser(&sub); err != nil {
		return badBody(c)
	}
	ipo, err := h.ipos.UpdateSubscription(id, sub)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"ipo": ipo})
}

type gmpRequest struct {
	Value float64 `json:"value"`
}

// AddGMP serves POST /api/admin/ipos/:id/gmp.
func (h *AdminHandler) AddGMP(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req gmpRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	ipo, err := h.ipos.AddGMP(id, req.Value)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"ipo": ipo})
}

type listingRequest struct {
	ListingPrice float64 `json:"listing_price"`
}

// UpdateListing serves PUT /api/admin/ipos/:id/listing.
func (h *AdminHandler) UpdateListing(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req listingRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	ipo, err := h.ipos.UpdateListing(id, req.ListingPrice)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"ipo": ipo})
}

// ListUsers serves GET /api/admin/users.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	users, err := h.users.ListUsers()
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"users": users, "total": len(users)})
}

type roleRequest struct {
	Role string `json:"role"`
}

// SetUserRole serves PUT /api/admin/users/:id/role.
func (h *AdminHandler) SetUserRole(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req roleRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if err := h.users.SetRole(id, req.Role); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"message": "Role updated"})
}

// DeleteUser serves DELETE /api/admin/users/:id.
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := h.users.DeleteUser(id); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"message": "User deleted"})
}

// DashboardStats serves GET /api/admin/dashboard/stats, one combined view
// for the admin landing page.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	ipoStats, err := h.ipos.GetStats()
	if err != nil {
		return respondError(c, err)
	}
	subStats, err := h.subscribers.Stats()
	if err != nil {
		return respondError(c, err)
	}
	pending, err := h.notifications.PendingCount()
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{
		"ipos":                  ipoStats,
		"subscribers":           subStats,
		"pending_notifications": pending,
	})
}

// ListSubscribers serves GET /api/admin/subscribers.
func (h *AdminHandler) ListSubscribers(c *fiber.Ctx) error {
	subs, err := h.subscribers.List()
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"subscribers": subs, "total": len(subs)})
}

// SubscriberStats serves GET /api/admin/subscribers/stats.
func (h *AdminHandler) SubscriberStats(c *fiber.Ctx) error {
	stats, err := h.subscribers.Stats()
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"stats": stats})
}

type applicationStatusRequest struct {
	Status string `json:"status"`
}

// SetApplicationStatus serves PUT /api/admin/applications/:id/status.
func (h *AdminHandler) SetApplicationStatus(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req applicationStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	app, err := h.allotments.AdminUpdateStatus(id, req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"application": app})
}
