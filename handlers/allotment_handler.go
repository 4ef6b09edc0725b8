package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/fenilmodi00/ipogains-backend/middleware"
	"github.com/fenilmodi00/ipogains-backend/services"
)

type AllotmentHandler struct {
	allotments *services.AllotmentService
}

func NewAllotmentHandler(allotments *services.AllotmentService) *AllotmentHandler {
	return &AllotmentHandler{allotments: allotments}
}

func sessionUserID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(middleware.UserID(c))
}

type checkAllotmentRequest struct {
	IPOID string `json:"ipo_id"`
	PAN   string `json:"pan"`
}

// Check serves POST /api/allotment/check. Works anonymously; an
// authenticated caller additionally gets their tracking record updated.
func (h *AllotmentHandler) Check(c *fiber.Ctx) error {
	var req checkAllotmentRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	ipoID, err := uuid.Parse(req.IPOID)
	if err != nil {
		return badBody(c)
	}

	var requester *uuid.UUID
	if id, err := sessionUserID(c); err == nil {
		requester = &id
	}

	result, err := h.allotments.FindApplication(ipoID, req.PAN, requester)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"result": result})
}

type applyRequest struct {
	IPOID             string `json:"ipo_id"`
	PAN               string `json:"pan"`
	ApplicationNumber string `json:"application_number"`
	Lots              int    `json:"lots"`
}

// Apply serves POST /api/allotment/apply.
func (h *AllotmentHandler) Apply(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return middleware.AuthError(c, "Invalid session")
	}
	var req applyRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	ipoID, err := uuid.Parse(req.IPOID)
	if err != nil {
		return badBody(c)
	}

	app, err := h.allotments.Apply(userID, ipoID, req.PAN, req.ApplicationNumber, req.Lots)
	if err != nil {
		return respondError(c, err)
	}
	return respondCreated(c, fiber.Map{"application": app})
}

type logExternalRequest struct {
	IPOID string `json:"ipo_id"`
	PAN   string `json:"pan"`
}

// LogExternal serves POST /api/allotment/log-external, recording that the
// user checked their status on the registrar's own site.
func (h *AllotmentHandler) LogExternal(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return middleware.AuthError(c, "Invalid session")
	}
	var req logExternalRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	ipoID, err := uuid.Parse(req.IPOID)
	if err != nil {
		return badBody(c)
	}

	app, err := h.allotments.LogExternalCheck(userID, ipoID, req.PAN)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"application": app})
}

// Mine serves GET /api/allotment/my-applications.
func (h *AllotmentHandler) Mine(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return middleware.AuthError(c, "Invalid session")
	}
	apps, err := h.allotments.MyApplications(userID)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"applications": apps, "total": len(apps)})
}

type myStatusRequest struct {
	ApplicationID string `json:"application_id"`
	Status        string `json:"status"`
	Lots          int    `json:"lots"`
}

// MyStatus serves POST /api/allotment/my-status, letting a user record the
// outcome on their own application.
func (h *AllotmentHandler) MyStatus(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return middleware.AuthError(c, "Invalid session")
	}
	var req myStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	appID, err := uuid.Parse(req.ApplicationID)
	if err != nil {
		return badBody(c)
	}

	app, err := h.allotments.UpdateOwnStatus(userID, appID, req.Status, req.Lots)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"application": app})
}

type updateStatusRequest struct {
	ApplicationID string `json:"application_id"`
	Status        string `json:"status"`
}

// UpdateStatus serves PUT /api/allotment/update-status (admin): sets any
// application's status and emails the owner the result.
func (h *AllotmentHandler) UpdateStatus(c *fiber.Ctx) error {
	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	appID, err := uuid.Parse(req.ApplicationID)
	if err != nil {
		return badBody(c)
	}

	app, err := h.allotments.AdminUpdateStatus(appID, req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"application": app})
}

// Delete serves DELETE /api/allotment/:applicationId.
func (h *AllotmentHandler) Delete(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return middleware.AuthError(c, "Invalid session")
	}
	appID, err := parseUUIDParam(c, "applicationId")
	if err != nil {
		return respondError(c, err)
	}
	if err := h.allotments.DeleteApplication(userID, appID); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"message": "Application deleted"})
}
