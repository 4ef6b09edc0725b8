package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fenilmodi00/ipogains-backend/services"
)

type IPOHandler struct {
	ipos *services.IPOService
}

func NewIPOHandler(ipos *services.IPOService) *IPOHandler {
	return &IPOHandler{ipos: ipos}
}

// List serves GET /api/ipos with optional status, category, sector, search,
// limit and offset query parameters.
func (h *IPOHandler) List(c *fiber.Ctx) error {
	filter := services.IPOFilter{
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Sector:   c.Query("sector"),
		Search:   c.Query("search"),
		Limit:    c.QueryInt("limit", 20),
		Offset:   c.QueryInt("offset", 0),
	}

	ipos, total, err := h.ipos.GetIPOs(filter)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{
		"ipos":   ipos,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// Get serves GET /api/ipos/:id.
func (h *IPOHandler) Get(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ipo, err := h.ipos.GetIPOByID(id)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"ipo": ipo})
}

// Search serves GET /api/ipos/search?q=.
func (h *IPOHandler) Search(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return respondOK(c, fiber.Map{"ipos": []interface{}{}, "total": 0})
	}
	ipos, total, err := h.ipos.GetIPOs(services.IPOFilter{
		Search: query,
		Limit:  c.QueryInt("limit", 20),
		Offset: c.QueryInt("offset", 0),
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"ipos": ipos, "total": total})
}

// Stats serves GET /api/ipos/stats/overview.
func (h *IPOHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.ipos.GetStats()
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"stats": stats})
}
