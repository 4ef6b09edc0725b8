package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/fenilmodi00/ipogains-backend/middleware"
	"github.com/fenilmodi00/ipogains-backend/services"
	"github.com/fenilmodi00/ipogains-backend/shared"
)

type AuthHandler struct {
	users     *services.UserService
	jwtSecret string
	jwtExpiry time.Duration
}

func NewAuthHandler(users *services.UserService, jwtSecret string, jwtExpiry time.Duration) *AuthHandler {
	return &AuthHandler{users: users, jwtSecret: jwtSecret, jwtExpiry: jwtExpiry}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and returns a session token right away.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	user, err := h.users.Register(req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	token, err := middleware.GenerateToken(user.ID.String(), user.Role, h.jwtSecret, h.jwtExpiry)
	if err != nil {
		return respondError(c, shared.NewInternalError("Failed to issue token", err))
	}
	return respondCreated(c, fiber.Map{"user": user, "token": token})
}

// Login authenticates and returns a JWT.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	user, err := h.users.Authenticate(req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	token, err := middleware.GenerateToken(user.ID.String(), user.Role, h.jwtSecret, h.jwtExpiry)
	if err != nil {
		return respondError(c, shared.NewInternalError("Failed to issue token", err))
	}
	return respondOK(c, fiber.Map{"user": user, "token": token})
}

// Logout acknowledges a sign-out. Sessions are stateless JWTs, so the
// client discards the token; nothing is revoked server-side.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	return respondOK(c, fiber.Map{"message": "Logged out"})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	id, err := uuid.Parse(middleware.UserID(c))
	if err != nil {
		return middleware.AuthError(c, "Invalid session")
	}
	user, err := h.users.GetByID(id)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"user": user})
}

type otpRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyOTP confirms an email verification code.
func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var req otpRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if err := h.users.VerifyOTP(req.Email, req.Code); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"message": "Account verified"})
}

// ResendOTP issues a fresh verification code.
func (h *AuthHandler) ResendOTP(c *fiber.Ctx) error {
	var req otpRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if err := h.users.ResendOTP(req.Email); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"message": "Verification code sent"})
}

// ForgotPassword sends a password reset code. Always succeeds for unknown
// emails so account existence is not probeable.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req otpRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if err := h.users.ForgotPassword(req.Email); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"message": "If the account exists, a reset code has been sent"})
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// ResetPassword sets a new password after code validation.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if err := h.users.ResetPassword(req.Email, req.Code, req.NewPassword); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.Map{"message": "Password has been reset"})
}
