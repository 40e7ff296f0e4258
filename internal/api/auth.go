package api

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"

	"github.com/mindmed/mindmed-api/internal/identity"
	"github.com/mindmed/mindmed-api/internal/models"
	"github.com/mindmed/mindmed-api/internal/prescription"
)

const (
	localUserID = "user_id"
	localEmail  = "email"

	setupTokenHeader = "X-Setup-Token"
)

// authMiddleware verifies Supabase access tokens (HS256) and stores the
// subject and email in the request locals.
func (s *Server) authMiddleware() fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:    []byte(s.cfg.Supabase.JWTSecret),
		SigningMethod: "HS256",
		SuccessHandler: func(c *fiber.Ctx) error {
			token, ok := c.Locals("user").(*jwt.Token)
			if !ok {
				return errUnauthenticated
			}
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return errUnauthenticated
			}
			sub, _ := claims["sub"].(string)
			if sub == "" {
				return errUnauthenticated
			}
			email, _ := claims["email"].(string)
			c.Locals(localUserID, sub)
			c.Locals(localEmail, email)
			return c.Next()
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid token",
			})
		},
	})
}

// caller returns the authenticated practitioner of the request.
func caller(c *fiber.Ctx) (prescription.Caller, error) {
	userID, _ := c.Locals(localUserID).(string)
	if userID == "" {
		return prescription.Caller{}, errUnauthenticated
	}
	email, _ := c.Locals(localEmail).(string)
	return prescription.Caller{UserID: userID, Email: email}, nil
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	s.logger.Info("Authentication attempt", "email", req.Email)

	token, err := s.directory.SignIn(c.UserContext(), req.Email, req.Password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}
	if err != nil {
		s.logger.Error("Authentication error", "error", err)

		errorMessage := "Authentication service error"
		if s.cfg.Server.Environment != "production" {
			errorMessage = fmt.Sprintf("Authentication error: %v", err)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": errorMessage,
		})
	}

	s.logger.Info("User successfully authenticated", "email", req.Email)

	return c.JSON(models.LoginResponse{
		Token:     token,
		TokenType: "Bearer",
	})
}

func (s *Server) handleSignup(c *fiber.Ctx) error {
	var req models.SignupRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	ctx := c.UserContext()
	user, err := s.directory.CreateUser(ctx, req.Email, req.Password, req.FullName)
	if err != nil {
		return err
	}
	if err := s.store.CreateMinimalProfile(ctx, user.ID, req.FullName); err != nil {
		return err
	}

	s.logger.Info("Account created", "user_id", user.ID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"user_id": user.ID,
	})
}

// handleAdminSetup creates a confirmed account with a profile and an
// unlimited pro subscription. Disabled unless ADMIN_SETUP_TOKEN is set.
func (s *Server) handleAdminSetup(c *fiber.Ctx) error {
	expected := s.cfg.Admin.SetupToken
	if expected == "" {
		return fiber.ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(c.Get(setupTokenHeader)), []byte(expected)) != 1 {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid setup token")
	}

	var req models.AdminSetupRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	ctx := c.UserContext()
	user, err := s.directory.CreateUser(ctx, req.Email, req.Password, req.FullName)
	if err != nil {
		return err
	}
	s.logger.Info("User created", "user_id", user.ID)

	_, err = s.store.UpsertProfile(ctx, models.Profile{
		UserID:   user.ID,
		FullName: req.FullName,
		CRM:      req.CRM,
		CRMUF:    req.CRMUF,
	})
	if err != nil {
		return err
	}
	s.logger.Info("Profile created for user", "user_id", user.ID)

	_, err = s.store.CreateSubscription(ctx, models.Subscription{
		UserID:     user.ID,
		Plan:       models.PlanPro,
		Status:     models.StatusActive,
		QuotaTotal: s.catalog.Quota(models.PlanPro),
	})
	if err != nil {
		return err
	}
	s.logger.Info("Pro subscription created for user", "user_id", user.ID)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "User created with Pro plan",
		"user_id": user.ID,
	})
}
