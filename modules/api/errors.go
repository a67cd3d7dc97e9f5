package api

import (
	"errors"
	"log"

	domain "github.com/example/task-manager/domain/task"
	"github.com/example/task-manager/modules/auth"
	"github.com/gofiber/fiber/v2"
)

// taskError maps a task operation failure onto a status code.
func taskError(c *fiber.Ctx, err error) error {
	switch domain.KindOf(err) {
	case domain.KindUnauthorized:
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "unauthorized",
			Message: "Authentication required",
		})
	case domain.KindValidationFailed:
		resp := ErrorResponse{Error: "validation_failed", Message: err.Error()}
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			resp.Field = verr.Field
			resp.Message = verr.Reason
		}
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	case domain.KindNotFound:
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Task not found",
		})
	default:
		log.Printf("[api] task store failure on %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "store_unavailable",
			Message: "Task store is unavailable, please retry",
		})
	}
}

// authError maps an authentication failure onto a status code.
func authError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrUserExists):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Error:   "user_exists",
			Message: "An account with this email already exists",
			Field:   "email",
		})
	case errors.Is(err, auth.ErrInvalidEmail):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_failed",
			Message: "Email is not valid",
			Field:   "email",
		})
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrPasswordTooLong):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
			Field:   "password",
		})
	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "invalid_credentials",
			Message: "Invalid email or password",
		})
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "unauthorized",
			Message: "Invalid or expired token",
		})
	default:
		log.Printf("[api] auth failure on %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "auth_unavailable",
			Message: "Authentication service is unavailable, please retry",
		})
	}
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   "bad_request",
		Message: message,
	})
}

// customErrorHandler handles Fiber errors.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
