package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/tracelify/tracelify/internal/domain"
	"github.com/tracelify/tracelify/internal/middleware"
)

// ErrorBody is the envelope returned for every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

type apiError struct {
	status  int
	code    string
	message string
}

func classify(err error) apiError {
	var (
		de *domain.Error
		fe *fiber.Error
		ve validator.ValidationErrors
	)
	switch {
	case errors.As(err, &ve):
		return apiError{fiber.StatusUnprocessableEntity, domain.CodeValidation, validationMessage(ve)}
	case errors.As(err, &de):
		msg := de.Message
		if msg == "" {
			msg = string(de.Kind)
		}
		code := de.Code
		switch de.Kind {
		case domain.KindConfig, domain.KindInvalidInput:
			return apiError{fiber.StatusBadRequest, orDefault(code, domain.CodeInvalidRequest), msg}
		case domain.KindNotFound:
			return apiError{fiber.StatusNotFound, orDefault(code, "not_found"), msg}
		case domain.KindCollaborator:
			if errors.Is(err, context.DeadlineExceeded) {
				return apiError{fiber.StatusGatewayTimeout, domain.CodeUpstreamTimeout, msg + ": timed out"}
			}
			return apiError{fiber.StatusBadGateway, orDefault(code, domain.CodeUpstream), msg}
		}
	case errors.As(err, &fe):
		return apiError{fe.Code, httpCode(fe.Code), fe.Message}
	case errors.Is(err, context.DeadlineExceeded):
		return apiError{fiber.StatusGatewayTimeout, domain.CodeUpstreamTimeout, "request timed out"}
	}
	return apiError{fiber.StatusInternalServerError, domain.CodeInternal, "internal server error"}
}

// StatusOf returns the HTTP status ErrorHandler renders err with.
func StatusOf(err error) int {
	return classify(err).status
}

// ErrorHandler renders every error as an ErrorBody. It is installed as the
// fiber app's ErrorHandler.
func ErrorHandler(c fiber.Ctx, err error) error {
	e := classify(err)
	if e.status >= fiber.StatusInternalServerError {
		slog.ErrorContext(c.Context(), "request failed", "error", err, "request_id", middleware.GetRequestID(c))
	}
	return c.Status(e.status).JSON(ErrorBody{Error: ErrorDetail{
		Code:      e.code,
		Message:   e.message,
		RequestID: middleware.GetRequestID(c),
	}})
}

func validationMessage(ve validator.ValidationErrors) string {
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func httpCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return domain.CodeInvalidRequest
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case fiber.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	}
	if status >= fiber.StatusInternalServerError {
		return domain.CodeInternal
	}
	return "http_error"
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
