// Package response defines the JSON envelope every endpoint returns:
// {code, message, data?} with the HTTP status mirroring code.
package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Body is the wire shape of every API response.
type Body struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error is a domain error carrying the response code it should produce.
// Sentinel errors across the domain packages are declared with NewError so
// errors.Is comparisons work by identity.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewError creates a coded domain error.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// OK writes a 200 envelope with data.
func OK(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Body{Code: http.StatusOK, Message: "success", Data: data})
}

// Created writes a 201 envelope with data.
func Created(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, Body{Code: http.StatusCreated, Message: "success", Data: data})
}

// Message writes a 200 envelope with a custom message and optional data.
func Message(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusOK, Body{Code: http.StatusOK, Message: message, Data: data})
}

// ErrorHandler is the echo HTTPErrorHandler converting any error into the
// envelope. Domain *Error values keep their code; echo.HTTPError keeps its
// status; everything else becomes a 500 with a generic message.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "internal server error"

	var domainErr *Error
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &domainErr):
		code = domainErr.Code
		message = domainErr.Message
	case errors.As(err, &httpErr):
		code = httpErr.Code
		if m, ok := httpErr.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	}

	if writeErr := c.JSON(code, Body{Code: code, Message: message}); writeErr != nil {
		log.Error().Err(writeErr).Msg("failed to write error response")
	}
}
