package scheduling

import (
	"net/http"

	"github.com/sgshy1995/sens-server-sub000/pkg/response"
)

// Domain sentinel errors. Each carries the response code it maps to; the
// global error handler renders them as {code, message}.
var (
	ErrSlotNotFound    = response.NewError(http.StatusNotFound, "time slot not found")
	ErrBookingNotFound = response.NewError(http.StatusNotFound, "booking not found")
	ErrCourseNotFound  = response.NewError(http.StatusNotFound, "course record not found")

	ErrSlotBooked               = response.NewError(http.StatusConflict, "time slot is already booked")
	ErrSlotNotOpen              = response.NewError(http.StatusConflict, "time slot is not open")
	ErrSlotTooClose             = response.NewError(http.StatusConflict, "another slot starts within 90 minutes")
	ErrBookingTooClose          = response.NewError(http.StatusConflict, "another booking starts within 90 minutes")
	ErrCancelAllowanceExhausted = response.NewError(http.StatusConflict, "cancellation allowance exhausted")

	ErrOwnSlot            = response.NewError(http.StatusBadRequest, "cannot book your own time slot")
	ErrNotSlotOwner       = response.NewError(http.StatusBadRequest, "time slot belongs to another practitioner")
	ErrBookingNotOwned    = response.NewError(http.StatusBadRequest, "booking belongs to another user")
	ErrBookingNotActive   = response.NewError(http.StatusBadRequest, "booking is not active")
	ErrBookingNotReusable = response.NewError(http.StatusBadRequest, "booking row cannot be reused")
	ErrMaxChangesReached  = response.NewError(http.StatusBadRequest, "booking has already been rescheduled the maximum number of times")
	ErrCourseInactive     = response.NewError(http.StatusBadRequest, "course record is not active or outside its validity window")
	ErrCourseNotOwned     = response.NewError(http.StatusBadRequest, "course record belongs to another patient")
	ErrInvalidSlotWindow  = response.NewError(http.StatusBadRequest, "slot end time must be after start time")
)
