// Package room manages the ephemeral video rooms bound to bookings: one
// open room per active booking while the session window (start−90m to
// end+25m) is current.
package room

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sgshy1995/sens-server-sub000/pkg/response"
)

// Status is the lifecycle state of a Room.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

var (
	ErrRoomNotFound     = response.NewError(http.StatusNotFound, "room not found")
	ErrRoomNotOpen      = response.NewError(http.StatusBadRequest, "room is not open")
	ErrRoomUserMismatch = response.NewError(http.StatusBadRequest, "user does not belong to this room")
	ErrInvalidRole      = response.NewError(http.StatusBadRequest, "role must be practitioner or patient")
)

// Room maps to the room table: a realtime session bound to one booking,
// carrying copies of the related ids and the session window.
type Room struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	RoomNumber     string     `db:"room_number" json:"room_number"`
	BookingID      uuid.UUID  `db:"booking_id" json:"booking_id"`
	SlotID         uuid.UUID  `db:"slot_id" json:"slot_id"`
	CourseRecordID uuid.UUID  `db:"course_record_id" json:"course_record_id"`
	PractitionerID uuid.UUID  `db:"practitioner_id" json:"practitioner_id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	StartTime      time.Time  `db:"start_time" json:"start_time"`
	EndTime        time.Time  `db:"end_time" json:"end_time"`
	Status         Status     `db:"status" json:"status"`
	ClosedAt       *time.Time `db:"closed_at" json:"closed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Close transitions an open room to closed, stamping the close time.
func (r *Room) Close(now time.Time) error {
	switch r.Status {
	case StatusOpen:
		r.Status = StatusClosed
		r.ClosedAt = &now
		return nil
	case StatusClosed:
		return ErrRoomNotOpen
	default:
		return ErrRoomNotOpen
	}
}

// NewRoomNumber generates the random 9-digit numeric identifier the realtime
// service expects.
func NewRoomNumber() string {
	return fmt.Sprintf("%09d", rand.Intn(1_000_000_000))
}
