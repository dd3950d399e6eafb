package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TimeSlotRepository interface {
	Create(ctx context.Context, sl *TimeSlot) error
	GetByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	Update(ctx context.Context, sl *TimeSlot) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, limit, offset int) ([]*TimeSlot, int, error)
	// HasNearbyOpen reports whether the practitioner has another open slot
	// whose start is within the window of start, excluding the given slot id
	// (uuid.Nil to exclude nothing).
	HasNearbyOpen(ctx context.Context, practitionerID uuid.UUID, start time.Time, window time.Duration, exclude uuid.UUID) (bool, error)
}

type BookingRepository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	Update(ctx context.Context, b *Booking) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Booking, int, error)
	// FindReusable returns the patient's practitioner-cancelled booking row
	// for the course, or nil when no such row exists.
	FindReusable(ctx context.Context, patientID, courseRecordID uuid.UUID) (*Booking, error)
	// HasActiveNear reports whether the patient has another active booking
	// whose start is within the window of start, excluding the given booking
	// id (uuid.Nil to exclude nothing).
	HasActiveNear(ctx context.Context, patientID uuid.UUID, start time.Time, window time.Duration, exclude uuid.UUID) (bool, error)
	// CountCancelledByPractitioner counts bookings the practitioner has
	// released, used to distinguish a first no-fault cancellation from a
	// repeat.
	CountCancelledByPractitioner(ctx context.Context, practitionerID uuid.UUID) (int, error)
	// ListActiveInWindow returns active bookings whose session window
	// overlaps [from, to], ordered by start time. The scheduler's bounded
	// scan.
	ListActiveInWindow(ctx context.Context, from, to time.Time, limit int) ([]*Booking, error)
}

type CourseRecordRepository interface {
	Create(ctx context.Context, cr *CourseRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*CourseRecord, error)
	Update(ctx context.Context, cr *CourseRecord) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*CourseRecord, int, error)
}
