package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Domain-wide timing and allowance constants. The 90-minute window governs
// both slot spacing and booking conflict checks, and doubles as the room
// pre-open lead; the source system applies the same value in all three
// places.
const (
	LeadWindow = 90 * time.Minute
	CloseGrace = 25 * time.Minute

	MaxChanges       = 1
	MaxCancellations = 1
)

// SlotStatus is the lifecycle state of a TimeSlot.
type SlotStatus string

const (
	SlotOpen      SlotStatus = "open"
	SlotCancelled SlotStatus = "cancelled"
	SlotCompleted SlotStatus = "completed"
)

// BookingStatus is the lifecycle state of a Booking.
type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// CourseStatus is the lifecycle state of a CourseRecord.
type CourseStatus string

const (
	CourseActive    CourseStatus = "active"
	CourseCompleted CourseStatus = "completed"
	CourseExpired   CourseStatus = "expired"
)

// TimeSlot maps to the time_slot table: an availability window a
// practitioner publishes.
type TimeSlot struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PractitionerID uuid.UUID  `db:"practitioner_id" json:"practitioner_id"`
	StartTime      time.Time  `db:"start_time" json:"start_time"`
	EndTime        time.Time  `db:"end_time" json:"end_time"`
	Booked         bool       `db:"booked" json:"booked"`
	BookingID      *uuid.UUID `db:"booking_id" json:"booking_id,omitempty"`
	CancelReason   *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	Status         SlotStatus `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// MarkBooked binds the slot to a booking. Only an open, unbooked slot can be
// claimed.
func (sl *TimeSlot) MarkBooked(bookingID uuid.UUID) error {
	switch sl.Status {
	case SlotOpen:
		if sl.Booked {
			return ErrSlotBooked
		}
		sl.Booked = true
		sl.BookingID = &bookingID
		return nil
	case SlotCancelled, SlotCompleted:
		return ErrSlotNotOpen
	default:
		return ErrSlotNotOpen
	}
}

// Release frees a booked slot back to open availability.
func (sl *TimeSlot) Release() error {
	switch sl.Status {
	case SlotOpen:
		sl.Booked = false
		sl.BookingID = nil
		return nil
	case SlotCancelled, SlotCompleted:
		return ErrSlotNotOpen
	default:
		return ErrSlotNotOpen
	}
}

// Cancel soft-cancels a booked slot, recording the practitioner's reason.
func (sl *TimeSlot) Cancel(reason string) error {
	switch sl.Status {
	case SlotOpen:
		sl.Status = SlotCancelled
		sl.CancelReason = &reason
		return nil
	case SlotCancelled, SlotCompleted:
		return ErrSlotNotOpen
	default:
		return ErrSlotNotOpen
	}
}

// Complete marks the slot's session as delivered.
func (sl *TimeSlot) Complete() error {
	switch sl.Status {
	case SlotOpen:
		sl.Status = SlotCompleted
		return nil
	case SlotCancelled, SlotCompleted:
		return ErrSlotNotOpen
	default:
		return ErrSlotNotOpen
	}
}

// Booking maps to the booking table: a patient's reservation of a TimeSlot.
// Start/end always mirror the bound slot at creation/reschedule time.
type Booking struct {
	ID                       uuid.UUID     `db:"id" json:"id"`
	PatientID                uuid.UUID     `db:"patient_id" json:"patient_id"`
	PractitionerID           uuid.UUID     `db:"practitioner_id" json:"practitioner_id"`
	SlotID                   uuid.UUID     `db:"slot_id" json:"slot_id"`
	CourseRecordID           uuid.UUID     `db:"course_record_id" json:"course_record_id"`
	StartTime                time.Time     `db:"start_time" json:"start_time"`
	EndTime                  time.Time     `db:"end_time" json:"end_time"`
	ChangeNum                int           `db:"change_num" json:"change_num"`
	PatientCancelReason      *string       `db:"patient_cancel_reason" json:"patient_cancel_reason,omitempty"`
	PractitionerCancelReason *string       `db:"practitioner_cancel_reason" json:"practitioner_cancel_reason,omitempty"`
	Status                   BookingStatus `db:"status" json:"status"`
	CreatedAt                time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time     `db:"updated_at" json:"updated_at"`
}

// Reschedule moves an active booking onto a new slot, mirroring the slot's
// window. Bounded to MaxChanges changes.
func (b *Booking) Reschedule(sl *TimeSlot) error {
	switch b.Status {
	case BookingActive:
		if b.ChangeNum >= MaxChanges {
			return ErrMaxChangesReached
		}
		b.SlotID = sl.ID
		b.PractitionerID = sl.PractitionerID
		b.StartTime = sl.StartTime
		b.EndTime = sl.EndTime
		b.ChangeNum++
		return nil
	case BookingCancelled, BookingCompleted:
		return ErrBookingNotActive
	default:
		return ErrBookingNotActive
	}
}

// CancelByPatient cancels an active booking at the patient's request.
func (b *Booking) CancelByPatient(reason string) error {
	switch b.Status {
	case BookingActive:
		b.Status = BookingCancelled
		b.PatientCancelReason = &reason
		return nil
	case BookingCancelled, BookingCompleted:
		return ErrBookingNotActive
	default:
		return ErrBookingNotActive
	}
}

// CancelByPractitioner releases an active booking when the practitioner
// withdraws the slot.
func (b *Booking) CancelByPractitioner(reason string) error {
	switch b.Status {
	case BookingActive:
		b.Status = BookingCancelled
		b.PractitionerCancelReason = &reason
		return nil
	case BookingCancelled, BookingCompleted:
		return ErrBookingNotActive
	default:
		return ErrBookingNotActive
	}
}

// Complete marks the booking's session as delivered.
func (b *Booking) Complete() error {
	switch b.Status {
	case BookingActive:
		b.Status = BookingCompleted
		return nil
	case BookingCancelled, BookingCompleted:
		return ErrBookingNotActive
	default:
		return ErrBookingNotActive
	}
}

// Reactivate reuses a practitioner-cancelled booking row for a fresh
// reservation against a new slot, preserving the cancellation history.
func (b *Booking) Reactivate(sl *TimeSlot) error {
	if b.Status != BookingCancelled || b.PractitionerCancelReason == nil {
		return ErrBookingNotReusable
	}
	b.Status = BookingActive
	b.SlotID = sl.ID
	b.PractitionerID = sl.PractitionerID
	b.StartTime = sl.StartTime
	b.EndTime = sl.EndTime
	b.PatientCancelReason = nil
	return nil
}

// CourseRecord maps to the course_record table: entitlement and consumption
// counters for a purchased course of sessions.
type CourseRecord struct {
	ID            uuid.UUID    `db:"id" json:"id"`
	PatientID     uuid.UUID    `db:"patient_id" json:"patient_id"`
	CourseID      uuid.UUID    `db:"course_id" json:"course_id"`
	ValidFrom     time.Time    `db:"valid_from" json:"valid_from"`
	ValidUntil    time.Time    `db:"valid_until" json:"valid_until"`
	TotalSessions int          `db:"total_sessions" json:"total_sessions"`
	LearnNum      int          `db:"learn_num" json:"learn_num"`
	CancelNum     int          `db:"cancel_num" json:"cancel_num"`
	Status        CourseStatus `db:"status" json:"status"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// UsableAt reports whether the record can back a new booking at the given
// instant.
func (cr *CourseRecord) UsableAt(now time.Time) bool {
	return cr.Status == CourseActive &&
		!now.Before(cr.ValidFrom) && !now.After(cr.ValidUntil)
}

// ConsumeCancellation spends one unit of the patient's cancellation
// allowance.
func (cr *CourseRecord) ConsumeCancellation() error {
	switch cr.Status {
	case CourseActive:
		if cr.CancelNum >= MaxCancellations {
			return ErrCancelAllowanceExhausted
		}
		cr.CancelNum++
		return nil
	case CourseCompleted, CourseExpired:
		return ErrCourseInactive
	default:
		return ErrCourseInactive
	}
}

// RecordSession counts one delivered session, transitioning the record to
// completed when the entitlement is exhausted.
func (cr *CourseRecord) RecordSession() error {
	switch cr.Status {
	case CourseActive:
		cr.LearnNum++
		if cr.LearnNum >= cr.TotalSessions {
			cr.Status = CourseCompleted
		}
		return nil
	case CourseCompleted, CourseExpired:
		return ErrCourseInactive
	default:
		return ErrCourseInactive
	}
}

// Compensate grants the patient one extra session after a repeat
// practitioner cancellation.
func (cr *CourseRecord) Compensate() error {
	switch cr.Status {
	case CourseActive:
		cr.TotalSessions++
		return nil
	case CourseCompleted, CourseExpired:
		return ErrCourseInactive
	default:
		return ErrCourseInactive
	}
}

// Expire marks a record whose validity window has passed.
func (cr *CourseRecord) Expire() error {
	switch cr.Status {
	case CourseActive:
		cr.Status = CourseExpired
		return nil
	case CourseCompleted, CourseExpired:
		return ErrCourseInactive
	default:
		return ErrCourseInactive
	}
}

// SlotInfo is the slot subset embedded in booking views.
type SlotInfo struct {
	ID             uuid.UUID  `json:"id"`
	PractitionerID uuid.UUID  `json:"practitioner_id"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	Status         SlotStatus `json:"status"`
}

// CourseInfo is the course-record subset embedded in booking views.
type CourseInfo struct {
	ID            uuid.UUID    `json:"id"`
	CourseID      uuid.UUID    `json:"course_id"`
	TotalSessions int          `json:"total_sessions"`
	LearnNum      int          `json:"learn_num"`
	CancelNum     int          `json:"cancel_num"`
	Status        CourseStatus `json:"status"`
	ValidFrom     time.Time    `json:"valid_from"`
	ValidUntil    time.Time    `json:"valid_until"`
}

// RoomInfo is the room subset embedded in booking views.
type RoomInfo struct {
	ID         uuid.UUID `json:"id"`
	RoomNumber string    `json:"room_number"`
	Status     string    `json:"status"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

// BookingView is the composed read DTO for booking endpoints: the booking
// row assembled with its related slot, course and room lookups.
type BookingView struct {
	Booking
	Slot   *SlotInfo   `json:"slot,omitempty"`
	Course *CourseInfo `json:"course,omitempty"`
	Room   *RoomInfo   `json:"room,omitempty"`
}

// SlotCancelResult reports the outcome of a practitioner slot cancellation.
type SlotCancelResult struct {
	Slot        *TimeSlot `json:"slot,omitempty"`
	Deleted     bool      `json:"deleted"`
	Compensated bool      `json:"compensated"`
	Message     string    `json:"message"`
}
