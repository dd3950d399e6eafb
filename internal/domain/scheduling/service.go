package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/sgshy1995/sens-server-sub000/internal/platform/db"
	"github.com/sgshy1995/sens-server-sub000/internal/platform/kafka"
)

// EventPublisher pushes booking lifecycle events onto the event bus. May be
// nil, in which case events are dropped.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event kafka.BookingEvent) error
}

// RoomLookup resolves the open room for a booking when composing views.
// Returns nil when no room is open for the booking.
type RoomLookup interface {
	OpenRoomInfo(ctx context.Context, bookingID uuid.UUID) (*RoomInfo, error)
}

type Service struct {
	slots    TimeSlotRepository
	bookings BookingRepository
	courses  CourseRecordRepository
	rooms    RoomLookup
	events   EventPublisher

	tx  func(ctx context.Context, fn func(ctx context.Context) error) error
	now func() time.Time
}

// NewService wires the scheduling service. pool may be nil, in which case
// multi-step mutations run without a transaction (tests).
func NewService(pool *pgxpool.Pool, slots TimeSlotRepository, bookings BookingRepository, courses CourseRecordRepository, rooms RoomLookup, events EventPublisher) *Service {
	s := &Service{
		slots:    slots,
		bookings: bookings,
		courses:  courses,
		rooms:    rooms,
		events:   events,
		now:      time.Now,
	}
	s.tx = func(ctx context.Context, fn func(ctx context.Context) error) error {
		if pool == nil {
			return fn(ctx)
		}
		return db.WithTx(ctx, pool, fn)
	}
	return s
}

func (s *Service) publish(ctx context.Context, key string, event kafka.BookingEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, key, event); err != nil {
		log.Error().Err(err).Str("event", event.Type).Str("key", key).Msg("publish booking event failed")
	}
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}

// -- Time slots --

// CreateSlot publishes an availability window for the practitioner. Rejects
// a slot whose start is within 90 minutes of any of the practitioner's
// other open slots.
func (s *Service) CreateSlot(ctx context.Context, practitionerID uuid.UUID, start, end time.Time) (*TimeSlot, error) {
	if practitionerID == uuid.Nil {
		return nil, ErrNotSlotOwner
	}
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return nil, ErrInvalidSlotWindow
	}

	near, err := s.slots.HasNearbyOpen(ctx, practitionerID, start, LeadWindow, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if near {
		return nil, ErrSlotTooClose
	}

	sl := &TimeSlot{
		PractitionerID: practitionerID,
		StartTime:      start,
		EndTime:        end,
		Status:         SlotOpen,
	}
	if err := s.slots.Create(ctx, sl); err != nil {
		return nil, err
	}
	return sl, nil
}

// UpdateSlot moves an unbooked slot's window, re-validating the spacing rule
// against the practitioner's other slots.
func (s *Service) UpdateSlot(ctx context.Context, practitionerID, slotID uuid.UUID, start, end time.Time) (*TimeSlot, error) {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return nil, ErrInvalidSlotWindow
	}

	sl, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, notFound(err, ErrSlotNotFound)
	}
	if sl.PractitionerID != practitionerID {
		return nil, ErrNotSlotOwner
	}
	if sl.Booked {
		return nil, ErrSlotBooked
	}
	if sl.Status != SlotOpen {
		return nil, ErrSlotNotOpen
	}

	near, err := s.slots.HasNearbyOpen(ctx, practitionerID, start, LeadWindow, slotID)
	if err != nil {
		return nil, err
	}
	if near {
		return nil, ErrSlotTooClose
	}

	sl.StartTime = start
	sl.EndTime = end
	if err := s.slots.Update(ctx, sl); err != nil {
		return nil, err
	}
	return sl, nil
}

// CancelSlot withdraws a slot. An unbooked slot is hard-deleted. A booked
// slot is soft-cancelled and its booking released; a repeat cancellation by
// the same practitioner compensates the patient with one extra course
// session. All writes happen in one transaction.
func (s *Service) CancelSlot(ctx context.Context, practitionerID, slotID uuid.UUID, reason string) (*SlotCancelResult, error) {
	sl, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, notFound(err, ErrSlotNotFound)
	}
	if sl.PractitionerID != practitionerID {
		return nil, ErrNotSlotOwner
	}

	if !sl.Booked {
		if sl.Status != SlotOpen {
			return nil, ErrSlotNotOpen
		}
		if err := s.slots.Delete(ctx, slotID); err != nil {
			return nil, err
		}
		return &SlotCancelResult{Deleted: true, Message: "slot deleted"}, nil
	}

	var result *SlotCancelResult
	var event kafka.BookingEvent
	err = s.tx(ctx, func(ctx context.Context) error {
		prior, err := s.bookings.CountCancelledByPractitioner(ctx, practitionerID)
		if err != nil {
			return err
		}

		if err := sl.Cancel(reason); err != nil {
			return err
		}
		if err := s.slots.Update(ctx, sl); err != nil {
			return err
		}

		b, err := s.bookings.GetByID(ctx, *sl.BookingID)
		if err != nil {
			return notFound(err, ErrBookingNotFound)
		}
		if err := b.CancelByPractitioner(reason); err != nil {
			return err
		}
		if err := s.bookings.Update(ctx, b); err != nil {
			return err
		}

		result = &SlotCancelResult{Slot: sl}
		if prior > 0 {
			cr, err := s.courses.GetByID(ctx, b.CourseRecordID)
			if err != nil {
				return notFound(err, ErrCourseNotFound)
			}
			if err := cr.Compensate(); err != nil {
				return err
			}
			if err := s.courses.Update(ctx, cr); err != nil {
				return err
			}
			result.Compensated = true
			result.Message = "slot cancelled; the patient has been compensated with one extra session"
		} else {
			result.Message = "slot cancelled; first cancellation carries no penalty"
		}

		event = kafka.BookingEvent{
			Type:           kafka.EventSlotCancelled,
			BookingID:      b.ID.String(),
			SlotID:         sl.ID.String(),
			PatientID:      b.PatientID.String(),
			PractitionerID: b.PractitionerID.String(),
			StartTime:      b.StartTime,
			EndTime:        b.EndTime,
			Reason:         reason,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event.BookingID, event)
	return result, nil
}

// GetSlot returns a slot by id.
func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	sl, err := s.slots.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrSlotNotFound)
	}
	return sl, nil
}

// ListSlots returns the practitioner's slots, paginated.
func (s *Service) ListSlots(ctx context.Context, practitionerID uuid.UUID, limit, offset int) ([]*TimeSlot, int, error) {
	return s.slots.ListByPractitioner(ctx, practitionerID, limit, offset)
}

// -- Bookings --

// CreateBooking reserves a slot for the patient against a course record.
// Reuses the patient's practitioner-cancelled booking row for the same
// course when one exists. Runs in one transaction and publishes
// booking_created on success.
func (s *Service) CreateBooking(ctx context.Context, patientID, slotID, courseRecordID uuid.UUID) (*Booking, error) {
	var booking *Booking
	err := s.tx(ctx, func(ctx context.Context) error {
		sl, err := s.slots.GetByID(ctx, slotID)
		if err != nil {
			return notFound(err, ErrSlotNotFound)
		}
		if sl.Status != SlotOpen {
			return ErrSlotNotOpen
		}
		if sl.Booked {
			return ErrSlotBooked
		}
		if sl.PractitionerID == patientID {
			return ErrOwnSlot
		}

		cr, err := s.courses.GetByID(ctx, courseRecordID)
		if err != nil {
			return notFound(err, ErrCourseNotFound)
		}
		if cr.PatientID != patientID {
			return ErrCourseNotOwned
		}
		if !cr.UsableAt(s.now()) {
			return ErrCourseInactive
		}

		near, err := s.bookings.HasActiveNear(ctx, patientID, sl.StartTime, LeadWindow, uuid.Nil)
		if err != nil {
			return err
		}
		if near {
			return ErrBookingTooClose
		}

		reusable, err := s.bookings.FindReusable(ctx, patientID, courseRecordID)
		if err != nil {
			return err
		}
		if reusable != nil {
			if err := reusable.Reactivate(sl); err != nil {
				return err
			}
			if err := s.bookings.Update(ctx, reusable); err != nil {
				return err
			}
			booking = reusable
		} else {
			booking = &Booking{
				PatientID:      patientID,
				PractitionerID: sl.PractitionerID,
				SlotID:         sl.ID,
				CourseRecordID: courseRecordID,
				StartTime:      sl.StartTime,
				EndTime:        sl.EndTime,
				Status:         BookingActive,
			}
			if err := s.bookings.Create(ctx, booking); err != nil {
				return err
			}
		}

		if err := sl.MarkBooked(booking.ID); err != nil {
			return err
		}
		return s.slots.Update(ctx, sl)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, booking.ID.String(), kafka.BookingEvent{
		Type:           kafka.EventBookingCreated,
		BookingID:      booking.ID.String(),
		SlotID:         booking.SlotID.String(),
		PatientID:      booking.PatientID.String(),
		PractitionerID: booking.PractitionerID.String(),
		StartTime:      booking.StartTime,
		EndTime:        booking.EndTime,
	})
	return booking, nil
}

// RescheduleBooking moves an active booking onto a new slot. Refused once
// the booking has already been rescheduled. Runs in one transaction and
// publishes booking_rescheduled on success.
func (s *Service) RescheduleBooking(ctx context.Context, patientID, bookingID, newSlotID uuid.UUID) (*Booking, error) {
	var booking *Booking
	err := s.tx(ctx, func(ctx context.Context) error {
		b, err := s.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return notFound(err, ErrBookingNotFound)
		}
		if b.PatientID != patientID {
			return ErrBookingNotOwned
		}
		if b.Status != BookingActive {
			return ErrBookingNotActive
		}
		if b.ChangeNum >= MaxChanges {
			return ErrMaxChangesReached
		}

		newSlot, err := s.slots.GetByID(ctx, newSlotID)
		if err != nil {
			return notFound(err, ErrSlotNotFound)
		}
		if newSlot.Status != SlotOpen {
			return ErrSlotNotOpen
		}
		if newSlot.Booked {
			return ErrSlotBooked
		}
		if newSlot.PractitionerID == patientID {
			return ErrOwnSlot
		}

		near, err := s.bookings.HasActiveNear(ctx, patientID, newSlot.StartTime, LeadWindow, bookingID)
		if err != nil {
			return err
		}
		if near {
			return ErrBookingTooClose
		}

		oldSlot, err := s.slots.GetByID(ctx, b.SlotID)
		if err != nil {
			return notFound(err, ErrSlotNotFound)
		}
		if err := oldSlot.Release(); err != nil {
			return err
		}
		if err := s.slots.Update(ctx, oldSlot); err != nil {
			return err
		}

		if err := b.Reschedule(newSlot); err != nil {
			return err
		}
		if err := s.bookings.Update(ctx, b); err != nil {
			return err
		}

		if err := newSlot.MarkBooked(b.ID); err != nil {
			return err
		}
		if err := s.slots.Update(ctx, newSlot); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, booking.ID.String(), kafka.BookingEvent{
		Type:           kafka.EventBookingRescheduled,
		BookingID:      booking.ID.String(),
		SlotID:         booking.SlotID.String(),
		PatientID:      booking.PatientID.String(),
		PractitionerID: booking.PractitionerID.String(),
		StartTime:      booking.StartTime,
		EndTime:        booking.EndTime,
	})
	return booking, nil
}

// CancelBooking cancels an active booking at the patient's request, spending
// one unit of the course's cancellation allowance and freeing the slot. Runs
// in one transaction and publishes booking_cancelled on success.
func (s *Service) CancelBooking(ctx context.Context, patientID, bookingID uuid.UUID, reason string) (*Booking, error) {
	var booking *Booking
	err := s.tx(ctx, func(ctx context.Context) error {
		b, err := s.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return notFound(err, ErrBookingNotFound)
		}
		if b.PatientID != patientID {
			return ErrBookingNotOwned
		}
		if b.Status != BookingActive {
			return ErrBookingNotActive
		}

		cr, err := s.courses.GetByID(ctx, b.CourseRecordID)
		if err != nil {
			return notFound(err, ErrCourseNotFound)
		}
		if err := cr.ConsumeCancellation(); err != nil {
			return err
		}
		if err := s.courses.Update(ctx, cr); err != nil {
			return err
		}

		if err := b.CancelByPatient(reason); err != nil {
			return err
		}
		if err := s.bookings.Update(ctx, b); err != nil {
			return err
		}

		sl, err := s.slots.GetByID(ctx, b.SlotID)
		if err != nil {
			return notFound(err, ErrSlotNotFound)
		}
		if err := sl.Release(); err != nil {
			return err
		}
		if err := s.slots.Update(ctx, sl); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, booking.ID.String(), kafka.BookingEvent{
		Type:           kafka.EventBookingCancelled,
		BookingID:      booking.ID.String(),
		SlotID:         booking.SlotID.String(),
		PatientID:      booking.PatientID.String(),
		PractitionerID: booking.PractitionerID.String(),
		StartTime:      booking.StartTime,
		EndTime:        booking.EndTime,
		Reason:         reason,
	})
	return booking, nil
}

// GetBooking returns the composed booking view. The caller must be the
// booking's patient or practitioner.
func (s *Service) GetBooking(ctx context.Context, callerID, bookingID uuid.UUID) (*BookingView, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, notFound(err, ErrBookingNotFound)
	}
	if b.PatientID != callerID && b.PractitionerID != callerID {
		return nil, ErrBookingNotOwned
	}
	return s.composeView(ctx, b), nil
}

// ListBookingsByPatient returns the patient's bookings, cancelled history
// included, as composed views.
func (s *Service) ListBookingsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*BookingView, int, error) {
	items, total, err := s.bookings.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	views := make([]*BookingView, len(items))
	for i, b := range items {
		views[i] = s.composeView(ctx, b)
	}
	return views, total, nil
}

// composeView assembles the booking with its related slot, course and room
// records. Lookup failures degrade to a partial view rather than failing the
// read.
func (s *Service) composeView(ctx context.Context, b *Booking) *BookingView {
	view := &BookingView{Booking: *b}

	if sl, err := s.slots.GetByID(ctx, b.SlotID); err == nil {
		view.Slot = &SlotInfo{
			ID:             sl.ID,
			PractitionerID: sl.PractitionerID,
			StartTime:      sl.StartTime,
			EndTime:        sl.EndTime,
			Status:         sl.Status,
		}
	}
	if cr, err := s.courses.GetByID(ctx, b.CourseRecordID); err == nil {
		view.Course = &CourseInfo{
			ID:            cr.ID,
			CourseID:      cr.CourseID,
			TotalSessions: cr.TotalSessions,
			LearnNum:      cr.LearnNum,
			CancelNum:     cr.CancelNum,
			Status:        cr.Status,
			ValidFrom:     cr.ValidFrom,
			ValidUntil:    cr.ValidUntil,
		}
	}
	if s.rooms != nil && b.Status == BookingActive {
		if info, err := s.rooms.OpenRoomInfo(ctx, b.ID); err == nil && info != nil {
			view.Room = info
		}
	}
	return view
}

// -- Course records --

// CreateCourseRecord registers a purchased course entitlement.
func (s *Service) CreateCourseRecord(ctx context.Context, cr *CourseRecord) error {
	if cr.PatientID == uuid.Nil {
		return ErrCourseNotOwned
	}
	if cr.TotalSessions <= 0 || !cr.ValidUntil.After(cr.ValidFrom) {
		return ErrCourseInactive
	}
	if cr.Status == "" {
		cr.Status = CourseActive
	}
	return s.courses.Create(ctx, cr)
}

// GetCourseRecord returns a course record by id.
func (s *Service) GetCourseRecord(ctx context.Context, id uuid.UUID) (*CourseRecord, error) {
	cr, err := s.courses.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrCourseNotFound)
	}
	return cr, nil
}

// ListCourseRecordsByPatient returns the patient's course records, paginated.
func (s *Service) ListCourseRecordsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*CourseRecord, int, error) {
	return s.courses.ListByPatient(ctx, patientID, limit, offset)
}
