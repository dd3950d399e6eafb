// Package scheduler drives the room lifecycle: a fixed 60-second tick that
// opens a video room ahead of each active booking's session and closes it
// after the post-session grace, cascading completion onto the booking,
// course record and time slot.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/sgshy1995/sens-server-sub000/internal/domain/room"
	"github.com/sgshy1995/sens-server-sub000/internal/domain/scheduling"
	"github.com/sgshy1995/sens-server-sub000/internal/platform/db"
	"github.com/sgshy1995/sens-server-sub000/internal/platform/kafka"
)

// scanLimit bounds how many rows one tick processes per transition. Anything
// beyond the limit is picked up by the next tick.
const scanLimit = 500

// TickLocker coordinates ticks across horizontally scaled instances. May be
// nil when a single instance runs.
type TickLocker interface {
	AcquireTickLock(ctx context.Context, instanceID string, ttl time.Duration) (bool, error)
	ReleaseTickLock(ctx context.Context, instanceID string) error
}

// EventPublisher pushes lifecycle events onto the event bus. May be nil.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event kafka.BookingEvent) error
}

type Scheduler struct {
	bookings scheduling.BookingRepository
	slots    scheduling.TimeSlotRepository
	courses  scheduling.CourseRecordRepository
	rooms    room.Repository
	locker   TickLocker
	events   EventPublisher
	log      zerolog.Logger

	instanceID string
	interval   time.Duration

	tx  func(ctx context.Context, fn func(ctx context.Context) error) error
	now func() time.Time
}

// New wires the scheduler. pool may be nil, in which case per-booking
// transitions run without a transaction (tests).
func New(pool *pgxpool.Pool, bookings scheduling.BookingRepository, slots scheduling.TimeSlotRepository, courses scheduling.CourseRecordRepository, rooms room.Repository, locker TickLocker, events EventPublisher, interval time.Duration, logger zerolog.Logger) *Scheduler {
	s := &Scheduler{
		bookings:   bookings,
		slots:      slots,
		courses:    courses,
		rooms:      rooms,
		locker:     locker,
		events:     events,
		log:        logger,
		instanceID: uuid.NewString(),
		interval:   interval,
		now:        time.Now,
	}
	s.tx = func(ctx context.Context, fn func(ctx context.Context) error) error {
		if pool == nil {
			return fn(ctx)
		}
		return db.WithTx(ctx, pool, fn)
	}
	return s
}

// Run ticks until the context is cancelled. Missed ticks are not replayed;
// every transition is re-evaluated from current state on the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Str("instance", s.instanceID).Msg("scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scan of both transitions. Safe to call twice in a row: room
// creation pre-checks for an existing open room and closing selects only
// open rooms, so immediate re-runs apply nothing.
func (s *Scheduler) Tick(ctx context.Context) {
	if s.locker != nil {
		ok, err := s.locker.AcquireTickLock(ctx, s.instanceID, s.interval)
		if err != nil {
			s.log.Error().Err(err).Msg("tick lock acquire failed")
			return
		}
		if !ok {
			s.log.Debug().Msg("tick lock held by another instance")
			return
		}
		defer func() {
			if err := s.locker.ReleaseTickLock(ctx, s.instanceID); err != nil {
				s.log.Error().Err(err).Msg("tick lock release failed")
			}
		}()
	}

	s.openRooms(ctx)
	s.closeRooms(ctx)
}

// openRooms creates a room for every active booking whose session window is
// current: start within the next 90 minutes (or already started) and end
// within the post-session grace. Bounded indexed scan; per-row failures log
// and continue.
func (s *Scheduler) openRooms(ctx context.Context) {
	now := s.now()
	candidates, err := s.bookings.ListActiveInWindow(ctx, now.Add(-scheduling.CloseGrace), now.Add(scheduling.LeadWindow), scanLimit)
	if err != nil {
		s.log.Error().Err(err).Msg("open scan failed")
		return
	}

	for _, b := range candidates {
		if now.Before(b.StartTime.Add(-scheduling.LeadWindow)) {
			continue
		}
		if err := s.openRoomFor(ctx, b); err != nil {
			s.log.Error().Err(err).Str("booking_id", b.ID.String()).Msg("open room failed")
		}
	}
}

func (s *Scheduler) openRoomFor(ctx context.Context, b *scheduling.Booking) error {
	existing, err := s.rooms.FindOpenByBooking(ctx, b.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	rm := &room.Room{
		RoomNumber:     room.NewRoomNumber(),
		BookingID:      b.ID,
		SlotID:         b.SlotID,
		CourseRecordID: b.CourseRecordID,
		PractitionerID: b.PractitionerID,
		PatientID:      b.PatientID,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		Status:         room.StatusOpen,
	}
	if err := s.rooms.Create(ctx, rm); err != nil {
		return err
	}

	s.log.Info().
		Str("booking_id", b.ID.String()).
		Str("room_number", rm.RoomNumber).
		Time("start", b.StartTime).
		Msg("room opened")
	s.publish(ctx, kafka.BookingEvent{
		Type:           kafka.EventRoomOpened,
		BookingID:      b.ID.String(),
		SlotID:         b.SlotID.String(),
		PatientID:      b.PatientID.String(),
		PractitionerID: b.PractitionerID.String(),
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
	})
	return nil
}

// closeRooms closes every open room whose session ended at least the grace
// period ago, completing the booking, slot and course record in one
// transaction per room. Per-row failures log and continue.
func (s *Scheduler) closeRooms(ctx context.Context) {
	now := s.now()
	rooms, err := s.rooms.ListOpenEndedBefore(ctx, now.Add(-scheduling.CloseGrace), scanLimit)
	if err != nil {
		s.log.Error().Err(err).Msg("close scan failed")
		return
	}

	for _, rm := range rooms {
		if err := s.closeRoom(ctx, rm, now); err != nil {
			s.log.Error().Err(err).Str("room_id", rm.ID.String()).Msg("close room failed")
		}
	}
}

func (s *Scheduler) closeRoom(ctx context.Context, rm *room.Room, now time.Time) error {
	var (
		b         *scheduling.Booking
		remaining int
	)
	err := s.tx(ctx, func(ctx context.Context) error {
		if err := rm.Close(now); err != nil {
			return err
		}
		if err := s.rooms.Update(ctx, rm); err != nil {
			return err
		}

		var err error
		b, err = s.bookings.GetByID(ctx, rm.BookingID)
		if err != nil {
			return err
		}
		if err := b.Complete(); err != nil {
			return err
		}
		if err := s.bookings.Update(ctx, b); err != nil {
			return err
		}

		cr, err := s.courses.GetByID(ctx, rm.CourseRecordID)
		if err != nil {
			return err
		}
		if err := cr.RecordSession(); err != nil {
			return err
		}
		if err := s.courses.Update(ctx, cr); err != nil {
			return err
		}
		remaining = cr.TotalSessions - cr.LearnNum

		sl, err := s.slots.GetByID(ctx, rm.SlotID)
		if err != nil {
			return err
		}
		if err := sl.Complete(); err != nil {
			return err
		}
		return s.slots.Update(ctx, sl)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("booking_id", rm.BookingID.String()).
		Str("room_number", rm.RoomNumber).
		Msg("room closed, session completed")
	s.publish(ctx, kafka.BookingEvent{
		Type:              kafka.EventSessionCompleted,
		BookingID:         b.ID.String(),
		SlotID:            b.SlotID.String(),
		PatientID:         b.PatientID.String(),
		PractitionerID:    b.PractitionerID.String(),
		StartTime:         b.StartTime,
		EndTime:           b.EndTime,
		RemainingSessions: remaining,
	})
	return nil
}

func (s *Scheduler) publish(ctx context.Context, event kafka.BookingEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event.BookingID, event); err != nil {
		s.log.Error().Err(err).Str("event", event.Type).Msg("publish event failed")
	}
}
