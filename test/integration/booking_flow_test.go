package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sgshy1995/sens-server-sub000/internal/domain/room"
	"github.com/sgshy1995/sens-server-sub000/internal/domain/scheduling"
	"github.com/sgshy1995/sens-server-sub000/internal/scheduler"
)

func newSchedulingService() *scheduling.Service {
	return scheduling.NewService(
		globalDB.Pool,
		scheduling.NewTimeSlotRepoPG(globalDB.Pool),
		scheduling.NewBookingRepoPG(globalDB.Pool),
		scheduling.NewCourseRecordRepoPG(globalDB.Pool),
		nil,
		nil,
	)
}

func createCourse(t *testing.T, ctx context.Context, svc *scheduling.Service, patientID uuid.UUID) *scheduling.CourseRecord {
	t.Helper()
	cr := &scheduling.CourseRecord{
		PatientID:     patientID,
		CourseID:      uuid.New(),
		ValidFrom:     time.Now().Add(-24 * time.Hour),
		ValidUntil:    time.Now().Add(60 * 24 * time.Hour),
		TotalSessions: 10,
	}
	if err := svc.CreateCourseRecord(ctx, cr); err != nil {
		t.Fatalf("create course record: %v", err)
	}
	return cr
}

func TestBookingFlow(t *testing.T) {
	ctx := context.Background()
	svc := newSchedulingService()

	practitionerID := uuid.New()
	patientID := uuid.New()
	start := time.Now().Add(48 * time.Hour).Truncate(time.Second)

	sl, err := svc.CreateSlot(ctx, practitionerID, start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}

	cr := createCourse(t, ctx, svc, patientID)

	t.Run("SpacingRejected", func(t *testing.T) {
		_, err := svc.CreateSlot(ctx, practitionerID, start.Add(30*time.Minute), start.Add(90*time.Minute))
		if !errors.Is(err, scheduling.ErrSlotTooClose) {
			t.Fatalf("expected ErrSlotTooClose, got %v", err)
		}
	})

	var bookingID uuid.UUID
	t.Run("Create", func(t *testing.T) {
		b, err := svc.CreateBooking(ctx, patientID, sl.ID, cr.ID)
		if err != nil {
			t.Fatalf("create booking: %v", err)
		}
		if b.Status != scheduling.BookingActive {
			t.Errorf("status = %s, want active", b.Status)
		}
		bookingID = b.ID

		got, err := svc.GetSlot(ctx, sl.ID)
		if err != nil {
			t.Fatalf("get slot: %v", err)
		}
		if !got.Booked {
			t.Error("slot should be marked booked")
		}
	})

	t.Run("DoubleBookingRejected", func(t *testing.T) {
		other := createCourse(t, ctx, svc, uuid.New())
		_, err := svc.CreateBooking(ctx, other.PatientID, sl.ID, other.ID)
		if !errors.Is(err, scheduling.ErrSlotBooked) {
			t.Fatalf("expected ErrSlotBooked, got %v", err)
		}
	})

	t.Run("Reschedule", func(t *testing.T) {
		newStart := start.Add(5 * time.Hour)
		newSlot, err := svc.CreateSlot(ctx, practitionerID, newStart, newStart.Add(time.Hour))
		if err != nil {
			t.Fatalf("create second slot: %v", err)
		}

		b, err := svc.RescheduleBooking(ctx, patientID, bookingID, newSlot.ID)
		if err != nil {
			t.Fatalf("reschedule booking: %v", err)
		}
		if b.SlotID != newSlot.ID {
			t.Errorf("booking slot = %s, want %s", b.SlotID, newSlot.ID)
		}
		if b.ChangeNum != 1 {
			t.Errorf("change_num = %d, want 1", b.ChangeNum)
		}

		old, err := svc.GetSlot(ctx, sl.ID)
		if err != nil {
			t.Fatalf("get original slot: %v", err)
		}
		if old.Booked {
			t.Error("original slot should be released")
		}

		// Second reschedule exceeds the change allowance.
		_, err = svc.RescheduleBooking(ctx, patientID, bookingID, sl.ID)
		if !errors.Is(err, scheduling.ErrMaxChangesReached) {
			t.Fatalf("expected ErrMaxChangesReached, got %v", err)
		}
	})

	t.Run("Cancel", func(t *testing.T) {
		b, err := svc.CancelBooking(ctx, patientID, bookingID, "schedule conflict")
		if err != nil {
			t.Fatalf("cancel booking: %v", err)
		}
		if b.Status != scheduling.BookingCancelled {
			t.Errorf("status = %s, want cancelled", b.Status)
		}

		got, err := svc.GetCourseRecord(ctx, cr.ID)
		if err != nil {
			t.Fatalf("get course record: %v", err)
		}
		if got.CancelNum != 1 {
			t.Errorf("cancel_num = %d, want 1", got.CancelNum)
		}
	})
}

func TestSchedulerTickAgainstDatabase(t *testing.T) {
	ctx := context.Background()
	svc := newSchedulingService()

	practitionerID := uuid.New()
	patientID := uuid.New()
	// Session starts within the lead window, so the tick should open a room.
	start := time.Now().Add(30 * time.Minute).Truncate(time.Second)

	sl, err := svc.CreateSlot(ctx, practitionerID, start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}
	cr := createCourse(t, ctx, svc, patientID)
	b, err := svc.CreateBooking(ctx, patientID, sl.ID, cr.ID)
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}

	roomRepo := room.NewRepoPG(globalDB.Pool)
	sched := scheduler.New(
		globalDB.Pool,
		scheduling.NewBookingRepoPG(globalDB.Pool),
		scheduling.NewTimeSlotRepoPG(globalDB.Pool),
		scheduling.NewCourseRecordRepoPG(globalDB.Pool),
		roomRepo,
		nil,
		nil,
		time.Minute,
		zerolog.Nop(),
	)

	sched.Tick(ctx)
	sched.Tick(ctx)

	rm, err := roomRepo.FindOpenByBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("find open room: %v", err)
	}
	if rm == nil {
		t.Fatal("expected an open room for the booking")
	}
	if len(rm.RoomNumber) != 9 {
		t.Errorf("room number = %q, want 9 digits", rm.RoomNumber)
	}

	// Double tick must not have duplicated the room: the partial unique
	// index allows only one open room per booking, so a second open room
	// would have failed the insert.
	rooms, err := roomRepo.ListOpenEndedBefore(ctx, time.Now().Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	count := 0
	for _, r := range rooms {
		if r.BookingID == b.ID {
			count++
		}
	}
	if count != 1 {
		t.Errorf("open rooms for booking = %d, want 1", count)
	}
}

func TestRoomCloseCascadeAgainstDatabase(t *testing.T) {
	ctx := context.Background()

	slotRepo := scheduling.NewTimeSlotRepoPG(globalDB.Pool)
	bookingRepo := scheduling.NewBookingRepoPG(globalDB.Pool)
	courseRepo := scheduling.NewCourseRecordRepoPG(globalDB.Pool)
	roomRepo := room.NewRepoPG(globalDB.Pool)

	// Seed a session that ended beyond the grace period.
	end := time.Now().Add(-30 * time.Minute).Truncate(time.Second)
	start := end.Add(-time.Hour)

	sl := &scheduling.TimeSlot{
		PractitionerID: uuid.New(),
		StartTime:      start,
		EndTime:        end,
		Booked:         true,
		Status:         scheduling.SlotOpen,
	}
	if err := slotRepo.Create(ctx, sl); err != nil {
		t.Fatalf("create slot: %v", err)
	}

	cr := &scheduling.CourseRecord{
		PatientID:     uuid.New(),
		CourseID:      uuid.New(),
		ValidFrom:     start.Add(-24 * time.Hour),
		ValidUntil:    end.Add(24 * time.Hour),
		TotalSessions: 3,
		Status:        scheduling.CourseActive,
	}
	if err := courseRepo.Create(ctx, cr); err != nil {
		t.Fatalf("create course record: %v", err)
	}

	b := &scheduling.Booking{
		PatientID:      cr.PatientID,
		PractitionerID: sl.PractitionerID,
		SlotID:         sl.ID,
		CourseRecordID: cr.ID,
		StartTime:      start,
		EndTime:        end,
		Status:         scheduling.BookingActive,
	}
	if err := bookingRepo.Create(ctx, b); err != nil {
		t.Fatalf("create booking: %v", err)
	}

	rm := &room.Room{
		RoomNumber:     room.NewRoomNumber(),
		BookingID:      b.ID,
		SlotID:         sl.ID,
		CourseRecordID: cr.ID,
		PractitionerID: sl.PractitionerID,
		PatientID:      cr.PatientID,
		StartTime:      start,
		EndTime:        end,
		Status:         room.StatusOpen,
	}
	if err := roomRepo.Create(ctx, rm); err != nil {
		t.Fatalf("create room: %v", err)
	}

	sched := scheduler.New(
		globalDB.Pool,
		bookingRepo,
		slotRepo,
		courseRepo,
		roomRepo,
		nil,
		nil,
		time.Minute,
		zerolog.Nop(),
	)
	sched.Tick(ctx)

	gotRoom, err := roomRepo.GetByID(ctx, rm.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if gotRoom.Status != room.StatusClosed {
		t.Errorf("room status = %s, want closed", gotRoom.Status)
	}

	gotBooking, err := bookingRepo.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if gotBooking.Status != scheduling.BookingCompleted {
		t.Errorf("booking status = %s, want completed", gotBooking.Status)
	}

	gotCourse, err := courseRepo.GetByID(ctx, cr.ID)
	if err != nil {
		t.Fatalf("get course record: %v", err)
	}
	if gotCourse.LearnNum != 1 {
		t.Errorf("learn_num = %d, want 1", gotCourse.LearnNum)
	}

	gotSlot, err := slotRepo.GetByID(ctx, sl.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if gotSlot.Status != scheduling.SlotCompleted {
		t.Errorf("slot status = %s, want completed", gotSlot.Status)
	}
}
