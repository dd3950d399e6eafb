package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sgshy1995/sens-server-sub000/internal/platform/db"
)

// =========== TimeSlot Repository ===========

type timeSlotRepoPG struct{ pool *pgxpool.Pool }

func NewTimeSlotRepoPG(pool *pgxpool.Pool) TimeSlotRepository { return &timeSlotRepoPG{pool: pool} }

func (r *timeSlotRepoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const slotCols = `id, practitioner_id, start_time, end_time, booked, booking_id,
	cancel_reason, status, created_at, updated_at`

func (r *timeSlotRepoPG) scanSlot(row pgx.Row) (*TimeSlot, error) {
	var sl TimeSlot
	err := row.Scan(&sl.ID, &sl.PractitionerID, &sl.StartTime, &sl.EndTime, &sl.Booked,
		&sl.BookingID, &sl.CancelReason, &sl.Status, &sl.CreatedAt, &sl.UpdatedAt)
	return &sl, err
}

func (r *timeSlotRepoPG) Create(ctx context.Context, sl *TimeSlot) error {
	sl.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO time_slot (id, practitioner_id, start_time, end_time, booked, booking_id,
			cancel_reason, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		sl.ID, sl.PractitionerID, sl.StartTime, sl.EndTime, sl.Booked, sl.BookingID,
		sl.CancelReason, sl.Status)
	return err
}

func (r *timeSlotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	return r.scanSlot(r.conn(ctx).QueryRow(ctx, `SELECT `+slotCols+` FROM time_slot WHERE id = $1`, id))
}

func (r *timeSlotRepoPG) Update(ctx context.Context, sl *TimeSlot) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE time_slot SET start_time=$2, end_time=$3, booked=$4, booking_id=$5,
			cancel_reason=$6, status=$7, updated_at=NOW()
		WHERE id = $1`,
		sl.ID, sl.StartTime, sl.EndTime, sl.Booked, sl.BookingID, sl.CancelReason, sl.Status)
	return err
}

func (r *timeSlotRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM time_slot WHERE id = $1`, id)
	return err
}

func (r *timeSlotRepoPG) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, limit, offset int) ([]*TimeSlot, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM time_slot WHERE practitioner_id = $1`, practitionerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+slotCols+` FROM time_slot WHERE practitioner_id = $1 ORDER BY start_time ASC LIMIT $2 OFFSET $3`, practitionerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*TimeSlot
	for rows.Next() {
		sl, err := r.scanSlot(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, sl)
	}
	return items, total, nil
}

func (r *timeSlotRepoPG) HasNearbyOpen(ctx context.Context, practitionerID uuid.UUID, start time.Time, window time.Duration, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM time_slot
			WHERE practitioner_id = $1 AND status = $2 AND id <> $3
				AND start_time > $4 AND start_time < $5
		)`,
		practitionerID, SlotOpen, exclude, start.Add(-window), start.Add(window)).Scan(&exists)
	return exists, err
}

// =========== Booking Repository ===========

type bookingRepoPG struct{ pool *pgxpool.Pool }

func NewBookingRepoPG(pool *pgxpool.Pool) BookingRepository { return &bookingRepoPG{pool: pool} }

func (r *bookingRepoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const bookingCols = `id, patient_id, practitioner_id, slot_id, course_record_id,
	start_time, end_time, change_num, patient_cancel_reason, practitioner_cancel_reason,
	status, created_at, updated_at`

func (r *bookingRepoPG) scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.PatientID, &b.PractitionerID, &b.SlotID, &b.CourseRecordID,
		&b.StartTime, &b.EndTime, &b.ChangeNum, &b.PatientCancelReason, &b.PractitionerCancelReason,
		&b.Status, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *bookingRepoPG) Create(ctx context.Context, b *Booking) error {
	b.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO booking (id, patient_id, practitioner_id, slot_id, course_record_id,
			start_time, end_time, change_num, patient_cancel_reason, practitioner_cancel_reason, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		b.ID, b.PatientID, b.PractitionerID, b.SlotID, b.CourseRecordID,
		b.StartTime, b.EndTime, b.ChangeNum, b.PatientCancelReason, b.PractitionerCancelReason, b.Status)
	return err
}

func (r *bookingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return r.scanBooking(r.conn(ctx).QueryRow(ctx, `SELECT `+bookingCols+` FROM booking WHERE id = $1`, id))
}

func (r *bookingRepoPG) Update(ctx context.Context, b *Booking) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE booking SET practitioner_id=$2, slot_id=$3, start_time=$4, end_time=$5,
			change_num=$6, patient_cancel_reason=$7, practitioner_cancel_reason=$8,
			status=$9, updated_at=NOW()
		WHERE id = $1`,
		b.ID, b.PractitionerID, b.SlotID, b.StartTime, b.EndTime,
		b.ChangeNum, b.PatientCancelReason, b.PractitionerCancelReason, b.Status)
	return err
}

func (r *bookingRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM booking WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+bookingCols+` FROM booking WHERE patient_id = $1 ORDER BY start_time DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Booking
	for rows.Next() {
		b, err := r.scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, nil
}

func (r *bookingRepoPG) FindReusable(ctx context.Context, patientID, courseRecordID uuid.UUID) (*Booking, error) {
	b, err := r.scanBooking(r.conn(ctx).QueryRow(ctx, `
		SELECT `+bookingCols+` FROM booking
		WHERE patient_id = $1 AND course_record_id = $2
			AND status = $3 AND practitioner_cancel_reason IS NOT NULL
		ORDER BY updated_at DESC LIMIT 1`,
		patientID, courseRecordID, BookingCancelled))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (r *bookingRepoPG) HasActiveNear(ctx context.Context, patientID uuid.UUID, start time.Time, window time.Duration, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM booking
			WHERE patient_id = $1 AND status = $2 AND id <> $3
				AND start_time > $4 AND start_time < $5
		)`,
		patientID, BookingActive, exclude, start.Add(-window), start.Add(window)).Scan(&exists)
	return exists, err
}

func (r *bookingRepoPG) CountCancelledByPractitioner(ctx context.Context, practitionerID uuid.UUID) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM booking
		WHERE practitioner_id = $1 AND status = $2 AND practitioner_cancel_reason IS NOT NULL`,
		practitionerID, BookingCancelled).Scan(&count)
	return count, err
}

func (r *bookingRepoPG) ListActiveInWindow(ctx context.Context, from, to time.Time, limit int) ([]*Booking, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+bookingCols+` FROM booking
		WHERE status = $1 AND start_time <= $2 AND end_time >= $3
		ORDER BY start_time ASC LIMIT $4`,
		BookingActive, to, from, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Booking
	for rows.Next() {
		b, err := r.scanBooking(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, nil
}

// =========== CourseRecord Repository ===========

type courseRecordRepoPG struct{ pool *pgxpool.Pool }

func NewCourseRecordRepoPG(pool *pgxpool.Pool) CourseRecordRepository {
	return &courseRecordRepoPG{pool: pool}
}

func (r *courseRecordRepoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const courseCols = `id, patient_id, course_id, valid_from, valid_until,
	total_sessions, learn_num, cancel_num, status, created_at, updated_at`

func (r *courseRecordRepoPG) scanCourse(row pgx.Row) (*CourseRecord, error) {
	var cr CourseRecord
	err := row.Scan(&cr.ID, &cr.PatientID, &cr.CourseID, &cr.ValidFrom, &cr.ValidUntil,
		&cr.TotalSessions, &cr.LearnNum, &cr.CancelNum, &cr.Status, &cr.CreatedAt, &cr.UpdatedAt)
	return &cr, err
}

func (r *courseRecordRepoPG) Create(ctx context.Context, cr *CourseRecord) error {
	cr.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO course_record (id, patient_id, course_id, valid_from, valid_until,
			total_sessions, learn_num, cancel_num, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		cr.ID, cr.PatientID, cr.CourseID, cr.ValidFrom, cr.ValidUntil,
		cr.TotalSessions, cr.LearnNum, cr.CancelNum, cr.Status)
	return err
}

func (r *courseRecordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CourseRecord, error) {
	return r.scanCourse(r.conn(ctx).QueryRow(ctx, `SELECT `+courseCols+` FROM course_record WHERE id = $1`, id))
}

func (r *courseRecordRepoPG) Update(ctx context.Context, cr *CourseRecord) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE course_record SET valid_from=$2, valid_until=$3, total_sessions=$4,
			learn_num=$5, cancel_num=$6, status=$7, updated_at=NOW()
		WHERE id = $1`,
		cr.ID, cr.ValidFrom, cr.ValidUntil, cr.TotalSessions,
		cr.LearnNum, cr.CancelNum, cr.Status)
	return err
}

func (r *courseRecordRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*CourseRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM course_record WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+courseCols+` FROM course_record WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*CourseRecord
	for rows.Next() {
		cr, err := r.scanCourse(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, cr)
	}
	return items, total, nil
}
