package room

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sgshy1995/sens-server-sub000/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const roomCols = `id, room_number, booking_id, slot_id, course_record_id,
	practitioner_id, patient_id, start_time, end_time, status, closed_at,
	created_at, updated_at`

func (r *repoPG) scanRoom(row pgx.Row) (*Room, error) {
	var rm Room
	err := row.Scan(&rm.ID, &rm.RoomNumber, &rm.BookingID, &rm.SlotID, &rm.CourseRecordID,
		&rm.PractitionerID, &rm.PatientID, &rm.StartTime, &rm.EndTime, &rm.Status, &rm.ClosedAt,
		&rm.CreatedAt, &rm.UpdatedAt)
	return &rm, err
}

func (r *repoPG) Create(ctx context.Context, rm *Room) error {
	rm.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO room (id, room_number, booking_id, slot_id, course_record_id,
			practitioner_id, patient_id, start_time, end_time, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rm.ID, rm.RoomNumber, rm.BookingID, rm.SlotID, rm.CourseRecordID,
		rm.PractitionerID, rm.PatientID, rm.StartTime, rm.EndTime, rm.Status)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Room, error) {
	return r.scanRoom(r.conn(ctx).QueryRow(ctx, `SELECT `+roomCols+` FROM room WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, rm *Room) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE room SET status=$2, closed_at=$3, updated_at=NOW()
		WHERE id = $1`,
		rm.ID, rm.Status, rm.ClosedAt)
	return err
}

func (r *repoPG) FindOpenByBooking(ctx context.Context, bookingID uuid.UUID) (*Room, error) {
	rm, err := r.scanRoom(r.conn(ctx).QueryRow(ctx, `
		SELECT `+roomCols+` FROM room WHERE booking_id = $1 AND status = $2`,
		bookingID, StatusOpen))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return rm, err
}

func (r *repoPG) ListOpenEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Room, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+roomCols+` FROM room
		WHERE status = $1 AND end_time <= $2
		ORDER BY end_time ASC LIMIT $3`,
		StatusOpen, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Room
	for rows.Next() {
		rm, err := r.scanRoom(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rm)
	}
	return items, nil
}
