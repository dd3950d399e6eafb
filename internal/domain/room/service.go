package room

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sgshy1995/sens-server-sub000/internal/platform/auth"
	"github.com/sgshy1995/sens-server-sub000/internal/platform/rtc"
)

type Service struct {
	rooms  Repository
	issuer *rtc.Issuer
}

func NewService(rooms Repository, issuer *rtc.Issuer) *Service {
	return &Service{rooms: rooms, issuer: issuer}
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*Room, error) {
	rm, err := s.rooms.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return rm, nil
}

// GetRoom returns a room. The caller must be its practitioner or patient.
func (s *Service) GetRoom(ctx context.Context, callerID, roomID uuid.UUID) (*Room, error) {
	rm, err := s.get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if rm.PractitionerID != callerID && rm.PatientID != callerID {
		return nil, ErrRoomUserMismatch
	}
	return rm, nil
}

// EnterRoom validates that the caller holds the claimed role on the room and
// issues a signed realtime credential scoped to the caller.
func (s *Service) EnterRoom(ctx context.Context, userID uuid.UUID, role string, roomID uuid.UUID) (*rtc.Credential, error) {
	rm, err := s.get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if rm.Status != StatusOpen {
		return nil, ErrRoomNotOpen
	}

	switch role {
	case auth.RolePractitioner:
		if rm.PractitionerID != userID {
			return nil, ErrRoomUserMismatch
		}
	case auth.RolePatient:
		if rm.PatientID != userID {
			return nil, ErrRoomUserMismatch
		}
	default:
		return nil, ErrInvalidRole
	}

	return s.issuer.Issue(userID.String(), role, rm.RoomNumber)
}
