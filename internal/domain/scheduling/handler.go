package scheduling

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sgshy1995/sens-server-sub000/internal/platform/auth"
	"github.com/sgshy1995/sens-server-sub000/pkg/pagination"
	"github.com/sgshy1995/sens-server-sub000/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	slots := api.Group("/slots")
	slots.GET("", h.ListSlots, auth.RequireRole(auth.RolePractitioner, auth.RolePatient))
	slots.GET("/:id", h.GetSlot, auth.RequireRole(auth.RolePractitioner, auth.RolePatient))
	slots.POST("", h.CreateSlot, auth.RequireRole(auth.RolePractitioner))
	slots.PUT("/:id", h.UpdateSlot, auth.RequireRole(auth.RolePractitioner))
	slots.DELETE("/:id", h.CancelSlot, auth.RequireRole(auth.RolePractitioner))

	bookings := api.Group("/bookings")
	bookings.POST("", h.CreateBooking, auth.RequireRole(auth.RolePatient))
	bookings.GET("", h.ListBookings, auth.RequireRole(auth.RolePatient))
	bookings.GET("/:id", h.GetBooking, auth.RequireRole(auth.RolePatient, auth.RolePractitioner))
	bookings.PUT("/:id/reschedule", h.RescheduleBooking, auth.RequireRole(auth.RolePatient))
	bookings.DELETE("/:id", h.CancelBooking, auth.RequireRole(auth.RolePatient))

	courses := api.Group("/course-records")
	courses.POST("", h.CreateCourseRecord, auth.RequireRole(auth.RoleAdmin))
	courses.GET("", h.ListCourseRecords, auth.RequireRole(auth.RolePatient))
	courses.GET("/:id", h.GetCourseRecord, auth.RequireRole(auth.RolePatient, auth.RolePractitioner))
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	return id, nil
}

// -- Slot handlers --

type slotRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func (h *Handler) CreateSlot(c echo.Context) error {
	practitionerID, err := callerID(c)
	if err != nil {
		return err
	}
	var req slotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sl, err := h.svc.CreateSlot(c.Request().Context(), practitionerID, req.StartTime, req.EndTime)
	if err != nil {
		return err
	}
	return response.Created(c, sl)
}

func (h *Handler) GetSlot(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sl, err := h.svc.GetSlot(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, sl)
}

func (h *Handler) ListSlots(c echo.Context) error {
	pg := pagination.FromContext(c)

	practitionerID, err := callerID(c)
	if err != nil {
		return err
	}
	// Patients browse another practitioner's availability.
	if p := c.QueryParam("practitioner_id"); p != "" {
		practitionerID, err = uuid.Parse(p)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid practitioner_id")
		}
	}

	items, total, err := h.svc.ListSlots(c.Request().Context(), practitionerID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return response.OK(c, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateSlot(c echo.Context) error {
	practitionerID, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req slotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sl, err := h.svc.UpdateSlot(c.Request().Context(), practitionerID, id, req.StartTime, req.EndTime)
	if err != nil {
		return err
	}
	return response.OK(c, sl)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelSlot(c echo.Context) error {
	practitionerID, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.CancelSlot(c.Request().Context(), practitionerID, id, req.Reason)
	if err != nil {
		return err
	}
	return response.Message(c, result.Message, result)
}

// -- Booking handlers --

type createBookingRequest struct {
	SlotID         uuid.UUID `json:"slot_id"`
	CourseRecordID uuid.UUID `json:"course_record_id"`
}

func (h *Handler) CreateBooking(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	var req createBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.CreateBooking(c.Request().Context(), patientID, req.SlotID, req.CourseRecordID)
	if err != nil {
		return err
	}
	return response.Created(c, b)
}

type rescheduleRequest struct {
	SlotID uuid.UUID `json:"slot_id"`
}

func (h *Handler) RescheduleBooking(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.RescheduleBooking(c.Request().Context(), patientID, id, req.SlotID)
	if err != nil {
		return err
	}
	return response.OK(c, b)
}

func (h *Handler) CancelBooking(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.CancelBooking(c.Request().Context(), patientID, id, req.Reason)
	if err != nil {
		return err
	}
	return response.OK(c, b)
}

func (h *Handler) GetBooking(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	view, err := h.svc.GetBooking(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return response.OK(c, view)
}

func (h *Handler) ListBookings(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	views, total, err := h.svc.ListBookingsByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return response.OK(c, pagination.NewResponse(views, total, pg.Limit, pg.Offset))
}

// -- Course record handlers --

type createCourseRecordRequest struct {
	PatientID     uuid.UUID `json:"patient_id"`
	CourseID      uuid.UUID `json:"course_id"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidUntil    time.Time `json:"valid_until"`
	TotalSessions int       `json:"total_sessions"`
}

func (h *Handler) CreateCourseRecord(c echo.Context) error {
	var req createCourseRecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cr := &CourseRecord{
		PatientID:     req.PatientID,
		CourseID:      req.CourseID,
		ValidFrom:     req.ValidFrom,
		ValidUntil:    req.ValidUntil,
		TotalSessions: req.TotalSessions,
		Status:        CourseActive,
	}
	if err := h.svc.CreateCourseRecord(c.Request().Context(), cr); err != nil {
		return err
	}
	return response.Created(c, cr)
}

func (h *Handler) GetCourseRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cr, err := h.svc.GetCourseRecord(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, cr)
}

func (h *Handler) ListCourseRecords(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	// Admins inspect any patient's records.
	if p := c.QueryParam("patient_id"); p != "" && auth.HasRole(auth.RolesFromContext(c.Request().Context()), auth.RoleAdmin) {
		patientID, err = uuid.Parse(p)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCourseRecordsByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return response.OK(c, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
