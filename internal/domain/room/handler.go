package room

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sgshy1995/sens-server-sub000/internal/platform/auth"
	"github.com/sgshy1995/sens-server-sub000/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	rooms := api.Group("/rooms", auth.RequireRole(auth.RolePractitioner, auth.RolePatient))
	rooms.GET("/:id", h.GetRoom)
	rooms.POST("/:id/enter", h.EnterRoom)
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	return id, nil
}

func (h *Handler) GetRoom(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rm, err := h.svc.GetRoom(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return response.OK(c, rm)
}

type enterRequest struct {
	Role string `json:"role"`
}

func (h *Handler) EnterRoom(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req enterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cred, err := h.svc.EnterRoom(c.Request().Context(), caller, req.Role, id)
	if err != nil {
		return err
	}
	return response.OK(c, cred)
}
