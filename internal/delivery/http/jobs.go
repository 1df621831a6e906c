package http

import (
	"net/http"

	"golang-stockbot/internal/dto"
	"golang-stockbot/pkg/logger"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupJobs(base *echo.Group) {
	v1 := base.Group("/v1/jobs")
	{
		v1.POST("/run", h.RunJobs)
	}
}

// RunJobs runs one notification tick now. A tick already in flight makes this
// a no-op with zero counts.
func (h *HttpAPIHandler) RunJobs(c echo.Context) error {
	ctx := c.Request().Context()
	result, err := h.service.SchedulerService.Execute(ctx)
	if err != nil {
		h.log.ErrorContext(ctx, "Manual job run failed", logger.ErrorField(err))
		response := dto.NewBaseResponse(http.StatusInternalServerError, err.Error(), result)
		return c.JSON(response.Code, response)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Jobs executed", result))
}
