package v2controllers

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/innopay/innopay-hub/lib/service"
	"github.com/labstack/echo/v4"
)

// ReconciliationController : Reconciliation controller struct
type ReconciliationController struct {
	svc *service.InnopayService
}

func NewReconciliationController(svc *service.InnopayService) *ReconciliationController {
	return &ReconciliationController{svc: svc}
}

// Run godoc
// @Summary      Run a reconciliation pass
// @Description  Retries the transfer of every unpaid or recovering debt once
// @Accept       json
// @Produce      json
// @Tags         Debts
// @Success      200  {object}  service.ReconciliationResult
// @Failure      500  {object}  responses.ErrorResponse
// @Router       /v2/reconciliation/run [post]
// @Security     AdminToken
func (controller *ReconciliationController) Run(c echo.Context) error {
	result, err := controller.svc.RunReconciliationPass(c.Request().Context())
	if err != nil {
		c.Logger().Errorf("Reconciliation pass failed: %v", err)
		sentry.CaptureException(err)
		return err
	}
	return c.JSON(http.StatusOK, result)
}
