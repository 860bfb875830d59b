package v2controllers

import (
	"net/http"

	"github.com/innopay/innopay-hub/db/models"
	"github.com/innopay/innopay-hub/lib/responses"
	"github.com/innopay/innopay-hub/lib/service"
	"github.com/labstack/echo/v4"
)

// DebtsController : Debts controller struct
type DebtsController struct {
	svc *service.InnopayService
}

func NewDebtsController(svc *service.InnopayService) *DebtsController {
	return &DebtsController{svc: svc}
}

type GetDebtsResponseBody struct {
	Debts []models.Debt `json:"debts"`
}

type UpdateDebtStatusRequestBody struct {
	IDs    []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
	Status string  `json:"status" validate:"required"`
}

type MarkDebtsPaidRequestBody struct {
	IDs   []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
	TxRef string  `json:"tx_ref" validate:"required"`
}

type DebtsChangedResponseBody struct {
	Updated int `json:"updated"`
}

// ListDebts godoc
// @Summary      List debts
// @Description  Returns debts filtered by status, creditor and debtor, oldest first
// @Accept       json
// @Produce      json
// @Tags         Debts
// @Param        status    query     string  false  "Debt status"
// @Param        creditor  query     string  false  "Creditor account"
// @Param        debtor    query     string  false  "Debtor account"
// @Param        limit     query     int     false  "Page size"
// @Param        offset    query     int     false  "Page offset"
// @Success      200       {object}  GetDebtsResponseBody
// @Failure      400       {object}  responses.ErrorResponse
// @Failure      500       {object}  responses.ErrorResponse
// @Router       /v2/debts [get]
// @Security     AdminToken
func (controller *DebtsController) ListDebts(c echo.Context) error {
	var filter service.DebtFilter
	if err := c.Bind(&filter); err != nil {
		c.Logger().Errorf("Failed to load debt filter: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&filter); err != nil {
		c.Logger().Errorf("Invalid debt filter: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if filter.Status != "" && !service.IsKnownDebtStatus(filter.Status) {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	debts, err := controller.svc.ListDebts(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &GetDebtsResponseBody{Debts: debts})
}

// UpdateStatus godoc
// @Summary      Move debts to a new status
// @Description  Applies the transition to every debt or to none of them
// @Accept       json
// @Produce      json
// @Tags         Debts
// @Param        body  body      UpdateDebtStatusRequestBody  True  "Debt ids and target status"
// @Success      200   {object}  DebtsChangedResponseBody
// @Failure      400   {object}  responses.ErrorResponse
// @Failure      404   {object}  responses.ErrorResponse
// @Failure      409   {object}  responses.ErrorResponse
// @Failure      500   {object}  responses.ErrorResponse
// @Router       /v2/debts/status [put]
// @Security     AdminToken
func (controller *DebtsController) UpdateStatus(c echo.Context) error {
	var body UpdateDebtStatusRequestBody

	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load debt status request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		c.Logger().Errorf("Invalid debt status request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	updated, err := controller.svc.UpdateDebtStatus(c.Request().Context(), body.IDs, body.Status)
	if err != nil {
		return responses.Respond(c, err)
	}
	c.Logger().Infof("Moved %d debts to %s", updated, body.Status)
	return c.JSON(http.StatusOK, &DebtsChangedResponseBody{Updated: updated})
}

// MarkPaid godoc
// @Summary      Mark debts as paid
// @Description  Records an out of band payment, debts that are already paid are left untouched
// @Accept       json
// @Produce      json
// @Tags         Debts
// @Param        body  body      MarkDebtsPaidRequestBody  True  "Debt ids and payment reference"
// @Success      200   {object}  DebtsChangedResponseBody
// @Failure      400   {object}  responses.ErrorResponse
// @Failure      404   {object}  responses.ErrorResponse
// @Failure      409   {object}  responses.ErrorResponse
// @Failure      500   {object}  responses.ErrorResponse
// @Router       /v2/debts/paid [post]
// @Security     AdminToken
func (controller *DebtsController) MarkPaid(c echo.Context) error {
	var body MarkDebtsPaidRequestBody

	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load mark paid request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		c.Logger().Errorf("Invalid mark paid request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	updated, err := controller.svc.MarkDebtsPaid(c.Request().Context(), body.IDs, body.TxRef)
	if err != nil {
		return responses.Respond(c, err)
	}
	c.Logger().Infof("Marked %d debts paid tx_ref:%s", updated, body.TxRef)
	return c.JSON(http.StatusOK, &DebtsChangedResponseBody{Updated: updated})
}
