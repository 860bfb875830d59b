package v2controllers

import (
	"net/http"

	"github.com/innopay/innopay-hub/lib/responses"
	"github.com/innopay/innopay-hub/lib/service"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// SettlementController : Settlement controller struct
type SettlementController struct {
	svc *service.InnopayService
}

func NewSettlementController(svc *service.InnopayService) *SettlementController {
	return &SettlementController{svc: svc}
}

type SettleRequestBody struct {
	CustomerAccount      string          `json:"customer_account"`
	RestaurantAccount    string          `json:"restaurant_account" validate:"required"`
	OrderAmountEuro      decimal.Decimal `json:"order_amount_euro"`
	OrderMemo            string          `json:"order_memo" validate:"required"`
	TransferFromCustomer bool            `json:"transfer_from_customer"`
	Reason               string          `json:"reason" validate:"omitempty,max=64"`
}

// Settle godoc
// @Summary      Settle an order payment
// @Description  Pays the restaurant in the USD asset or the euro token and records a debt for every failed leg
// @Accept       json
// @Produce      json
// @Tags         Settlement
// @Param        settlement  body      SettleRequestBody  True  "Order payment"
// @Success      200         {object}  service.SettlementResult
// @Failure      400         {object}  responses.ErrorResponse
// @Failure      502         {object}  responses.ErrorResponse
// @Failure      500         {object}  responses.ErrorResponse
// @Router       /v2/settlements [post]
// @Security     AdminToken
func (controller *SettlementController) Settle(c echo.Context) error {
	var body SettleRequestBody

	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load settlement request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	if err := c.Validate(&body); err != nil {
		c.Logger().Errorf("Invalid settlement request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	c.Logger().Infof("Settling order payment: restaurant:%s customer:%s amount_euro:%s transfer_from_customer:%v",
		body.RestaurantAccount, body.CustomerAccount, body.OrderAmountEuro.String(), body.TransferFromCustomer)

	result, err := controller.svc.SettleOrderPayment(c.Request().Context(), service.PaymentRequest{
		CustomerAccount:      body.CustomerAccount,
		RestaurantAccount:    body.RestaurantAccount,
		OrderAmountEuro:      body.OrderAmountEuro,
		OrderMemo:            body.OrderMemo,
		TransferFromCustomer: body.TransferFromCustomer,
		Reason:               body.Reason,
	})
	if err != nil {
		return responses.Respond(c, err)
	}

	return c.JSON(http.StatusOK, result)
}
