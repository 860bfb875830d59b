package v2controllers

import (
	"net/http"
	"time"

	"github.com/innopay/innopay-hub/lib/responses"
	"github.com/innopay/innopay-hub/lib/service"
	"github.com/labstack/echo/v4"
)

const dateLayout = "2006-01-02"

// RatesController : Rates controller struct
type RatesController struct {
	svc *service.InnopayService
}

func NewRatesController(svc *service.InnopayService) *RatesController {
	return &RatesController{svc: svc}
}

// EurUsd godoc
// @Summary      EUR/USD rate
// @Description  Returns the EUR/USD rate for a date, flagged as not fresh when it comes from a fallback
// @Accept       json
// @Produce      json
// @Tags         Rates
// @Param        date  query     string  false  "Date as YYYY-MM-DD, defaults to today"
// @Success      200   {object}  rates.ExchangeRate
// @Failure      400   {object}  responses.ErrorResponse
// @Router       /v2/rates/eur-usd [get]
func (controller *RatesController) EurUsd(c echo.Context) error {
	asOf := time.Now().UTC()
	if date := c.QueryParam("date"); date != "" {
		parsed, err := time.Parse(dateLayout, date)
		if err != nil {
			c.Logger().Errorf("Invalid rate date %s: %v", date, err)
			return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
		}
		asOf = parsed
	}
	return c.JSON(http.StatusOK, controller.svc.Rates.LookupEurUsdRate(c.Request().Context(), asOf))
}
