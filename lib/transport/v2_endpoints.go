package transport

import (
	v2controllers "github.com/innopay/innopay-hub/controllers_v2"
	"github.com/innopay/innopay-hub/lib/service"
	"github.com/labstack/echo/v4"
)

func RegisterV2Endpoints(svc *service.InnopayService, e *echo.Echo, admin *echo.Group, adminWithStrictRateLimit *echo.Group, cacheMw echo.MiddlewareFunc) {
	e.GET("/v2/health", v2controllers.NewHealthController().Check)

	ratesCtrl := v2controllers.NewRatesController(svc)
	if cacheMw != nil {
		e.GET("/v2/rates/eur-usd", ratesCtrl.EurUsd, cacheMw)
	} else {
		e.GET("/v2/rates/eur-usd", ratesCtrl.EurUsd)
	}

	adminWithStrictRateLimit.POST("/v2/settlements", v2controllers.NewSettlementController(svc).Settle)

	debtsCtrl := v2controllers.NewDebtsController(svc)
	admin.GET("/v2/debts", debtsCtrl.ListDebts)
	admin.PUT("/v2/debts/status", debtsCtrl.UpdateStatus)
	admin.POST("/v2/debts/paid", debtsCtrl.MarkPaid)

	adminWithStrictRateLimit.POST("/v2/reconciliation/run", v2controllers.NewReconciliationController(svc).Run)
}
