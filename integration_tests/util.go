package integration_tests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"

	"github.com/innopay/innopay-hub/lib/service"
	"github.com/innopay/innopay-hub/lib/service/servicetest"
	"github.com/innopay/innopay-hub/lib/tokens"
	"github.com/innopay/innopay-hub/lib/transport"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const adminToken = "admin-secret"

type TestSuite struct {
	suite.Suite
	echo   *echo.Echo
	svc    *service.InnopayService
	ledger *servicetest.Ledger
	rates  *servicetest.Rates
	debts  *servicetest.DebtStore
}

// initHub wires in-memory collaborators behind the real v2 routes.
func (suite *TestSuite) initHub(eurUsd ...string) {
	suite.ledger = servicetest.NewLedger()
	suite.rates = servicetest.NewRates(eurUsd...)
	suite.debts = servicetest.NewDebtStore()
	suite.svc = servicetest.NewService(suite.ledger, suite.rates, suite.debts)
	suite.svc.Config.AdminToken = adminToken
	suite.svc.Config.DefaultRateLimit = 1000
	suite.svc.Config.StrictRateLimit = 1000
	suite.svc.Config.BurstRateLimit = 1000

	e := transport.InitEcho(suite.svc.Config, suite.svc.Logger)
	adminMw := tokens.AdminTokenMiddleware(adminToken)
	admin := e.Group("", adminMw)
	adminWithStrictRateLimit := e.Group("", adminMw, transport.CreateRateLimitMiddleware(suite.svc.Config.StrictRateLimit, suite.svc.Config.BurstRateLimit))
	transport.RegisterV2Endpoints(suite.svc, e, admin, adminWithStrictRateLimit, nil)
	suite.echo = e
}

func (suite *TestSuite) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		assert.NoError(suite.T(), json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	suite.echo.ServeHTTP(rec, req)
	return rec
}

func (suite *TestSuite) decode(rec *httptest.ResponseRecorder, code int, target interface{}) {
	assert.Equal(suite.T(), code, rec.Code, rec.Body.String())
	assert.NoError(suite.T(), json.NewDecoder(rec.Body).Decode(target))
}

func scenarioRequest() map[string]interface{} {
	return map[string]interface{}{
		"customer_account":       "alice",
		"restaurant_account":     "cafe",
		"order_amount_euro":      "20",
		"order_memo":             "table=4;order=123",
		"transfer_from_customer": true,
	}
}
