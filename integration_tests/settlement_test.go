package integration_tests

import (
	"net/http"
	"testing"

	"github.com/innopay/innopay-hub/common"
	"github.com/innopay/innopay-hub/ledger"
	"github.com/innopay/innopay-hub/lib/responses"
	"github.com/innopay/innopay-hub/lib/service"
	"github.com/innopay/innopay-hub/lib/service/servicetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type SettlementTestSuite struct {
	TestSuite
}

func (suite *SettlementTestSuite) SetupTest() {
	suite.initHub("1.08")
}

func (suite *SettlementTestSuite) TestSettleAllLegs() {
	result := &service.SettlementResult{}
	suite.decode(suite.do(http.MethodPost, "/v2/settlements", scenarioRequest(), adminToken), http.StatusOK, result)

	assert.NotEmpty(suite.T(), result.CustomerEuroTxID)
	assert.NotEmpty(suite.T(), result.CustomerUsdAssetTxID)
	assert.NotEmpty(suite.T(), result.RestaurantUsdAssetTxID)
	assert.Empty(suite.T(), result.RestaurantEuroTxID)
	assert.True(suite.T(), result.EurUsdRate.Equal(decimal.RequireFromString("1.08")))
	assert.Empty(suite.T(), suite.debts.All())
}

func (suite *SettlementTestSuite) TestSettleFallback() {
	suite.ledger.Fail(common.AssetUsdStable, servicetest.HubAccount, "cafe", ledger.ErrInsufficientBalance)

	result := &service.SettlementResult{}
	suite.decode(suite.do(http.MethodPost, "/v2/settlements", scenarioRequest(), adminToken), http.StatusOK, result)

	assert.NotEmpty(suite.T(), result.RestaurantEuroTxID)
	assert.Empty(suite.T(), result.RestaurantUsdAssetTxID)
	debts := suite.debts.All()
	assert.Len(suite.T(), debts, 1)
	assert.Equal(suite.T(), "cafe", debts[0].Creditor)
	assert.True(suite.T(), debts[0].AmountUsdAsset.Equal(decimal.RequireFromString("21.6")))
}

func (suite *SettlementTestSuite) TestSettleFailed() {
	suite.ledger.Fail(common.AssetUsdStable, servicetest.HubAccount, "cafe", ledger.ErrInsufficientBalance)
	suite.ledger.Fail(common.AssetEuroToken, servicetest.HubAccount, "cafe", ledger.ErrInsufficientBalance)

	errResponse := &responses.ErrorResponse{}
	suite.decode(suite.do(http.MethodPost, "/v2/settlements", scenarioRequest(), adminToken), http.StatusBadGateway, errResponse)
	assert.Equal(suite.T(), responses.SettlementFailedError.Code, errResponse.Code)
	assert.Len(suite.T(), suite.debts.All(), 1)
	// the customer already paid the hub
	if assert.NotNil(suite.T(), errResponse.Settlement) {
		assert.NotEmpty(suite.T(), errResponse.Settlement.CustomerEuroTxID)
		assert.True(suite.T(), errResponse.Settlement.UsdAssetAmount.Equal(decimal.RequireFromString("21.6")))
	}
}

func (suite *SettlementTestSuite) TestSettleInvalidAmount() {
	body := scenarioRequest()
	body["order_amount_euro"] = "0"

	errResponse := &responses.ErrorResponse{}
	suite.decode(suite.do(http.MethodPost, "/v2/settlements", body, adminToken), http.StatusBadRequest, errResponse)
	assert.Equal(suite.T(), responses.BadArgumentsError.Code, errResponse.Code)
	assert.Contains(suite.T(), errResponse.Message, "order_amount_euro")
	assert.Empty(suite.T(), suite.ledger.Calls())
}

func (suite *SettlementTestSuite) TestSettleSubCentAmount() {
	body := scenarioRequest()
	body["order_amount_euro"] = "0.004"

	errResponse := &responses.ErrorResponse{}
	suite.decode(suite.do(http.MethodPost, "/v2/settlements", body, adminToken), http.StatusBadRequest, errResponse)
	assert.Contains(suite.T(), errResponse.Message, "decimals")
	assert.Empty(suite.T(), suite.ledger.Calls())
}

func (suite *SettlementTestSuite) TestSettleMissingMemo() {
	body := scenarioRequest()
	delete(body, "order_memo")

	errResponse := &responses.ErrorResponse{}
	suite.decode(suite.do(http.MethodPost, "/v2/settlements", body, adminToken), http.StatusBadRequest, errResponse)
	assert.Empty(suite.T(), suite.ledger.Calls())
}

func (suite *SettlementTestSuite) TestSettleRequiresAdminToken() {
	rec := suite.do(http.MethodPost, "/v2/settlements", scenarioRequest(), "wrong")
	assert.Equal(suite.T(), http.StatusUnauthorized, rec.Code)
	assert.Empty(suite.T(), suite.ledger.Calls())
}

func (suite *SettlementTestSuite) TestHealth() {
	health := map[string]string{}
	suite.decode(suite.do(http.MethodGet, "/v2/health", nil, ""), http.StatusOK, &health)
	assert.Equal(suite.T(), "OK", health["result"])
}

func (suite *SettlementTestSuite) TestEurUsdRate() {
	rate := map[string]interface{}{}
	suite.decode(suite.do(http.MethodGet, "/v2/rates/eur-usd?date=2024-10-01", nil, ""), http.StatusOK, &rate)
	assert.Equal(suite.T(), "1.08", rate["eur_usd"])
	assert.Equal(suite.T(), true, rate["is_fresh"])
	assert.Equal(suite.T(), 1, suite.rates.Lookups())
	assert.Equal(suite.T(), 0, suite.rates.Calls())

	rec := suite.do(http.MethodGet, "/v2/rates/eur-usd?date=yesterday", nil, "")
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)
}

func TestSettlementSuite(t *testing.T) {
	suite.Run(t, new(SettlementTestSuite))
}
