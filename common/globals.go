package common

const (
	AssetEuroToken = "EURO"
	AssetUsdStable = "HBD"

	// number of decimals each asset is transferred with on chain
	EuroTokenPrecision = 2
	UsdAssetPrecision  = 3

	DebtStatusUnpaid            = "unpaid"
	DebtStatusWithdrawalPending = "withdrawal_pending"
	DebtStatusRecoveryOngoing   = "recovery_ongoing"
	DebtStatusSettledOutOfBand  = "settled_out_of_band"
	DebtStatusPaid              = "paid"

	DebtReasonOrderPayment = "order_payment"

	MemoCustomerToHub = "payment to restaurant"
	NotesShortage     = "shortage"

	DebtEventRecorded      = "debt.recorded"
	DebtEventStatusChanged = "debt.status_changed"
	DebtEventPaid          = "debt.paid"
)
