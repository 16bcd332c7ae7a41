package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountProvisioned = "account.provisioned"

	// Posting actions
	ActionTransactionsPosted = "transactions.posted"
	ActionSessionSettled     = "session.settled"
	ActionDonationReceived   = "donation.received"

	// Support actions
	ActionSupportGranted = "support.granted"
	ActionSupportDenied  = "support.denied"

	// Rejections
	ActionInsufficientFunds = "funds.insufficient"
)

// Resource constants for audit events.
const (
	ResourceAccount     = "account"
	ResourceTransaction = "transaction"
	ResourceSession     = "session"
)

// Category constants for audit events.
const (
	CategoryAccount    = "account"
	CategorySettlement = "settlement"
	CategorySupport    = "support"
	CategoryAccess     = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
