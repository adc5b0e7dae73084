package audithook

// Action constants for audit events.
const (
	// Vesting actions
	ActionAccountsCreated = "vesting.accounts_created"
	ActionClaimStarted    = "vesting.claim_started"
	ActionClaimSettled    = "vesting.claim_settled"
	ActionClaimReverted   = "vesting.claim_reverted"
	ActionRevokeStarted   = "vesting.revoke_started"
	ActionRevokeSettled   = "vesting.revoke_settled"
	ActionRevokeReverted  = "vesting.revoke_reverted"

	// Sale actions
	ActionSaleAccountOpened     = "sale.account_opened"
	ActionRegisterStarted       = "sale.register_started"
	ActionParticipantRegistered = "sale.participant_registered"
	ActionRegisterRejected      = "sale.register_rejected"
	ActionPurchase              = "sale.purchase"

	// Settlement actions
	ActionSettlementAbandoned = "settlement.abandoned"
	ActionProtocolViolation   = "settlement.protocol_violation"
)

// Resource constants for audit events.
const (
	ResourceVestingAccount = "vesting_account"
	ResourceSaleAccount    = "sale_account"
	ResourceSettlement     = "settlement"
)

// Category constants for audit events.
const (
	CategoryVesting    = "vesting"
	CategorySale       = "sale"
	CategorySettlement = "settlement"
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
