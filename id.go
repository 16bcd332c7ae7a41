package credits

import "github.com/xraph/credits/id"

// ID is the primary identifier type for all credit ledger entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// ParseAccountID parses an account identifier such as "acct_01h2xcejqtf2nbrexx3vqjhp41".
var ParseAccountID = id.ParseAccountID
