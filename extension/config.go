package extension

import "time"

// Config holds the credits extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.credits" or "credits" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BankAccountID overrides the reserved bank account identifier. It must
	// be an "acct_" type ID.
	BankAccountID string `json:"bank_account_id" mapstructure:"bank_account_id" yaml:"bank_account_id"`

	// InitialGrant is the number of credits posted to every new account
	// (default: 15). Use WithEngineOption(credits.WithInitialGrant(0)) to
	// provision empty accounts.
	InitialGrant int64 `json:"initial_grant" mapstructure:"initial_grant" yaml:"initial_grant"`

	// LockTimeout bounds how long an operation retries on lock contention
	// (default: 5s).
	LockTimeout time.Duration `json:"lock_timeout" mapstructure:"lock_timeout" yaml:"lock_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		InitialGrant: 15,
		LockTimeout:  5 * time.Second,
	}
}
