package common

// DefaultSyncSource is the ledger source tag used for the upstream feed.
const DefaultSyncSource = "upstream"

// Page size bounds of the served list endpoint.
const (
	MinPageLimit     = 1
	MaxPageLimit     = 100
	DefaultPageLimit = 30
)
