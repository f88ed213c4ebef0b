package kv

const (
	// HashedAccounts
	// key - address hash
	// value - account encoding
	HashedAccounts = "HashedAccount"

	// HashedStorage
	// key - address hash + storage key hash
	// value - storage value (leading zeroes trimmed)
	HashedStorage = "HashedStorage"
)

// ChaindataTables - tables created on open of a chaindata database.
var ChaindataTables = []string{
	HashedAccounts,
	HashedStorage,
}
