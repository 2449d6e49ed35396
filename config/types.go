package config

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"

	// DefaultBorrowAmount is the loan size used when an intent names none.
	DefaultBorrowAmount = "1000000"

	// MaxExtraDecimals bounds the share/asset decimal offset so 10^extra fits u128.
	MaxExtraDecimals = 24
)

// Vault holds the parameters the vault is initialised with on first boot.
type Vault struct {
	Owner               string
	Account             string
	Asset               string
	BridgeAccount       string
	AssetDecimals       uint8
	ExtraDecimals       uint8
	DefaultBorrowAmount string
	MaxQueueSteps       int
	// Accounts are registered for the asset on first boot.
	Accounts []string
}

// Storage selects the persistence backend.
type Storage struct {
	Backend string
	Path    string
}

// GenesisAllocation credits an asset balance on first boot.
type GenesisAllocation struct {
	Account string
	Amount  string
}

type Pauses struct {
	Vault bool
}

// Quota caps how often and how much each solver may borrow per epoch.
type Quota struct {
	MaxIntentsPerEpoch uint32
	MaxBorrowPerEpoch  string
	EpochSeconds       uint32
}
