package enums

// CartSyncState tracks whether the local cart matches the remote cart service.
type CartSyncState string

const (
	// CartSyncSynced means the last remote reconciliation succeeded.
	CartSyncSynced CartSyncState = "synced"
	// CartSyncPending means a remote call is in flight for the latest mutation.
	CartSyncPending CartSyncState = "pending"
	// CartSyncUnsynced means the latest optimistic mutation failed to reach
	// the remote; local state is retained until the next successful mutation.
	CartSyncUnsynced CartSyncState = "unsynced"
)

// String implements fmt.Stringer.
func (c CartSyncState) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CartSyncState.
func (c CartSyncState) IsValid() bool {
	switch c {
	case CartSyncSynced, CartSyncPending, CartSyncUnsynced:
		return true
	}
	return false
}
