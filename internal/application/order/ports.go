package order

// OrderNumberGenerator yields the next candidate order number. Candidates are
// unique per process; the order store's unique constraint is the final
// authority, and the coordinator regenerates on a write-time collision.
type OrderNumberGenerator interface {
	NewOrderNumber() string
}
