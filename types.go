package scratchnotebook

// ChangeEvent is the public view of a catalog.ChangeEvent, exposed to
// ChangeHook implementations without forcing them to import internal/catalog.
type ChangeEvent struct {
	Kind      string // created | appended | replaced | deleted
	TenantID  string
	ScratchID string
}
