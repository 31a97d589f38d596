package types

// RosterRow is one line of a unit sheet in the roster document.
type RosterRow struct {
	Identity string
	Unit     string
	OnDuty   bool
	Shift    string
	CardID   string // empty when the sheet has no card for this identity
}
