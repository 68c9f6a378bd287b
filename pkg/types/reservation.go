package types

import "time"

// ReservationKind identifies the payload of a reservation
type ReservationKind string

const (
	ReservationKindResource ReservationKind = "resource"
	ReservationKindEndpoint ReservationKind = "endpoint"
	ReservationKindRoom     ReservationKind = "room"
	ReservationKindAlias    ReservationKind = "alias"
	ReservationKindValue    ReservationKind = "value"
	ReservationKindExisting ReservationKind = "existing"
	ReservationKindCompound ReservationKind = "compound"
)

// Reservation is the allocated outcome for one slot. Reservations form a
// tree through ParentID/ChildIDs; the tree is resolved through the store.
type Reservation struct {
	ID           string
	Kind         ReservationKind
	Slot         Interval
	AllocationID string
	ParentID     string
	ChildIDs     []string
	TargetID     string // resource, alias provider or value provider occupied
	EndpointID   string // executable identity used by the executor
	UserID       string
	CreatedAt    time.Time

	Room     *RoomReservation
	Alias    *AliasReservation
	Value    *ValueReservation
	Existing *ExistingReservation
}

// RoomReservation holds the licenses taken on a room provider device
type RoomReservation struct {
	LicenseCount int
	Technologies []Technology
}

// AliasReservation holds the aliases allocated from an alias provider
type AliasReservation struct {
	ResourceID    string
	ProviderID    string
	Aliases       []Alias
	PermanentRoom bool
}

// ValueReservation holds one value allocated from a value provider
type ValueReservation struct {
	Value string
}

// ExistingReservation reuses a reservation owned by another allocation
type ExistingReservation struct {
	ReservationID string
	AllocationID  string
}

// IsExclusive reports whether the reservation occupies its target for
// everyone else (resources and endpoints are single occupancy).
func (r *Reservation) IsExclusive() bool {
	return r.Kind == ReservationKindResource || r.Kind == ReservationKindEndpoint
}

// LicenseCount returns the room licenses held, 0 for other kinds
func (r *Reservation) LicenseCount() int {
	if r.Room == nil {
		return 0
	}
	return r.Room.LicenseCount
}

// AddChild links child under r
func (r *Reservation) AddChild(child *Reservation) {
	child.ParentID = r.ID
	r.ChildIDs = append(r.ChildIDs, child.ID)
}

// RemoveChild unlinks the child with id
func (r *Reservation) RemoveChild(id string) {
	for i, childID := range r.ChildIDs {
		if childID == id {
			r.ChildIDs = append(r.ChildIDs[:i:i], r.ChildIDs[i+1:]...)
			return
		}
	}
}

// IsHistory reports whether the reservation already started at now
func (r *Reservation) IsHistory(now time.Time) bool {
	return r.Slot.Start.Before(now)
}
