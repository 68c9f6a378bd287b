package types

// AllocationState tracks whether an allocation is still owned by a live request
type AllocationState string

const (
	AllocationActive  AllocationState = "active"
	AllocationDeleted AllocationState = "deleted"
)

// Allocation binds a reservation request to its current reservation and
// the history of reservations granted for it.
type Allocation struct {
	ID                   string
	RequestID            string
	State                AllocationState
	CurrentReservationID string
	ReservationIDs       []string
}

// AddReservation records a root reservation and makes it current
func (a *Allocation) AddReservation(id string) {
	for _, existing := range a.ReservationIDs {
		if existing == id {
			a.CurrentReservationID = id
			return
		}
	}
	a.ReservationIDs = append(a.ReservationIDs, id)
	a.CurrentReservationID = id
}

// RemoveReservation forgets a root reservation
func (a *Allocation) RemoveReservation(id string) {
	for i, existing := range a.ReservationIDs {
		if existing == id {
			a.ReservationIDs = append(a.ReservationIDs[:i:i], a.ReservationIDs[i+1:]...)
			break
		}
	}
	if a.CurrentReservationID == id {
		a.CurrentReservationID = ""
		if n := len(a.ReservationIDs); n > 0 {
			a.CurrentReservationID = a.ReservationIDs[n-1]
		}
	}
}
