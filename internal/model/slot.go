package model

import "fmt"

// SlotStatus is the commitment stage a slot reached.
type SlotStatus int32

const (
	SlotProcessed SlotStatus = iota
	SlotRooted
	SlotConfirmed
	SlotFirstShredReceived
	SlotCompleted
	SlotCreatedBank
	SlotDead
)

var slotStatusNames = map[SlotStatus]string{
	SlotProcessed:          "processed",
	SlotRooted:             "rooted",
	SlotConfirmed:          "confirmed",
	SlotFirstShredReceived: "first_shred_received",
	SlotCompleted:          "completed",
	SlotCreatedBank:        "created_bank",
	SlotDead:               "dead",
}

func (s SlotStatus) String() string {
	if name, ok := slotStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("slot_status(%d)", int32(s))
}

// ParseSlotStatus maps a status name back to its value.
func ParseSlotStatus(name string) (SlotStatus, error) {
	for status, n := range slotStatusNames {
		if n == name {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown slot status %q", name)
}

// SlotUpdate reports a slot status transition.
type SlotUpdate struct {
	Slot   uint64     `json:"slot"`
	Parent *uint64    `json:"parent,omitempty"`
	Status SlotStatus `json:"status"`
	// DeadError is set only for SlotDead.
	DeadError string `json:"dead_error,omitempty"`
}
