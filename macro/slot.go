package macro

import "fmt"

// SlotCount is the number of denomination slots provisioned in the template.
const SlotCount = 9

// Slot is one of the fixed template positions.
type Slot struct {
	Index         int
	Used          bool
	Denomination  int
	FileReference string
}

// Slots is the full set of template slots ordered by index.
type Slots []Slot

// AssignSlots binds denominations to slots 1..len(denominations) in caller
// order. The remaining slots up to SlotCount are returned unused.
func AssignSlots(denominations []int) (Slots, error) {
	if len(denominations) == 0 {
		return nil, fmt.Errorf("%w: at least one denomination is required", ErrInvalidInput)
	}
	if len(denominations) > SlotCount {
		return nil, fmt.Errorf("%w: %d denominations exceed the %d template slots",
			ErrInvalidInput, len(denominations), SlotCount)
	}

	slots := make(Slots, SlotCount)
	for i := range slots {
		slots[i].Index = i + 1
		if i >= len(denominations) {
			continue
		}
		d := denominations[i]
		if d <= 0 {
			return nil, fmt.Errorf("%w: denomination %d at position %d must be positive",
				ErrInvalidInput, d, i+1)
		}
		slots[i].Used = true
		slots[i].Denomination = d
	}
	return slots, nil
}

// Used returns the bound slots in index order.
func (s Slots) Used() Slots {
	var out Slots
	for _, slot := range s {
		if slot.Used {
			out = append(out, slot)
		}
	}
	return out
}

// Unused returns the unbound slots in index order.
func (s Slots) Unused() Slots {
	var out Slots
	for _, slot := range s {
		if !slot.Used {
			out = append(out, slot)
		}
	}
	return out
}

// Denominations returns the denominations of the used slots in index order.
func (s Slots) Denominations() []int {
	var out []int
	for _, slot := range s {
		if slot.Used {
			out = append(out, slot.Denomination)
		}
	}
	return out
}
