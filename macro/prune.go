package macro

import (
	"fmt"
	"strings"
)

// PruneUnused deletes everything the template holds for unused slots: the
// library snippets verbatim, then the slot's five dictionary entries.
//
// Entries are list elements, so each is removed together with one comma.
// The last slot has no trailing comma and takes the leading one instead.
func PruneUnused(document string, slots Slots, library FragmentLibrary) string {
	for _, slot := range slots.Unused() {
		if library != nil {
			for _, kind := range FragmentKinds {
				if text, ok := library.Fragment(kind, slot.Index); ok {
					document = strings.ReplaceAll(document, text, "")
				}
			}
		}

		for _, entry := range slotEntries(slot.Index) {
			if slot.Index == SlotCount {
				document = strings.ReplaceAll(document, ","+entry, "")
			} else {
				document = strings.ReplaceAll(document, entry+",", "")
			}
		}
	}
	return document
}

var listDefectPatterns = []string{",,", ",]", ",}", "[,", "{,"}

// listDefects counts separator sequences that appear when a list element was
// removed with the wrong comma.
func listDefects(document string) int {
	n := 0
	for _, p := range listDefectPatterns {
		n += strings.Count(document, p)
	}
	return n
}

// verifyPruned checks the structural assumption behind the comma choice: the
// last slot closes every list it appears in. When it does not, entries either
// survive pruning or leave separator defects behind.
func verifyPruned(before, after string, slots Slots) error {
	for _, slot := range slots.Unused() {
		for _, entry := range slotEntries(slot.Index) {
			if strings.Contains(after, entry) {
				return fmt.Errorf("%w: slot %d entry survived pruning; slot %d must be the last entry of each list",
					ErrTemplateMismatch, slot.Index, SlotCount)
			}
		}
	}
	if n := listDefects(after) - listDefects(before); n > 0 {
		return fmt.Errorf("%w: pruning left %d malformed list separators; slot %d must be the last entry of each list",
			ErrTemplateMismatch, n, SlotCount)
	}
	return nil
}
