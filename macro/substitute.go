package macro

import (
	"fmt"
	"strconv"
	"strings"
)

// Diagnostics reports the placeholder accounting of a compilation.
type Diagnostics struct {
	ReplacedCount     int `json:"replacedCount"`
	ExpectedRemaining int `json:"expectedRemaining"`
	ActualRemaining   int `json:"actualRemaining"`
}

// CountPlaceholders returns the number of file-reference placeholders in
// document. A template built for every slot holds SlotCount of them.
func CountPlaceholders(document string) int {
	return strings.Count(document, FileReferencePlaceholder)
}

// InjectFileReferences replaces the file-reference placeholder left to right,
// once per used slot in index order. Exactly SlotCount-len(used) placeholders
// must remain afterwards; anything else means the template was not built with
// SlotCount provisioned references.
func InjectFileReferences(document string, slots Slots) (string, Diagnostics, error) {
	used := slots.Used()
	diag := Diagnostics{ExpectedRemaining: SlotCount - len(used)}

	var b strings.Builder
	b.Grow(len(document))
	rest := document
	for _, slot := range used {
		i := strings.Index(rest, FileReferencePlaceholder)
		if i < 0 {
			return document, diag, fmt.Errorf("%w: placeholder #%d of %d not found",
				ErrTemplateMismatch, diag.ReplacedCount+1, len(used))
		}
		b.WriteString(rest[:i])
		b.WriteString(slot.FileReference)
		rest = rest[i+len(FileReferencePlaceholder):]
		diag.ReplacedCount++
	}
	b.WriteString(rest)

	diag.ActualRemaining = CountPlaceholders(rest)
	if diag.ActualRemaining != diag.ExpectedRemaining {
		return document, diag, fmt.Errorf("%w: expected exactly %d remaining placeholders, found %d",
			ErrTemplateMismatch, diag.ExpectedRemaining, diag.ActualRemaining)
	}
	return b.String(), diag, nil
}

// InjectValues rewires every used slot to its denomination.
//
// Variable-name tokens are renamed first (VCOD_01 -> VCOD_50, PHP01 -> PHP50,
// ...), then the received and intro values are injected under the renamed key.
// Unused slots map to themselves in both passes so the pruner still finds
// their entries verbatim. Each pass is a single scan, so text produced by one
// slot is never matched again by another slot's token.
func InjectValues(document string, slots Slots) string {
	names := make([]string, 0, len(slots)*8)
	values := make([]string, 0, len(slots)*6)

	for _, slot := range slots {
		tokens := variableTokens(slot.Index)
		if !slot.Used {
			for _, t := range tokens {
				names = append(names, t, t)
			}
			key := amountKey(slot.Index)
			for _, find := range []string{receivedFind, receivedAltFind, introFind} {
				values = append(values, key+find, key+find)
			}
			continue
		}

		renamed := renamedTokens(slot.Denomination)
		for i, t := range tokens {
			names = append(names, t, renamed[i])
		}

		key := renamedKey(slot.Denomination)
		d := strconv.Itoa(slot.Denomination)
		values = append(values,
			key+receivedFind, key+receivedValue+d+".00",
			key+receivedAltFind, key+receivedAltValue+d+".00",
			key+introFind, key+introFind+d,
		)
	}

	document = strings.NewReplacer(names...).Replace(document)
	return strings.NewReplacer(values...).Replace(document)
}

// InjectIdentity substitutes every identity placeholder and, when a display
// name is given, every display-name placeholder.
func InjectIdentity(document, identity, displayName string) string {
	document = strings.ReplaceAll(document, IdentityPlaceholder, strings.TrimSpace(identity))
	if name := strings.TrimSpace(displayName); name != "" {
		document = strings.ReplaceAll(document, DisplayNamePlaceholder, name)
	}
	return document
}
