package macro

import (
	"fmt"
	"strconv"
)

// Template tokens replaced during compilation.
const (
	FileReferencePlaceholder = "PASTE_FILE_ID_HERE"
	IdentityPlaceholder      = "YOUR_EMAIL_HERE@gmail.com"
	DisplayNamePlaceholder   = "WIFINAME"
)

// Dictionary entry prefixes. A slot's key is the prefix followed by its index.
const (
	amountKeyPrefix = `{"key":"PHP0`
	codeKeyPrefix   = `{"key":"VCOD_0`
)

// Value prefixes as exported by the automation app. The find forms carry the
// zero value that is replaced with the denomination.
const (
	receivedFind     = `","variable":{"textValue":"received PHP 0.00`
	receivedValue    = `","variable":{"textValue":"received PHP `
	receivedAltFind  = `","variable":{"textValue":"received ₱0.00`
	receivedAltValue = `","variable":{"textValue":"received ₱`
	introFind        = `","variable":{"textValue":"Here is your `
)

// Complete dictionary entry tails, used when an unused slot is removed.
// The intro text keeps the literal backslash-n of the JSON export.
const (
	receivedEntry    = `","variable":{"textValue":"received PHP 0.00","variableType":2,"type":"StringValue"},"variableType":11,"type":"DictionaryEntry"}`
	receivedAltEntry = `","variable":{"textValue":"received ₱0.00","variableType":2,"type":"StringValue"},"variableType":11,"type":"DictionaryEntry"}`
	introEntry       = `","variable":{"textValue":"Here is your PHP voucher\n","variableType":2,"type":"StringValue"},"variableType":11,"type":"DictionaryEntry"}`
	credentialEntry  = `","variable":{"textValue":"","variableType":2,"type":"StringValue"},"variableType":11,"type":"DictionaryEntry"}`
)

// FragmentKind names one of the two snippet families in the fragment library.
type FragmentKind string

const (
	// FragmentAmount is the per-slot amount action block (action_1/e_php_N).
	FragmentAmount FragmentKind = "amount"
	// FragmentCode is the per-slot voucher code action block (action_2/e_vcod_N).
	FragmentCode FragmentKind = "code"
)

// FragmentKinds lists the kinds in the order the pruner removes them.
var FragmentKinds = []FragmentKind{FragmentAmount, FragmentCode}

// ParseFragmentKind converts a name to a FragmentKind.
func ParseFragmentKind(s string) (FragmentKind, error) {
	switch FragmentKind(s) {
	case FragmentAmount, FragmentCode:
		return FragmentKind(s), nil
	}
	return "", fmt.Errorf("%w: unknown fragment kind %q", ErrInvalidInput, s)
}

// FileName returns the conventional library file for the kind at index.
func (k FragmentKind) FileName(index int) string {
	switch k {
	case FragmentAmount:
		return "action_1/e_php_" + strconv.Itoa(index) + ".macro"
	case FragmentCode:
		return "action_2/e_vcod_" + strconv.Itoa(index) + ".macro"
	}
	return ""
}

// FragmentLibrary looks up the exact snippet text for an unused slot.
// A missing entry is not an error.
type FragmentLibrary interface {
	Fragment(kind FragmentKind, index int) (string, bool)
}

// FragmentKey addresses one snippet in a FragmentSet.
type FragmentKey struct {
	Kind  FragmentKind
	Index int
}

// FragmentSet is an in-memory FragmentLibrary.
type FragmentSet map[FragmentKey]string

// Fragment implements FragmentLibrary. Empty snippets count as absent.
func (s FragmentSet) Fragment(kind FragmentKind, index int) (string, bool) {
	text, ok := s[FragmentKey{Kind: kind, Index: index}]
	if !ok || text == "" {
		return "", false
	}
	return text, true
}

var _ FragmentLibrary = FragmentSet(nil)

func amountKey(index int) string { return amountKeyPrefix + strconv.Itoa(index) }

func codeKey(index int) string { return codeKeyPrefix + strconv.Itoa(index) }

// renamedKey is the amount key after a used slot's variable names are rewritten.
func renamedKey(d int) string { return `{"key":"PHP` + strconv.Itoa(d) }

// slotEntries returns the five dictionary entries a slot owns in the template.
func slotEntries(index int) []string {
	return []string{
		amountKey(index) + receivedEntry,
		amountKey(index) + receivedAltEntry,
		amountKey(index) + introEntry,
		codeKey(index) + credentialEntry,
		amountKey(index) + credentialEntry,
	}
}

// variableTokens returns the short variable-name tokens bound to a slot index.
func variableTokens(index int) []string {
	i := strconv.Itoa(index)
	return []string{"VCOD_0" + i, "0" + i + "PHP", "0" + i + "php", "PHP0" + i}
}

// renamedTokens returns the tokens of variableTokens rewritten for denomination d.
func renamedTokens(d int) []string {
	v := strconv.Itoa(d)
	return []string{"VCOD_" + v, v + "PHP", v + "php", "PHP" + v}
}
