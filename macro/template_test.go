package macro

import (
	"fmt"
	"strings"
)

// Test fixture shaped like an automation-app export: four slot lists, one
// action list per fragment kind, and a numeric trigger group.

func amountSnippet(i int) string {
	return fmt.Sprintf(`{"type":"ReadFileAction","fileId":"%s","save":"VCOD_0%d","label":"0%dPHP voucher"}`,
		FileReferencePlaceholder, i, i)
}

func codeSnippet(i int) string {
	return fmt.Sprintf(`{"type":"EmailAction","to":"%s","subject":"%s 0%dphp used","body":"[lv=PHP0%d]"}`,
		IdentityPlaceholder, DisplayNamePlaceholder, i, i)
}

func dictionaryEntries(i int) []string {
	return []string{
		amountKey(i) + receivedEntry,
		amountKey(i) + receivedAltEntry,
		amountKey(i) + introEntry,
	}
}

func credentialEntries(i int) []string {
	return []string{
		codeKey(i) + credentialEntry,
		amountKey(i) + credentialEntry,
	}
}

// buildTemplate renders the fixture. order lists the slot indices in the order
// their elements appear in every list.
func buildTemplate(order []int) string {
	var dict, creds, actions, codes []string
	for _, i := range order {
		dict = append(dict, dictionaryEntries(i)...)
		creds = append(creds, credentialEntries(i)...)
		actions = append(actions, amountSnippet(i))
		codes = append(codes, codeSnippet(i))
	}
	return `{"macroName":"` + DisplayNamePlaceholder + ` Vouchers","owner":"` + IdentityPlaceholder + `",` +
		`"dictionary":[` + strings.Join(dict, ",") + `],` +
		`"credentials":[` + strings.Join(creds, ",") + `],` +
		`"actions":[` + strings.Join(actions, ",") + `],` +
		`"codes":[` + strings.Join(codes, ",") + `],` +
		`"trigger":{"pattern":"^(1|2|3|4|5|6|7|8|9)php$"}}`
}

func standardOrder() []int {
	order := make([]int, SlotCount)
	for i := range order {
		order[i] = i + 1
	}
	return order
}

func standardTemplate() string {
	return buildTemplate(standardOrder())
}

// standardLibrary holds the list elements exactly as the app exports them:
// with the trailing comma, or the leading one for the last slot.
func standardLibrary() FragmentSet {
	lib := FragmentSet{}
	for i := 1; i <= SlotCount; i++ {
		a, c := amountSnippet(i)+",", codeSnippet(i)+","
		if i == SlotCount {
			a, c = ","+amountSnippet(i), ","+codeSnippet(i)
		}
		lib[FragmentKey{Kind: FragmentAmount, Index: i}] = a
		lib[FragmentKey{Kind: FragmentCode, Index: i}] = c
	}
	return lib
}

func refsFor(n int) []string {
	refs := make([]string, n)
	for i := range refs {
		refs[i] = fmt.Sprintf("ref%c", 'A'+i)
	}
	return refs
}
