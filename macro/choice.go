package macro

import (
	"regexp"
	"strconv"
	"strings"
)

// choiceGroupPattern matches digit runs separated by single characters inside
// parentheses. groupSeparator decides whether the separators agree.
var choiceGroupPattern = regexp.MustCompile(`\(\d+(?:[^\d\s()]\d+)*\)`)

// ChoiceGroup locates a parenthesized numeric alternation such as (10|20|50).
type ChoiceGroup struct {
	Start     int
	End       int
	Separator string
}

// FindChoiceGroup returns the first alternation group that uses a single
// separator throughout.
func FindChoiceGroup(document string) (ChoiceGroup, bool) {
	for _, loc := range choiceGroupPattern.FindAllStringIndex(document, -1) {
		sep, ok := groupSeparator(document[loc[0]+1 : loc[1]-1])
		if !ok {
			continue
		}
		return ChoiceGroup{Start: loc[0], End: loc[1], Separator: sep}, true
	}
	return ChoiceGroup{}, false
}

// groupSeparator returns the character between the numbers of inner, or "|"
// for a lone number. Mixed separators report false.
func groupSeparator(inner string) (string, bool) {
	sep := ""
	for _, r := range inner {
		if '0' <= r && r <= '9' {
			continue
		}
		switch {
		case sep == "":
			sep = string(r)
		case sep != string(r):
			return "", false
		}
	}
	if sep == "" {
		sep = "|"
	}
	return sep, true
}

// RewriteChoiceGroup replaces the first alternation group with the given
// denominations in order. A document without a group is returned unchanged.
func RewriteChoiceGroup(document string, denominations []int) string {
	if len(denominations) == 0 {
		return document
	}
	g, ok := FindChoiceGroup(document)
	if !ok {
		return document
	}

	parts := make([]string, len(denominations))
	for i, d := range denominations {
		parts[i] = strconv.Itoa(d)
	}
	return document[:g.Start] + "(" + strings.Join(parts, g.Separator) + ")" + document[g.End:]
}
