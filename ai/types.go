package ai

import (
	"strings"

	"github.com/poiesic/docflow/core"
)

// EntityTypes lists the entity classes extractors may return.
var EntityTypes = []core.EntityType{
	core.EntityPerson,
	core.EntityOrg,
	core.EntityLoc,
	core.EntityDate,
	core.EntityCustom,
}

// ParseEntityType maps an extractor label onto an EntityType.
// Common synonyms are accepted; anything unknown becomes CUSTOM.
func ParseEntityType(label string) core.EntityType {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "PERSON", "PER", "PEOPLE":
		return core.EntityPerson
	case "ORG", "ORGANIZATION", "ORGANISATION", "COMPANY", "FACILITY":
		return core.EntityOrg
	case "LOC", "LOCATION", "PLACE", "GPE":
		return core.EntityLoc
	case "DATE", "TIME":
		return core.EntityDate
	default:
		return core.EntityCustom
	}
}

// ContextWindow returns the text surrounding [start,end) widened by radius
// bytes on each side and snapped to rune boundaries.
func ContextWindow(text string, start, end, radius int) string {
	if start < 0 || end > len(text) || start > end {
		return ""
	}
	from := max(0, start-radius)
	to := min(len(text), end+radius)
	for from > 0 && !isRuneStart(text[from]) {
		from--
	}
	for to < len(text) && !isRuneStart(text[to]) {
		to++
	}
	return strings.TrimSpace(text[from:to])
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
