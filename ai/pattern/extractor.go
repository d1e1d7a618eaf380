package pattern

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
)

const contextRadius = 40

// Fixed confidences per rule; honorifics and facility keywords are stronger
// evidence than bare capitalization.
const (
	confidenceHonorific = 85
	confidenceFacility  = 80
	confidenceDate      = 90
	confidenceNameRun   = 65
)

const (
	upperWord = `\p{Lu}[\p{Ll}\p{M}'’-]+`
	// connectors allowed inside names and facility names
	nameJoin = `(?:\s+(?:de|del|de la|y|van|von|da|dos)\s+|\s+)`
)

var (
	honorificRE = regexp.MustCompile(
		`\b(?:Sr\.|Sra\.|Srta\.|Dr\.|Dra\.|Lic\.|Ing\.|Mr\.|Mrs\.|Ms\.|señor|señora|doctor|doctora|inspector|inspectora|agente|detective|capitán|sargento|oficial)\s+(` +
			upperWord + `(?:` + nameJoin + upperWord + `){0,3})`)

	facilityRE = regexp.MustCompile(
		`\b(?:Hospital|Clínica|Clinica|Centro|Universidad|Escuela|Colegio|Instituto|Banco|Ministerio|Policía|Policia|Comisaría|Comisaria|Juzgado|Tribunal|Fundación|Fundacion|Empresa|Hotel|Aeropuerto|Puerto|Prisión|University|School|Bank|Ministry|Police|Airport|Prison)(?:` +
			nameJoin + upperWord + `){1,4}`)

	corporateRE = regexp.MustCompile(
		upperWord + `(?:\s+` + upperWord + `){0,3}\s+(?:S\.A\.|S\.L\.|S\.A\.S\.|Inc\.|Ltd\.|LLC|Corp\.|GmbH)`)

	nameRunRE = regexp.MustCompile(upperWord + `(?:` + nameJoin + upperWord + `){1,3}`)

	dateRE = regexp.MustCompile(
		`(?i)\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4}|\d{1,2}\s+de\s+(?:enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|setiembre|octubre|noviembre|diciembre)(?:\s+de\s+\d{4})?|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2}(?:,\s*\d{4})?)\b`)
)

// sentenceStarters are capitalized only by position and never start a name run.
var sentenceStarters = map[string]bool{
	"El": true, "La": true, "Los": true, "Las": true, "Un": true, "Una": true,
	"En": true, "Por": true, "Para": true, "Con": true, "Según": true, "Ayer": true,
	"Hoy": true, "The": true, "A": true, "An": true, "In": true, "On": true,
	"At": true, "This": true, "Este": true, "Esta": true,
}

// EntityExtractor implements ai.EntityExtractor with regular expressions.
type EntityExtractor struct {
	minConfidence int
}

var _ ai.EntityExtractor = (*EntityExtractor)(nil)

// NewEntityExtractor creates an extractor that drops mentions below minConfidence.
func NewEntityExtractor(minConfidence int) *EntityExtractor {
	return &EntityExtractor{minConfidence: minConfidence}
}

type span struct {
	start, end int
}

// ExtractEntities scans text rule by rule. Earlier rules claim their spans,
// so a facility name is never also reported as a person.
func (e *EntityExtractor) ExtractEntities(ctx context.Context, text, language string) ([]ai.EntityMention, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var claimed []span
	overlaps := func(s span) bool {
		for _, c := range claimed {
			if s.start < c.end && c.start < s.end {
				return true
			}
		}
		return false
	}

	mentions := []ai.EntityMention{}
	add := func(entityType core.EntityType, start, end, confidence int) {
		s := span{start, end}
		if overlaps(s) || confidence < e.minConfidence {
			return
		}
		claimed = append(claimed, s)
		mentions = append(mentions, ai.EntityMention{
			Type:       entityType,
			Text:       text[start:end],
			Confidence: confidence,
			Start:      start,
			End:        end,
			Context:    ai.ContextWindow(text, start, end, contextRadius),
		})
	}

	for _, m := range dateRE.FindAllStringIndex(text, -1) {
		add(core.EntityDate, m[0], m[1], confidenceDate)
	}
	for _, m := range facilityRE.FindAllStringIndex(text, -1) {
		add(core.EntityOrg, m[0], m[1], confidenceFacility)
	}
	for _, m := range corporateRE.FindAllStringIndex(text, -1) {
		add(core.EntityOrg, m[0], m[1], confidenceFacility)
	}
	for _, m := range honorificRE.FindAllStringSubmatchIndex(text, -1) {
		add(core.EntityPerson, m[2], m[3], confidenceHonorific)
	}
	for _, m := range nameRunRE.FindAllStringIndex(text, -1) {
		start, end := trimStarter(text, m[0], m[1])
		if strings.Count(text[start:end], " ") == 0 {
			continue
		}
		add(core.EntityPerson, start, end, confidenceNameRun)
	}

	slices.SortFunc(mentions, func(a, b ai.EntityMention) int {
		return a.Start - b.Start
	})
	return mentions, nil
}

// trimStarter drops a leading sentence-starter word from a name run.
func trimStarter(text string, start, end int) (int, int) {
	first, _, found := strings.Cut(text[start:end], " ")
	if found && sentenceStarters[first] {
		start += len(first) + 1
	}
	return start, end
}
