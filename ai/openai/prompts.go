package openai

import (
	"fmt"
	"strings"

	"github.com/poiesic/docflow/ai"
)

const entityResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "text": {"type": "string"},
          "type": {"type": "string", "enum": [%s]},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "context": {"type": "string"}
        },
        "required": ["text", "type", "confidence"],
        "additionalProperties": false
      }
    }
  },
  "required": ["entities"],
  "additionalProperties": false
}`

const entityPromptTemplate = `You are a named entity recognition system for operational and investigative documents.
The documents are written in %s.

Extract every named entity from the text given by the user and return them as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Entity types:
- PERSON: people, named actors, aliases of people
- ORG: organizations, companies, agencies, hospitals, schools, named facilities
- LOC: cities, regions, addresses, countries
- DATE: dates and times, absolute or relative
- CUSTOM: other notable named things

Rules:
- "text" must be copied exactly as it appears in the input, including accents and capitalization.
- Do not translate or normalize entity text.
- "confidence" is your certainty from 0 to 1 that the mention is an entity of the given type.
- "context" is a short phrase from the text showing the entity's role.
- List each distinct mention once.
- If no entities can be identified, return "entities": [].
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input: "El inspector Juan Pérez llegó al Hospital Central de Madrid el 3 de mayo."
Output:
{
  "entities": [
    {"text":"Juan Pérez","type":"PERSON","confidence":0.95,"context":"El inspector Juan Pérez llegó"},
    {"text":"Hospital Central","type":"ORG","confidence":0.9,"context":"llegó al Hospital Central"},
    {"text":"Madrid","type":"LOC","confidence":0.9,"context":"Hospital Central de Madrid"},
    {"text":"3 de mayo","type":"DATE","confidence":0.85,"context":"el 3 de mayo"}
  ]
}`

var languageNames = map[string]string{
	"es": "Spanish",
	"en": "English",
	"pt": "Portuguese",
	"fr": "French",
	"it": "Italian",
	"de": "German",
}

// buildSystemPrompt creates the system prompt for the given ISO 639-1 language code.
func buildSystemPrompt(language string) string {
	name, ok := languageNames[strings.ToLower(language)]
	if !ok {
		name = "an unspecified language"
	}

	quoted := make([]string, len(ai.EntityTypes))
	for i, t := range ai.EntityTypes {
		quoted[i] = fmt.Sprintf("%q", t)
	}
	schema := fmt.Sprintf(entityResponseSchema, strings.Join(quoted, ", "))
	return fmt.Sprintf(entityPromptTemplate, name, schema)
}
