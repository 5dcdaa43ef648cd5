package extract

import (
	"fmt"

	"github.com/aileks/realm-sync/pkg/xmlutil"
)

// DefaultPromptVersion identifies the prompt below in cache keys. Bump it whenever
// the prompt or the response schema changes.
const DefaultPromptVersion = "canon-v1"

const systemPrompt = "You are a precise worldbuilding canon extraction system. Output only valid JSON."

// promptTemplate asks for the three-part extraction. The document text is injected
// inside <document> tags with tag characters escaped.
const promptTemplate = `Extract canon from the worldbuilding text below.

Return one JSON object with three arrays:
- "entities": {"name", "type", "description", "aliases", "status"}
  type is one of "character", "location", "item", "concept", "event".
  status is "new" unless the text clearly refers back to something already introduced ("existing").
- "facts": {"entityName", "subject", "predicate", "object", "confidence", "evidence",
  "evidencePosition": {"start", "end"}, "temporalBound": {"type", "value"}}
  entityName must equal the name of an entity in "entities".
  confidence is between 0 and 1.
  evidence is the exact supporting passage; evidencePosition gives its byte offsets in the text.
  temporalBound is optional; its type is "point", "range" or "relative".
- "relationships": {"sourceEntity", "targetEntity", "relationshipType", "evidence",
  "evidencePosition": {"start", "end"}}

Use empty arrays when nothing applies. Do not invent facts that the text does not state.

%s

Respond with the JSON object only.`

// BuildPrompt renders the user prompt for one chunk of text.
func BuildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, xmlutil.Section("document", text))
}
