package chatbot

import (
	"fmt"
	"strings"

	"github.com/parleyai/parley-platform/internal/nlp"
)

// renderTemplate substitutes {entity} and {@entity} placeholders with
// extracted entity values, then {var} and {$var} placeholders with context
// variables. Placeholders with no matching entity or variable are left
// untouched. Entity substitution runs first, so an entity shadows a context
// variable of the same name within one render.
func renderTemplate(template string, entities []nlp.ExtractedEntity, context *ConversationContext) string {
	for _, ent := range entities {
		value := fmt.Sprint(ent.Value)
		template = strings.ReplaceAll(template, "{"+ent.Entity+"}", value)
		template = strings.ReplaceAll(template, "{@"+ent.Entity+"}", value)
	}
	if context != nil {
		for name, v := range context.Variables {
			value := fmt.Sprint(v)
			template = strings.ReplaceAll(template, "{"+name+"}", value)
			template = strings.ReplaceAll(template, "{$"+name+"}", value)
		}
	}
	return template
}
