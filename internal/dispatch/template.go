package dispatch

import (
	"strings"

	"github.com/rafaeljc/herald/internal/ruleengine"
)

// Render replaces each {{name}} placeholder with the matching variable.
// A nil variable renders as an empty string; placeholders without a variable are kept.
func Render(layout string, variables map[string]any) string {
	if len(variables) == 0 || !strings.Contains(layout, "{{") {
		return layout
	}

	pairs := make([]string, 0, 2*len(variables))
	for name, value := range variables {
		pairs = append(pairs, "{{"+name+"}}", ruleengine.VariableString(value))
	}
	return strings.NewReplacer(pairs...).Replace(layout)
}
