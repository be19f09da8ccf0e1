package ruleengine

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// VariableString returns the text form of a request variable. Content rules,
// addressing and templates all compare and print variables through it.
//
// Numbers render the way they were written: json.Number keeps its literal and
// floats never use exponent notation, so a decoded 1000000 reads "1000000" and
// matches the same literal in a rule document. nil renders as "".
func VariableString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
