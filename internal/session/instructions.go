package session

import (
	"fmt"
	"strings"
)

// BuildInstructions composes a session instruction block from the persona
// knobs the broker exposes. The result is handed to the model verbatim.
func BuildInstructions(role, personality string, wordLimit int, language string) string {
	var b strings.Builder
	if role != "" {
		fmt.Fprintf(&b, "You are %s.", role)
	}
	if personality != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "Your personality is %s.", personality)
	}
	if wordLimit > 0 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "Keep your answers under %d words.", wordLimit)
	}
	if language != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "Always respond in %s.", language)
	}
	return b.String()
}
