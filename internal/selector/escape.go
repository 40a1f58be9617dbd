package selector

import (
	"fmt"
	"strings"
)

// escapeIdent escapes s for use as a CSS identifier (id or class name).
func escapeIdent(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r >= 0x80:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				// A leading digit must be written as a hex escape.
				fmt.Fprintf(&b, `\%x `, r)
			} else {
				b.WriteRune(r)
			}
		case r == '-':
			if i == 0 && len(s) == 1 {
				b.WriteString(`\-`)
			} else {
				b.WriteRune(r)
			}
		case r == 0:
			b.WriteString(`\fffd `)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\%x `, r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// quoteAttr returns v as a double-quoted CSS string with embedded quotes
// and backslashes escaped.
func quoteAttr(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)
	return `"` + r.Replace(v) + `"`
}

// attrSelector renders tag[name="value"], or tag[name] for empty values.
// tag may be empty.
func attrSelector(tag, name, value string) string {
	if value == "" {
		return fmt.Sprintf("%s[%s]", tag, escapeIdent(name))
	}
	return fmt.Sprintf("%s[%s=%s]", tag, escapeIdent(name), quoteAttr(value))
}
