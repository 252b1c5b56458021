package logstore

import (
	"fmt"
	"strings"
	"time"
)

// strftime directives accepted in filename patterns, mapped to Go layouts.
var strftimeLayouts = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'M': "04",
	'S': "05",
	'b': "Jan",
	'j': "002",
}

// RenderFilename expands strftime-style directives in pattern for t.
// "%%" produces a literal percent sign.
func RenderFilename(pattern string, t time.Time) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		if i+1 >= len(pattern) {
			return "", fmt.Errorf("dangling %% at end of pattern %q", pattern)
		}
		i++
		if pattern[i] == '%' {
			sb.WriteByte('%')
			continue
		}
		layout, ok := strftimeLayouts[pattern[i]]
		if !ok {
			return "", fmt.Errorf("unsupported directive %%%c in pattern %q", pattern[i], pattern)
		}
		sb.WriteString(t.Format(layout))
	}
	return sb.String(), nil
}
