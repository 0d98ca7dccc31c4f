package station

import "strings"

// MaxCodeLen bounds a stored station code.
const MaxCodeLen = 16

// SanitizeCode cleans a station code before it reaches the archive or
// ClickHouse:
//   - a doubled backslash becomes '/'
//   - quotes, lone backslashes and control bytes are stripped
//   - surrounding spaces are trimmed
//   - the result is capped at MaxCodeLen bytes
//
// Clean codes are returned without allocating.
func SanitizeCode(code string) string {
	if !needsSanitizing(code) {
		return code
	}

	buf := make([]byte, 0, len(code))
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c == '\\' && i+1 < len(code) && code[i+1] == '\\' {
			buf = append(buf, '/')
			i++
			continue
		}
		if c == '"' || c == '\'' || c == '\\' || c < 0x20 || c == 0x7F {
			continue
		}
		buf = append(buf, c)
	}

	out := strings.TrimSpace(string(buf))
	if len(out) > MaxCodeLen {
		out = out[:MaxCodeLen]
	}
	return out
}

func needsSanitizing(s string) bool {
	if len(s) > MaxCodeLen {
		return true
	}
	if s != "" && (s[0] == ' ' || s[len(s)-1] == ' ') {
		return true
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\'' || c == '\\' || c < 0x20 || c == 0x7F {
			return true
		}
	}
	return false
}
