package supervisor

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// encodeLine converts text plus a trailing newline into the configured
// stdin charset. Unknown or empty encodings pass UTF-8 through unchanged.
func encodeLine(encoding, text string) []byte {
	raw := []byte(text + "\n")
	var cm *charmap.Charmap
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return raw
	case "latin1", "iso-8859-1":
		cm = charmap.ISO8859_1
	case "cp437":
		cm = charmap.CodePage437
	case "cp850":
		cm = charmap.CodePage850
	case "windows-1252", "cp1252":
		cm = charmap.Windows1252
	default:
		return raw
	}
	out, err := cm.NewEncoder().Bytes(raw)
	if err != nil {
		return raw
	}
	return out
}
