package extract

import "strings"

// trimKeywords marks lines worth keeping for experience inference. Tuned
// empirically against careers-page copy; re-derive when switching models.
var trimKeywords = []string{
	"experience",
	"years",
	"qualification",
	"requirement",
	"responsibil",
	"minimum",
	"preferred",
}

const (
	trimMaxChars  = 8000
	trimMinKeep   = 500
	trimMinLine   = 20
)

// TrimJobText reduces page text to the lines that matter for experience
// extraction: lines longer than 20 characters containing one of the keyword
// stems. When the kept set is under 500 characters the leading page text is
// used instead. Output is always capped at 8 000 characters.
func TrimJobText(text string) string {
	var keep []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) <= trimMinLine {
			continue
		}
		lower := strings.ToLower(line)
		for _, k := range trimKeywords {
			if strings.Contains(lower, k) {
				keep = append(keep, line)
				break
			}
		}
	}

	trimmed := strings.Join(keep, "\n")
	if len(trimmed) < trimMinKeep {
		if len(text) > trimMaxChars {
			trimmed = text[:trimMaxChars]
		} else {
			trimmed = text
		}
	}

	if len(trimmed) > trimMaxChars {
		trimmed = trimmed[:trimMaxChars]
	}
	return trimmed
}
