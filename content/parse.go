package content

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// cleanResponse strips markdown fences and surrounding prose so the body
// can be fed to the JSON decoder.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	// Models sometimes wrap the JSON in a sentence. Trim to the outermost
	// brace or bracket pair.
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end > start {
		return s[start : end+1]
	}
	return s
}

var (
	singleQuotedValue = regexp.MustCompile(`'([^']*)'`)
	unquotedKey       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	trailingComma     = regexp.MustCompile(`,(\s*[}\]])`)
)

// repairJSON applies the common model mistakes: single quotes instead of
// double, bare keys, trailing commas.
func repairJSON(s string) string {
	if !strings.Contains(s, `"`) {
		s = singleQuotedValue.ReplaceAllString(s, `"$1"`)
	}
	s = unquotedKey.ReplaceAllString(s, `$1"$2"$3`)
	s = trailingComma.ReplaceAllString(s, `$1`)
	return s
}

// decodeJSON tries a clean parse, then a repaired one.
func decodeJSON(raw string, out any) bool {
	body := cleanResponse(raw)
	if json.Unmarshal([]byte(body), out) == nil {
		return true
	}
	return json.Unmarshal([]byte(repairJSON(body)), out) == nil
}

var numberedLine = regexp.MustCompile(`^\s*(?:#|No\.?\s*)?(\d{1,2})[\.\):\-]\s+(.+)$`)

// numberedEntry is one line of a numbered list pulled out of free text.
type numberedEntry struct {
	Number int
	Text   string
}

// extractNumberedList is the last-resort parser: it walks the raw text for
// "1. ..." style lines and keeps the first clean run of them.
func extractNumberedList(raw string) []numberedEntry {
	var entries []numberedEntry
	for _, line := range strings.Split(raw, "\n") {
		m := numberedLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > 50 {
			continue
		}
		text := strings.TrimSpace(m[2])
		text = strings.Trim(text, "*_` ")
		if text == "" {
			continue
		}
		entries = append(entries, numberedEntry{Number: n, Text: text})
	}
	return entries
}

// extractLabeledLine finds "Label: value" in free text, case-insensitive.
func extractLabeledLine(raw, label string) string {
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimLeft(line, "*#- ")
		idx := strings.Index(trimmed, ":")
		if idx <= 0 {
			continue
		}
		key := strings.ToLower(strings.Trim(trimmed[:idx], "*_` "))
		if key == strings.ToLower(label) {
			return strings.Trim(strings.TrimSpace(trimmed[idx+1:]), `"*_ `)
		}
	}
	return ""
}

// splitTitleDescription breaks "Title - description" or "Title: description"
// entries into their halves.
func splitTitleDescription(text string) (string, string) {
	for _, sep := range []string{" - ", " – ", ": "} {
		if idx := strings.Index(text, sep); idx > 0 {
			return strings.TrimSpace(text[:idx]), strings.TrimSpace(text[idx+len(sep):])
		}
	}
	return strings.TrimSpace(text), ""
}
