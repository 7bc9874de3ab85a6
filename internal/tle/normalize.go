package tle

import "strings"

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// NormalizeLines canonicalizes line endings, turns tabs into spaces, trims
// every line and drops the empty ones. Order is preserved.
func NormalizeLines(text string) []string {
	text = lineEndings.Replace(text)
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(strings.ReplaceAll(line, "\t", " "))
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// SplitComments separates '#' comment lines from data lines.
func SplitComments(lines []string) (data, comments []string) {
	data = make([]string, 0, len(lines))
	for _, line := range lines {
		if isComment(line) {
			comments = append(comments, line)
			continue
		}
		data = append(data, line)
	}
	return data, comments
}

func isComment(line string) bool {
	return strings.HasPrefix(line, "#")
}
