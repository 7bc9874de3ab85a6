package tle

import "strings"

// RecordText is one record cut out of a multi-record file.
type RecordText struct {
	Index int    `json:"index"`
	Line  int    `json:"line"`
	Name  string `json:"name,omitempty"`
	Text  string `json:"-"`
}

// SplitRecords cuts a catalog file into per-record text. A record is an
// optional name line, a line starting with "1 " and a line starting with
// "2 ". Comment lines travel with the record that follows them; comments after
// the last record are appended to it. Lines that do
// not fit the pattern become records of their own so validation reports them.
func SplitRecords(text string) []RecordText {
	raw := strings.Split(lineEndings.Replace(text), "\n")
	var (
		out      []RecordText
		cur      []string
		comments []string
		start    int
		name     string
		hasLine1 bool
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		all := append(append([]string{}, comments...), cur...)
		out = append(out, RecordText{
			Index: len(out),
			Line:  start,
			Name:  name,
			Text:  strings.Join(all, "\n"),
		})
		cur, comments, name, hasLine1 = nil, nil, "", false
	}
	begin := func(lineNo int) {
		if len(cur) == 0 {
			start = lineNo
		}
	}

	for i, line := range raw {
		lineNo := i + 1
		line = strings.TrimSpace(strings.ReplaceAll(line, "\t", " "))
		switch {
		case line == "":
		case isComment(line):
			comments = append(comments, line)
		case strings.HasPrefix(line, "1 "):
			if hasLine1 {
				flush()
			}
			begin(lineNo)
			cur = append(cur, line)
			hasLine1 = true
		case strings.HasPrefix(line, "2 "):
			begin(lineNo)
			cur = append(cur, line)
			flush()
		default:
			flush()
			begin(lineNo)
			cur = append(cur, line)
			name = trimNamePrefix(line)
		}
	}
	flush()
	if len(comments) > 0 && len(out) > 0 {
		last := &out[len(out)-1]
		last.Text += "\n" + strings.Join(comments, "\n")
	}
	return out
}
