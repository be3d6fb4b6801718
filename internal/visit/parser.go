package visit

import (
	"regexp"
	"strings"
)

// The chatbot is not guaranteed to emit valid JSON for its question
// batches. The parser is a best-effort line scanner: it picks
// question/priority pairs out of JSON-ish objects, and if that yields
// nothing, falls back to treating numbered lines as questions.

var (
	objectStartRe   = regexp.MustCompile(`^\d+\.\s*\{`)
	questionFieldRe = regexp.MustCompile(`"question"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	priorityFieldRe = regexp.MustCompile(`"priority"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	numberedLineRe  = regexp.MustCompile(`^\d+\.\s*`)
)

// boilerplatePhrases are introductory/closing filler the chatbot wraps
// around its question lists. Matched case-insensitively as substrings.
var boilerplatePhrases = []string{
	"based on the patient",
	"here are",
	"i suggest",
	"suggested questions",
	"you may want to ask",
	"let me know",
	"hope this helps",
	"feel free to",
}

// ParseQuestions converts the raw lines of a chatbot question batch into
// ordered question records. The second return value is true when the
// numbered-line fallback produced the records rather than object
// extraction. Empty or absent input yields an empty batch.
func ParseQuestions(lines []string) ([]ParsedQuestion, bool) {
	records := parseQuestionObjects(lines)
	if len(records) > 0 {
		return records, false
	}
	records = parseNumberedLines(lines)
	return records, len(records) > 0
}

// parseQuestionObjects scans for JSON-fragment objects carrying
// "question" and "priority" fields. It is deliberately not a JSON
// parser: partial or malformed objects are tolerated as long as the two
// fields appear as quoted key/value pairs. An object that never closes
// its brace is dropped.
func parseQuestionObjects(lines []string) []ParsedQuestion {
	records := make([]ParsedQuestion, 0, len(lines))

	inObject := false
	var question, priority string

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if !inObject {
			if isBoilerplate(line) {
				continue
			}
			if line == "{" || objectStartRe.MatchString(line) {
				inObject = true
				question, priority = "", ""
			}
			continue
		}

		if m := questionFieldRe.FindStringSubmatch(line); m != nil {
			question = unescapeQuotes(m[1])
		}
		if m := priorityFieldRe.FindStringSubmatch(line); m != nil {
			priority = strings.ToUpper(unescapeQuotes(m[1]))
		}

		if line == "}" || strings.HasSuffix(line, "}") {
			if question != "" && priority != "" {
				records = append(records, ParsedQuestion{
					Text:     question,
					Priority: Priority(priority),
				})
			}
			inObject = false
		}
	}

	return records
}

// parseNumberedLines treats every non-boilerplate line of the form
// "1. ..." as a question, stripping the numbering. The first two get
// HIGH priority, the rest MEDIUM.
func parseNumberedLines(lines []string) []ParsedQuestion {
	records := make([]ParsedQuestion, 0, len(lines))

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || isBoilerplate(line) {
			continue
		}
		if !numberedLineRe.MatchString(line) {
			continue
		}
		text := strings.TrimSpace(numberedLineRe.ReplaceAllString(line, ""))
		if text == "" {
			continue
		}
		priority := PriorityMedium
		if len(records) < 2 {
			priority = PriorityHigh
		}
		records = append(records, ParsedQuestion{Text: text, Priority: priority})
	}

	return records
}

func isBoilerplate(line string) bool {
	lower := strings.ToLower(line)
	for _, phrase := range boilerplatePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func unescapeQuotes(s string) string {
	return strings.ReplaceAll(s, `\"`, `"`)
}
