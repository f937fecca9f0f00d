package habit

import (
	"regexp"
	"strings"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// phoneFormatting matches characters people type inside phone numbers.
var phoneFormatting = regexp.MustCompile(`[\s\-().]`)

// Normalize trims, lowercases and collapses internal whitespace.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// NormalizePhone strips formatting so "+1 (555) 010-2000" and "+15550102000" compare equal.
func NormalizePhone(s string) string {
	return phoneFormatting.ReplaceAllString(strings.TrimSpace(s), "")
}

// Reply is the interpretation of an inbound SMS body.
type Reply struct {
	// IsCompletion is true for YES/NO answers
	IsCompletion bool
	Completed    bool

	// Note is any text following a "yes,"/"no." prefix
	Note string
}

// replySeparators may follow a bare yes/no to attach a note, as in "yes, felt great".
const replySeparators = ",.!:;-"

// ClassifyReply interprets an inbound body. Exact YES/NO (any case) is a completion answer;
// so is yes/no followed by punctuation and a note. Anything else is conversational.
func ClassifyReply(body string) Reply {
	n := Normalize(body)
	for _, answer := range []struct {
		word      string
		completed bool
	}{{"yes", true}, {"no", false}} {
		if n == answer.word {
			return Reply{IsCompletion: true, Completed: answer.completed}
		}
		rest, found := strings.CutPrefix(n, answer.word)
		rest = strings.TrimLeft(rest, " ")
		if !found || rest == "" || !strings.ContainsRune(replySeparators, rune(rest[0])) {
			continue
		}
		note := strings.TrimSpace(strings.TrimLeft(rest, replySeparators+" "))
		return Reply{IsCompletion: true, Completed: answer.completed, Note: note}
	}
	return Reply{}
}
