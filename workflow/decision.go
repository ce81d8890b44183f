package workflow

import (
	"fmt"
	"strings"

	"github.com/AltairaLabs/Waypoint/session"
)

// recentLogWindow is how many trailing log entries feed the decision corpus.
const recentLogWindow = 5

// minKeywordLen filters out short stop-word-ish tokens from child keywords.
const minKeywordLen = 4

// AutoDecide attempts a heuristic decision at a multi-choice node using the
// session's recent log text and execution context.
//
// Scoring rule: each child is scored by the number of its distinct keywords
// (tokens of the child id and goal, lowercased, longer than three characters)
// that appear as substrings of the corpus built from the last five log
// entries and the stringified execution-context values. The highest-scoring
// child wins only when its score is non-zero and strictly greater than the
// runner-up's; ties and all-zero scores return ok=false. The "no confident
// match" outcome is a first-class result, not an error.
func AutoDecide(node *Node, sess *session.Session) (string, bool) {
	corpus := decisionCorpus(sess)
	if corpus == "" {
		return "", false
	}

	best, runnerUp := "", 0
	bestScore := 0
	for _, choice := range ChoiceIDs(node) {
		score := keywordOverlap(corpus, choice, node.Children[choice])
		switch {
		case score > bestScore:
			runnerUp = bestScore
			bestScore = score
			best = choice
		case score > runnerUp:
			runnerUp = score
		}
	}

	if bestScore == 0 || bestScore == runnerUp {
		return "", false
	}
	return best, true
}

// decisionCorpus builds the lowercased text the keywords are matched against.
func decisionCorpus(sess *session.Session) string {
	var b strings.Builder
	for _, line := range sess.RecentLog(recentLogWindow) {
		b.WriteString(line)
		b.WriteByte(' ')
	}
	for _, v := range sess.ExecutionContext {
		if s, ok := v.(string); ok {
			b.WriteString(s)
			b.WriteByte(' ')
		} else {
			fmt.Fprintf(&b, "%v ", v)
		}
	}
	return strings.ToLower(b.String())
}

// keywordOverlap counts distinct child keywords present in the corpus.
func keywordOverlap(corpus, choiceID string, child *Node) int {
	seen := make(map[string]struct{})
	score := 0
	for _, kw := range childKeywords(choiceID, child) {
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		if strings.Contains(corpus, kw) {
			score++
		}
	}
	return score
}

// childKeywords tokenizes a child's id and goal into candidate keywords.
func childKeywords(choiceID string, child *Node) []string {
	text := choiceID
	if child != nil {
		text += " " + child.Goal
	}
	text = strings.ToLower(text)

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '.' || r == ',' || r == ':'
	})

	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= minKeywordLen {
			keywords = append(keywords, f)
		}
	}
	return keywords
}
