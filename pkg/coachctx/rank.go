// Package coachctx prepares the user's background context for a coaching turn.
//
// Rank orders the profile, diet, workout and progress blocks by how strongly
// they match the keywords of the current question. Compress trims a block to a
// character budget while keeping its head and tail.
package coachctx

import (
	"regexp"
	"sort"
	"strings"
)

// Bundle holds the free-text context blocks available for a turn. Any block
// may be empty.
type Bundle struct {
	Profile  string `json:"profile,omitempty"`
	Diet     string `json:"diet,omitempty"`
	Workout  string `json:"workout,omitempty"`
	Progress string `json:"progress,omitempty"`
}

// Block names, in default order.
const (
	BlockProfile  = "profile"
	BlockDiet     = "diet"
	BlockWorkout  = "workout"
	BlockProgress = "progress"
)

// Block is one named context block with its relevance score.
type Block struct {
	Name    string
	Content string
	Score   int
}

// Blocks returns the bundle's blocks in default order, including empty ones.
func (b Bundle) Blocks() []Block {
	return []Block{
		{Name: BlockProfile, Content: b.Profile},
		{Name: BlockDiet, Content: b.Diet},
		{Name: BlockWorkout, Content: b.Workout},
		{Name: BlockProgress, Content: b.Progress},
	}
}

// Get returns the named block's content.
func (b Bundle) Get(name string) (string, bool) {
	switch name {
	case BlockProfile:
		return b.Profile, true
	case BlockDiet:
		return b.Diet, true
	case BlockWorkout:
		return b.Workout, true
	case BlockProgress:
		return b.Progress, true
	}
	return "", false
}

// IsEmpty reports whether every block is blank.
func (b Bundle) IsEmpty() bool {
	for _, blk := range b.Blocks() {
		if strings.TrimSpace(blk.Content) != "" {
			return false
		}
	}
	return true
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "get": {}, "has": {}, "him": {},
	"his": {}, "how": {}, "now": {}, "see": {}, "way": {}, "who": {},
	"did": {}, "its": {}, "let": {}, "put": {}, "say": {}, "she": {},
	"too": {}, "use": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"why": {}, "with": {}, "this": {}, "that": {}, "have": {}, "from": {},
	"they": {}, "will": {}, "would": {}, "there": {}, "their": {},
	"should": {}, "could": {}, "about": {}, "your": {}, "does": {},
	"been": {}, "were": {}, "some": {}, "into": {}, "than": {}, "then": {},
	"them": {}, "these": {}, "those": {}, "just": {}, "like": {},
}

// Keywords lowercases the query, strips punctuation and drops short tokens
// and stop words. Duplicates are kept once, in first-seen order.
func Keywords(query string) []string {
	cleaned := nonWord.ReplaceAllString(strings.ToLower(query), " ")

	seen := make(map[string]struct{})
	var keywords []string
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}

// Score sums occurrences of each keyword in content weighted by keyword
// length, so longer and more specific matches count for more.
func Score(content string, keywords []string) int {
	if content == "" || len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	score := 0
	for _, kw := range keywords {
		score += strings.Count(lower, kw) * len(kw)
	}
	return score
}

// Ordered returns the non-empty blocks of bundle ranked by relevance to
// query. When nothing scores, the default block order is kept.
func Ordered(bundle Bundle, query string) []Block {
	keywords := Keywords(query)

	var blocks []Block
	for _, blk := range bundle.Blocks() {
		if strings.TrimSpace(blk.Content) == "" {
			continue
		}
		blk.Score = Score(blk.Content, keywords)
		blocks = append(blocks, blk)
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Score > blocks[j].Score
	})
	return blocks
}

// Rank concatenates the bundle's non-empty blocks in relevance order,
// separated by blank lines.
func Rank(bundle Bundle, query string) string {
	blocks := Ordered(bundle, query)
	parts := make([]string, 0, len(blocks))
	for _, blk := range blocks {
		parts = append(parts, blk.Content)
	}
	return strings.Join(parts, "\n\n")
}
