// Package slug generates URL-safe anchors and identifiers compatible with the
// GitHub heading slug algorithm used by the site generator: text is
// normalized and lower-cased, punctuation is dropped, and spaces become dashes.
package slug

import (
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Und)

// Make returns the slug of s without any de-duplication.
func Make(s string) string {
	s = lower.String(norm.NFC.String(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ' ':
			b.WriteByte('-')
		case r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Slugger hands out unique slugs. The first occurrence of a slug is returned
// as-is; repeats get -1, -2, ... appended.
type Slugger struct {
	mu   sync.Mutex
	seen map[string]int
}

// NewSlugger returns an empty Slugger.
func NewSlugger() *Slugger {
	return &Slugger{seen: make(map[string]int)}
}

// Slug returns a slug for s that this Slugger has not returned before.
func (s *Slugger) Slug(value string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := Make(value)
	result := base
	for {
		if _, ok := s.seen[result]; !ok {
			break
		}
		s.seen[base]++
		result = base + "-" + strconv.Itoa(s.seen[base])
	}
	s.seen[result] = 0
	return result
}

// Reset forgets every slug handed out so far.
func (s *Slugger) Reset() {
	s.mu.Lock()
	s.seen = make(map[string]int)
	s.mu.Unlock()
}
