package urgency

import (
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/dwizi/wa-assistant/internal/textnorm"
)

const (
	DedupWindow         = 120 * time.Second
	SimilarityThreshold = 0.88
)

// Similarity scores two squashed texts in [0, 1].
type Similarity interface {
	Ratio(a, b string) float64
}

// SequenceRatio is the Ratcliff/Obershelp matching ratio computed over runes.
type SequenceRatio struct{}

func (SequenceRatio) Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	matcher := difflib.NewMatcher(splitRunes(a), splitRunes(b))
	return matcher.Ratio()
}

func splitRunes(value string) []string {
	out := make([]string, 0, len(value))
	for _, r := range value {
		out = append(out, string(r))
	}
	return out
}

// FindRecentDuplicate scans records newest first for one from the same sender
// and kind whose text matches (exactly or by similarity) and that was created
// within DedupWindow of now.
func FindRecentDuplicate(records []Record, sender, text string, kind Kind, now time.Time, similarity Similarity) (Record, bool) {
	normalized := textnorm.Squash(text)
	if normalized == "" {
		return Record{}, false
	}
	if similarity == nil {
		similarity = SequenceRatio{}
	}
	for i := len(records) - 1; i >= 0; i-- {
		candidate := records[i]
		if candidate.Sender != sender || candidate.Kind != kind {
			continue
		}
		previous := textnorm.Squash(candidate.Text)
		if previous != normalized && similarity.Ratio(previous, normalized) < SimilarityThreshold {
			continue
		}
		if candidate.CreatedAt.IsZero() {
			continue
		}
		if now.Sub(candidate.CreatedAt) <= DedupWindow {
			return candidate, true
		}
	}
	return Record{}, false
}
