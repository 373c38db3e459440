package category

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"settlement-service/internal/config"
)

type Category string

const (
	Medical   Category = "medical"
	Education Category = "education"
	Mission   Category = "mission"
	Community Category = "community"
	Emergency Category = "emergency"
)

// ordered so ties resolve the same way on every run
var categories = []Category{Medical, Education, Mission, Community, Emergency}

var categoryKeywords = map[Category][]string{
	Medical:   {"surgery", "treatment", "hospital", "cancer", "medical", "health", "operation", "therapy"},
	Education: {"school", "tuition", "university", "student", "education", "scholarship", "learning", "study"},
	Mission:   {"mission", "church", "ministry", "faith", "bible", "christian", "missionary", "gospel"},
	Community: {"community", "neighborhood", "local", "family", "support", "help", "assistance"},
	Emergency: {"emergency", "urgent", "crisis", "disaster", "immediate", "help"},
}

type Suggestion struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords"`
}

// DetectLocal suggests a campaign category by keyword matching. Returns
// nil when nothing matches.
func DetectLocal(text string) *Suggestion {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	var best *Suggestion
	maxMatches := 0

	for _, cat := range categories {
		var matched []string
		for _, keyword := range categoryKeywords[cat] {
			for _, token := range tokens {
				if strings.Contains(token, keyword) {
					matched = append(matched, keyword)
					break
				}
			}
		}
		if len(matched) > maxMatches {
			maxMatches = len(matched)
			best = &Suggestion{
				Category: cat,
				Keywords: matched,
			}
		}
	}

	if best == nil {
		return nil
	}

	confidence := float64(maxMatches) / 3 * 100
	if confidence > 100 {
		confidence = 100
	}
	best.Confidence = confidence
	return best
}

func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, text)
	return strings.Fields(cleaned)
}

// Detector prefers a configured remote detection service and falls back
// to the local matcher when the remote call fails.
type Detector struct {
	remote *Client
	logger *slog.Logger
}

func NewDetector(cfg config.Category, logger *slog.Logger) *Detector {
	d := &Detector{logger: logger}
	if cfg.RemoteURL != "" {
		d.remote = NewClient(cfg)
	}
	return d
}

func (d *Detector) Detect(ctx context.Context, text string) *Suggestion {
	if d.remote != nil {
		suggestion, err := d.remote.Detect(ctx, text)
		if err == nil {
			return suggestion
		}
		d.logger.WarnContext(ctx, "Remote category detection failed, falling back to local", "error", err)
	}
	return DetectLocal(text)
}
