// Package findings scores enriched findings for presentation.
package findings

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/CosmoTheDev/devsecwatch-worker/models"
)

// MaxScore is the highest attainable confidence score.
const MaxScore = 8

// camelCaseToken matches identifiers like validateInput or getUserById.
var camelCaseToken = regexp.MustCompile(`[a-z]+[A-Z][a-z]+`)

// Score sums the four confidence factors for ef.
//
//	analyzer confidence  >=0.9: 3, >=0.7: 2, else 1
//	known CVE            +2
//	AI description       >150 chars: +2, else +1 (templates: 0)
//	code specificity     camelCase token or "()" in the description: +1
func Score(ef models.EnrichedFinding) int {
	score := 1
	switch c := ef.Finding.Confidence; {
	case c >= 0.9:
		score = 3
	case c >= 0.7:
		score = 2
	}

	if strings.TrimSpace(ef.Finding.CVE) != "" {
		score += 2
	}

	exp := ef.Explanation
	if !exp.IsTemplate && exp.Source == models.SourceAI {
		if utf8.RuneCountInString(exp.Description) > 150 {
			score += 2
		} else {
			score++
		}
	}

	if strings.Contains(exp.Description, "()") || camelCaseToken.MatchString(exp.Description) {
		score++
	}
	return score
}

// Level maps a score to HIGH (>=7), MEDIUM (>=4) or LOW.
func Level(score int) models.ConfidenceLevel {
	switch {
	case score >= 7:
		return models.ConfidenceHigh
	case score >= 4:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// Assess is Level(Score(ef)).
func Assess(ef models.EnrichedFinding) models.ConfidenceLevel {
	return Level(Score(ef))
}
