// Package rationale picks the sentence shown alongside the commands.
package rationale

import (
	"strings"

	"github.com/okian/framecoach/internal/domain/model"
)

const (
	TemplateGuidance = "Follow the highlighted targets to recreate your saved composition."
	WellComposed     = "Good composition! Small adjustments can make it even better."
	FollowAdvice     = "Analysis complete. Follow the recommendations for the best result."
)

// Select returns the analyzer's rationale verbatim when it supplied one,
// otherwise one of the fixed sentences.
func Select(commands []model.Command, templateActive bool, aiRationale string) string {
	switch {
	case strings.TrimSpace(aiRationale) != "":
		return aiRationale
	case templateActive:
		return TemplateGuidance
	case len(commands) == 0:
		return WellComposed
	default:
		return FollowAdvice
	}
}
