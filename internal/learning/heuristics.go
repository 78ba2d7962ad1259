package learning

import "strings"

// candidate is an extracted cue before confidence scoring.
type candidate struct {
	t    PatternType
	data PatternData

	// aiConfidence is the provider's extraction certainty, or 1.0 on
	// the deterministic path.
	aiConfidence float64
}

// Sentiment word lists for the deterministic pass.
var (
	positiveWords = []string{
		"excellent", "great", "strong", "good", "perfect", "impressive",
		"ideal", "promising", "love", "exactly",
	}
	negativeWords = []string{
		"poor", "weak", "bad", "wrong", "irrelevant", "avoid",
		"mismatch", "reject", "not a fit", "too junior",
	}
	sizeWords = []string{
		"startup", "enterprise", "small company", "large company",
		"mid-size", "smb",
	}
	experienceWords = []string{
		"senior", "junior", "experience", "years", "seasoned", "veteran",
	}
	roleWords = []string{
		"leadership", "management", "engineer", "founder", "executive",
		"director", "technical",
	}
)

// heuristicExtract is the deterministic keyword pass. It runs when no
// AI provider is available or every provider failed, so feedback is
// never discarded on provider outage.
//
// Cues are detected relative to the profile's populated attributes:
// an industry cue is only emitted when the profile has an industry to
// anchor it to.
func heuristicExtract(fb Feedback, profile *Profile) []candidate {
	var out []candidate
	text := strings.ToLower(fb.Reasoning)

	// Industry affinity follows the rating polarity.
	if profile.Industry != "" {
		switch {
		case fb.Positive():
			out = append(out, candidate{
				t:            PatternIndustryPreference,
				data:         PatternData{Industry: profile.Industry},
				aiConfidence: 1.0,
			})
		case fb.Negative():
			out = append(out, candidate{
				t:            PatternIndustryAvoidance,
				data:         PatternData{Industry: profile.Industry},
				aiConfidence: 1.0,
			})
		}
	}

	// Role preference: positive feedback that talks about the role.
	if profile.Role != "" && fb.Positive() && containsAny(text, roleWords) {
		out = append(out, candidate{
			t:            PatternRolePreference,
			data:         PatternData{Role: profile.Role},
			aiConfidence: 1.0,
		})
	}

	// Company size: only when the text mentions size at all.
	if profile.CompanySize != "" && fb.Positive() && containsAny(text, sizeWords) {
		out = append(out, candidate{
			t:            PatternCompanySizePreference,
			data:         PatternData{CompanySize: profile.CompanySize},
			aiConfidence: 1.0,
		})
	}

	// Experience level: seniority talk anchored to the profile.
	if profile.Seniority != "" && fb.Positive() && containsAny(text, experienceWords) {
		out = append(out, candidate{
			t:            PatternExperiencePreference,
			data:         PatternData{ExperienceLevel: profile.Seniority},
			aiConfidence: 1.0,
		})
	}

	// Outcome indicators from sentiment words in the reasoning.
	if fb.Positive() {
		if w := firstMatch(text, positiveWords); w != "" {
			out = append(out, candidate{
				t:            PatternSuccessIndicator,
				data:         PatternData{Signal: w},
				aiConfidence: 1.0,
			})
		}
	} else if fb.Negative() {
		if w := firstMatch(text, negativeWords); w != "" {
			out = append(out, candidate{
				t:            PatternFailureIndicator,
				data:         PatternData{Signal: w},
				aiConfidence: 1.0,
			})
		}
	}

	return out
}

// containsAny reports whether text contains any of the words.
func containsAny(text string, words []string) bool {
	return firstMatch(text, words) != ""
}

// firstMatch returns the first word found in text, or "".
func firstMatch(text string, words []string) string {
	for _, w := range words {
		if strings.Contains(text, w) {
			return w
		}
	}
	return ""
}
