package cache

import (
	"regexp"
)

// IntentGeneral is the fallback label when no rule matches.
const IntentGeneral = "general"

// intentRule pairs a label with its keyword pattern. Declaration order is
// significant: the first matching rule wins, regardless of specificity.
type intentRule struct {
	label   string
	pattern *regexp.Regexp
}

// intentRules is the ordered rule table. A wrong label degrades analytics
// only, never cache correctness, so the rules stay deliberately coarse.
var intentRules = []intentRule{
	{"pricing", regexp.MustCompile(`(?i)price|cost|how much|expensive|cheap|pricing|rates|fees`)},
	{"hours", regexp.MustCompile(`(?i)hours|open|close|when|time|schedule`)},
	{"policies", regexp.MustCompile(`(?i)policy|return|refund|exchange|guarantee`)},
	{"menu", regexp.MustCompile(`(?i)menu|options|have|sell|offer|available|selection`)},
	{"delivery", regexp.MustCompile(`(?i)deliver|pickup|order|shipping|takeout`)},
	{"custom", regexp.MustCompile(`(?i)custom|special|wedding|birthday|cake|personalized`)},
	{"location", regexp.MustCompile(`(?i)where|address|location|directions`)},
	{"contact", regexp.MustCompile(`(?i)contact|phone|email|reach|call`)},
	{"allergies", regexp.MustCompile(`(?i)allergy|allergic|gluten|dairy|nuts|dietary`)},
}

// ClassifyIntent tags a question with a coarse category for reporting and
// grouping. Returns the label of the first matching rule, or IntentGeneral.
func ClassifyIntent(question string) string {
	for _, rule := range intentRules {
		if rule.pattern.MatchString(question) {
			return rule.label
		}
	}
	return IntentGeneral
}

// IntentLabels returns the known labels in rule order, with the fallback
// label last. Useful for dashboards enumerating categories.
func IntentLabels() []string {
	labels := make([]string, 0, len(intentRules)+1)
	for _, rule := range intentRules {
		labels = append(labels, rule.label)
	}
	return append(labels, IntentGeneral)
}
