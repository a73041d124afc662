package pipeline

import "regexp"

// CategoryDefault is the catch-all for videos no keyword rule matches.
const CategoryDefault = "performance"

// categoryRules in match order; first match wins.
var categoryRules = []struct {
	name string
	re   *regexp.Regexp
}{
	{"halftime", regexp.MustCompile(`(?i)\bhalf\s*-?\s*time\b|\bfield show\b`)},
	{"fifth-quarter", regexp.MustCompile(`(?i)\b5th quarter\b|\bfifth quarter\b`)},
	{"stand-battle", regexp.MustCompile(`(?i)\bstand battle\b|\bin the stands\b|\bstand tunes?\b`)},
	{"battle-of-the-bands", regexp.MustCompile(`(?i)\bbattle of the bands\b|\bbotb\b`)},
	{"drumline", regexp.MustCompile(`(?i)\bdrum\s*line\b|\bpercussion\b|\bdrum battle\b`)},
	{"parade", regexp.MustCompile(`(?i)\bparade\b|\bhomecoming march\b`)},
	{"practice", regexp.MustCompile(`(?i)\bpractice\b|\brehearsal\b|\bband camp\b`)},
	{"majorettes", regexp.MustCompile(`(?i)\bmajorettes?\b|\bdancers?\b|\bauxiliary\b`)},
}

// Classify derives a category from a video's title and description.
func Classify(title, description string) string {
	text := title + " " + description
	for _, r := range categoryRules {
		if r.re.MatchString(text) {
			return r.name
		}
	}
	return CategoryDefault
}
