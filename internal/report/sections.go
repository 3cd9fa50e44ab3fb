package report

import (
	"regexp"
	"strings"
)

// Section is the slice of report text about one species.
type Section struct {
	Species string `json:"species"`
	Body    string `json:"body"`
}

// speciesAliases maps the names anglers and models use to a canonical name.
var speciesAliases = map[string]string{
	"muskellunge":     "Muskellunge",
	"musky":           "Muskellunge",
	"muskie":          "Muskellunge",
	"walleye":         "Walleye",
	"smallmouth bass": "Smallmouth Bass",
	"smallmouth":      "Smallmouth Bass",
	"largemouth bass": "Largemouth Bass",
	"largemouth":      "Largemouth Bass",
	"yellow perch":    "Yellow Perch",
	"perch":           "Yellow Perch",
	"northern pike":   "Northern Pike",
	"pike":            "Northern Pike",
}

// A heading line is a markdown heading, a bolded line, or "Name:" at the
// start of a line.
var (
	markdownHeading = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*#*$`)
	boldHeading     = regexp.MustCompile(`^\*\*(.+?)\*\*:?\s*$`)
	labelHeading    = regexp.MustCompile(`^([A-Za-z][A-Za-z ]{2,30}):\s*(.*)$`)
)

// Sections splits free report text into per-species sections, in the order
// they appear. Text before the first species heading and sections with an
// empty body are dropped. A species that appears twice keeps both bodies
// joined. This is best effort; unrecognized layouts simply yield nothing.
func Sections(text string) []Section {
	var (
		out     []Section
		index   = map[string]int{}
		current = -1
		body    []string
	)

	flush := func() {
		if current < 0 {
			return
		}
		b := strings.TrimSpace(strings.Join(body, "\n"))
		if b != "" {
			if out[current].Body != "" {
				out[current].Body += "\n\n"
			}
			out[current].Body += b
		}
		body = body[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		species, rest, heading := speciesHeading(trimmed)
		if !heading {
			// Any other heading ends the current species.
			if markdownHeading.MatchString(trimmed) {
				flush()
				current = -1
				continue
			}
			if current >= 0 {
				body = append(body, trimmed)
			}
			continue
		}

		flush()
		i, seen := index[species]
		if !seen {
			i = len(out)
			index[species] = i
			out = append(out, Section{Species: species})
		}
		current = i
		if rest != "" {
			body = append(body, rest)
		}
	}
	flush()

	result := out[:0]
	for _, s := range out {
		if s.Body != "" {
			result = append(result, s)
		}
	}
	return result
}

// speciesHeading reports whether line opens a species section. rest is any
// text following an inline "Name:" label.
func speciesHeading(line string) (species, rest string, ok bool) {
	if m := markdownHeading.FindStringSubmatch(line); m != nil {
		species, ok = canonicalSpecies(m[1])
		return species, "", ok
	}
	if m := boldHeading.FindStringSubmatch(line); m != nil {
		species, ok = canonicalSpecies(m[1])
		return species, "", ok
	}
	if m := labelHeading.FindStringSubmatch(line); m != nil {
		species, ok = canonicalSpecies(m[1])
		return species, strings.TrimSpace(m[2]), ok
	}
	return "", "", false
}

func canonicalSpecies(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(strings.Trim(name, "*:")))
	species, ok := speciesAliases[key]
	return species, ok
}
