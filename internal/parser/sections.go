package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"sec-rag/internal/models"
)

type itemPattern struct {
	item models.TenKItem
	re   *regexp.Regexp
}

var (
	spacesRe     = regexp.MustCompile(models.SpacesRegex)
	blankLinesRe = regexp.MustCompile(models.BlankLinesRegex)
	pageNumberRe = regexp.MustCompile(models.PageNumberRegex)
	tocRe        = regexp.MustCompile(models.TableOfContents)

	itemPatterns = buildItemPatterns()

	quoteReplacer = strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
		"—", "-", "–", "-",
	)
)

func buildItemPatterns() []itemPattern {
	patterns := make([]itemPattern, 0, len(models.TenKItems))
	for _, item := range models.TenKItems {
		// the trailing \b keeps "Item 1" from matching the start of "Item 1A" or "Item 10"
		num := `\b` + regexp.QuoteMeta(item.Number) + `\b`
		expr := fmt.Sprintf(models.ItemHeaderRegex, num, regexp.QuoteMeta(item.Title))
		patterns = append(patterns, itemPattern{item: item, re: regexp.MustCompile(expr)})
	}
	return patterns
}

// CleanText normalizes whitespace, strips page numbers and "Table of Contents"
// banners, and folds typographic quotes and dashes to ASCII.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = spacesRe.ReplaceAllString(text, " ")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	text = pageNumberRe.ReplaceAllString(text, "\n")
	text = tocRe.ReplaceAllString(text, "")
	text = quoteReplacer.Replace(text)
	return strings.TrimSpace(text)
}

type headerMatch struct {
	item  models.TenKItem
	start int
}

// ParseSections splits cleaned filing text into Item sections, in document order.
//
// A section runs from its header to the next header of any other item. A
// header counts only when that span is longer than MinSectionLength, so
// table-of-contents entries are passed over in favour of the section body.
// The first such header of each item wins.
func ParseSections(text string) []models.Section {
	var matches []headerMatch
	for _, p := range itemPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			matches = append(matches, headerMatch{item: p.item, start: loc[0]})
		}
	}
	if len(matches) == 0 {
		return nil
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	seen := make(map[string]bool)
	var sections []models.Section
	for i, m := range matches {
		if seen[m.item.Number] {
			continue
		}
		end := len(text)
		for _, later := range matches[i+1:] {
			if later.item.Number != m.item.Number {
				end = later.start
				break
			}
		}
		content := strings.TrimSpace(text[m.start:end])
		if len(content) <= models.MinSectionLength {
			continue
		}
		seen[m.item.Number] = true
		sections = append(sections, models.Section{
			ItemNumber: m.item.Number,
			ItemTitle:  m.item.Title,
			Content:    content,
			Start:      m.start,
			End:        end,
		})
	}
	return sections
}

// SectionSummary maps "Item 1A (Risk Factors)" to its length in characters.
func SectionSummary(sections []models.Section) map[string]int {
	summary := make(map[string]int, len(sections))
	for _, s := range sections {
		summary[fmt.Sprintf("Item %s (%s)", s.ItemNumber, s.ItemTitle)] = len(s.Content)
	}
	return summary
}

// SelectSections keeps only the requested item numbers.
func SelectSections(sections []models.Section, items ...string) []models.Section {
	want := make(map[string]bool, len(items))
	for _, it := range items {
		want[strings.ToUpper(strings.TrimSpace(it))] = true
	}
	var out []models.Section
	for _, s := range sections {
		if want[s.ItemNumber] {
			out = append(out, s)
		}
	}
	return out
}
