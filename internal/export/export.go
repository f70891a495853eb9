// Package export assembles extracted pages into a single Markdown document.
package export

import (
	"fmt"
	"strings"

	"github.com/jmylchreest/pagemark/internal/models"
)

// Options controls assembly.
type Options struct {
	// SuccessOnly drops failed and skipped pages instead of writing placeholders.
	SuccessOnly bool

	// Separators adds a <!-- page N --> comment before each page.
	Separators bool
}

// Stats summarizes what went into an assembled document.
type Stats struct {
	Included int
	Failed   int
	Skipped  int
	Pending  int
}

// Assemble joins results in order. Pages are separated by a blank line.
func Assemble(results []models.PageResult, opts Options) (string, Stats) {
	var parts []string
	var stats Stats

	for _, r := range results {
		var body string
		switch r.Status {
		case models.PageStatusSuccess:
			stats.Included++
			body = strings.TrimSpace(r.Markdown)
		case models.PageStatusError:
			stats.Failed++
			if opts.SuccessOnly {
				continue
			}
			msg := r.ErrorMessage
			if msg == "" {
				msg = "extraction failed"
			}
			body = fmt.Sprintf("> **Page %d could not be extracted:** %s", r.PageNumber, flatten(msg))
		case models.PageStatusSkipped:
			stats.Skipped++
			if opts.SuccessOnly {
				continue
			}
			body = fmt.Sprintf("> *Page %d was skipped.*", r.PageNumber)
		default:
			stats.Pending++
			continue
		}

		if opts.Separators {
			body = fmt.Sprintf("<!-- page %d -->\n\n%s", r.PageNumber, body)
		}
		parts = append(parts, body)
	}

	if len(parts) == 0 {
		return "", stats
	}
	return strings.Join(parts, "\n\n") + "\n", stats
}

// OutputName returns the Markdown file name for a source document.
func OutputName(fileName string) string {
	base := StripExtension(fileName)
	if base == "" {
		base = "document"
	}
	return base + ".md"
}

// StripExtension removes the last extension only: "a.b.pdf" becomes "a.b".
// A trailing dot is not an extension.
func StripExtension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return name
	}
	return name[:i]
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
