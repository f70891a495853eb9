package docx

import (
	"html"
	"strconv"
	"strings"
)

func renderHTML(a *archive, blocks []block) string {
	var b strings.Builder
	var lists []bool // open list per level; true = ordered

	closeLists := func(level int) {
		for len(lists) > level {
			b.WriteString("</li>")
			b.WriteString(listTag(lists[len(lists)-1], true))
			lists = lists[:len(lists)-1]
		}
	}

	for _, blk := range blocks {
		if blk.table != nil {
			closeLists(0)
			writeTable(&b, blk.table)
			continue
		}
		p := blk.para
		inline := inlineHTML(p.runs)

		if p.list {
			level := max(p.ilvl, 0)
			ordered := a.numbering.ordered(p.numID, p.ilvl)
			closeLists(level + 1)
			if len(lists) == level+1 {
				if lists[level] != ordered {
					closeLists(level)
				} else {
					b.WriteString("</li>")
				}
			}
			for len(lists) < level+1 {
				lists = append(lists, ordered)
				b.WriteString(listTag(ordered, false))
				if len(lists) < level+1 {
					b.WriteString("<li>")
				}
			}
			b.WriteString("<li>")
			b.WriteString(inline)
			continue
		}

		closeLists(0)
		if strings.TrimSpace(stripTags(inline)) == "" {
			continue
		}
		if lvl := a.headingLevel(p.style); lvl > 0 {
			tag := "h" + strconv.Itoa(lvl)
			b.WriteString("<" + tag + ">" + inline + "</" + tag + ">")
			continue
		}
		b.WriteString("<p>" + inline + "</p>")
	}
	closeLists(0)
	return b.String()
}

func listTag(ordered, closing bool) string {
	tag := "ul"
	if ordered {
		tag = "ol"
	}
	if closing {
		return "</" + tag + ">"
	}
	return "<" + tag + ">"
}

func writeTable(b *strings.Builder, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	b.WriteString("<table><thead><tr>")
	for _, cell := range rows[0] {
		b.WriteString("<th>" + cell + "</th>")
	}
	b.WriteString("</tr></thead><tbody>")
	for _, row := range rows[1:] {
		b.WriteString("<tr>")
		for _, cell := range row {
			b.WriteString("<td>" + cell + "</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
}

// inlineHTML merges runs with identical formatting and renders them.
func inlineHTML(runs []run) string {
	var b strings.Builder
	for i := 0; i < len(runs); {
		r := runs[i]
		var text strings.Builder
		j := i
		for ; j < len(runs) && sameFormat(runs[j], r); j++ {
			text.WriteString(runs[j].text)
		}
		i = j

		s := html.EscapeString(text.String())
		s = strings.ReplaceAll(s, "\t", " ")
		s = strings.ReplaceAll(s, "\n", "<br>")
		if strings.TrimSpace(s) != "" {
			if r.strike {
				s = "<del>" + s + "</del>"
			}
			if r.italic {
				s = "<em>" + s + "</em>"
			}
			if r.bold {
				s = "<strong>" + s + "</strong>"
			}
		}
		if r.href != "" {
			s = `<a href="` + html.EscapeString(r.href) + `">` + s + "</a>"
		}
		b.WriteString(s)
	}
	return b.String()
}

func sameFormat(a, b run) bool {
	return a.bold == b.bold && a.italic == b.italic && a.strike == b.strike && a.href == b.href
}

// stripTags drops markup so emptiness can be tested on visible text.
func stripTags(s string) string {
	var b strings.Builder
	in := false
	for _, r := range s {
		switch {
		case r == '<':
			in = true
		case r == '>':
			in = false
		case !in:
			b.WriteRune(r)
		}
	}
	return b.String()
}
