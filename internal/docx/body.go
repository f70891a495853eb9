package docx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// block is a top-level body element: a paragraph or a table.
type block struct {
	para  *paragraph
	table [][]string // rows of cell HTML
}

type paragraph struct {
	style string
	numID string
	ilvl  int
	list  bool
	runs  []run
}

type run struct {
	text   string // raw text; "\n" marks a line break
	bold   bool
	italic bool
	strike bool
	href   string
}

// walker turns document.xml tokens into blocks.
type walker struct {
	a        *archive
	dec      *xml.Decoder
	messages []string
	images   int
}

func parseBody(a *archive, data []byte) ([]block, []string, error) {
	w := &walker{a: a, dec: xml.NewDecoder(bytes.NewReader(data))}
	var blocks []block
	for {
		tok, err := w.dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "p":
			p, err := w.paragraph()
			if err != nil {
				return nil, nil, err
			}
			blocks = append(blocks, block{para: p})
		case "tbl":
			rows, err := w.table()
			if err != nil {
				return nil, nil, err
			}
			blocks = append(blocks, block{table: rows})
		}
	}
	return blocks, w.messages, nil
}

// paragraph consumes tokens up to the matching </w:p>.
func (w *walker) paragraph() (*paragraph, error) {
	p := &paragraph{}
	var cur run
	href := ""
	depth := 1
	inPPr, inRPr := false, false

	for depth > 0 {
		tok, err := w.dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: unterminated paragraph: %v", ErrInvalidDocument, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch t.Name.Local {
			case "pPr":
				inPPr = true
			case "pStyle":
				p.style = attr(t, "val")
			case "numId":
				p.numID = attr(t, "val")
				p.list = p.numID != "" && p.numID != "0"
			case "ilvl":
				p.ilvl, _ = strconv.Atoi(attr(t, "val"))
			case "hyperlink":
				if rel, ok := w.a.rels[attr(t, "id")]; ok && rel.External {
					href = rel.Target
				} else if anchor := attr(t, "anchor"); anchor != "" {
					href = "#" + anchor
				}
			case "r":
				cur = run{href: href}
			case "rPr":
				inRPr = true
			case "b":
				if inRPr {
					cur.bold = toggle(t)
				}
			case "i":
				if inRPr {
					cur.italic = toggle(t)
				}
			case "strike", "dstrike":
				if inRPr {
					cur.strike = toggle(t)
				}
			case "t":
				var text string
				if err := w.dec.DecodeElement(&text, &t); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
				}
				depth--
				p.runs = append(p.runs, withText(cur, text))
			case "tab":
				if !inPPr {
					p.runs = append(p.runs, withText(cur, "\t"))
				}
			case "br", "cr":
				if attr(t, "type") != "page" {
					p.runs = append(p.runs, withText(cur, "\n"))
				}
			case "blip", "imagedata":
				w.images++
				name := w.a.mediaName(attr(t, "embed"))
				if name == "" {
					name = w.a.mediaName(attr(t, "id"))
				}
				if name == "" {
					name = "#" + strconv.Itoa(w.images)
				}
				w.messages = append(w.messages, "skipped embedded image "+name)
			}
		case xml.EndElement:
			depth--
			switch t.Name.Local {
			case "pPr":
				inPPr = false
			case "rPr":
				inRPr = false
			case "hyperlink":
				href = ""
			}
		}
	}
	return p, nil
}

// table consumes tokens up to the matching </w:tbl>. Nested tables are
// flattened into their parent cell.
func (w *walker) table() ([][]string, error) {
	var rows [][]string
	depth := 1
	for depth > 0 {
		tok, err := w.dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: unterminated table: %v", ErrInvalidDocument, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tr":
				rows = append(rows, nil)
				depth++
			case "tc":
				if len(rows) == 0 {
					rows = append(rows, nil)
				}
				rows[len(rows)-1] = append(rows[len(rows)-1], "")
				depth++
			case "p":
				p, err := w.paragraph()
				if err != nil {
					return nil, err
				}
				appendCell(rows, inlineHTML(p.runs))
			case "tbl":
				nested, err := w.table()
				if err != nil {
					return nil, err
				}
				for _, r := range nested {
					appendCell(rows, strings.Join(r, " | "))
				}
			default:
				depth++
			}
		case xml.EndElement:
			depth--
		}
	}
	return rows, nil
}

func appendCell(rows [][]string, html string) {
	if len(rows) == 0 || len(rows[len(rows)-1]) == 0 || html == "" {
		return
	}
	row := rows[len(rows)-1]
	cell := &row[len(row)-1]
	if *cell != "" {
		*cell += "<br>"
	}
	*cell += html
}

func withText(r run, text string) run {
	r.text = text
	return r
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// toggle reads an OOXML on/off property such as <w:b/> or <w:b w:val="0"/>.
func toggle(el xml.StartElement) bool {
	switch strings.ToLower(attr(el, "val")) {
	case "0", "false", "off", "none":
		return false
	default:
		return true
	}
}
