// Package docx converts Word documents to Markdown. The document body is
// walked into HTML, which html-to-markdown then renders.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrInvalidDocument is returned for inputs that are not readable DOCX archives.
var ErrInvalidDocument = errors.New("invalid docx document")

// maxPartBytes caps the decompressed size of a single archive part.
const maxPartBytes = 256 * 1024 * 1024

const (
	partDocument  = "word/document.xml"
	partRels      = "word/_rels/document.xml.rels"
	partNumbering = "word/numbering.xml"
	partStyles    = "word/styles.xml"
)

// archive is an opened DOCX package.
type archive struct {
	files map[string]*zip.File

	rels      map[string]relationship
	numbering numbering
	styles    map[string]string // styleId -> lowercased style name
}

type relationship struct {
	Target   string
	External bool
}

func openArchive(data []byte) (*archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	a := &archive{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		a.files[f.Name] = f
	}
	if a.files[partDocument] == nil {
		return nil, fmt.Errorf("%w: %s not found", ErrInvalidDocument, partDocument)
	}

	if raw, err := a.read(partRels); err == nil && raw != nil {
		a.rels = parseRels(raw)
	}
	if raw, err := a.read(partNumbering); err == nil && raw != nil {
		a.numbering = parseNumbering(raw)
	}
	if raw, err := a.read(partStyles); err == nil && raw != nil {
		a.styles = parseStyles(raw)
	}
	return a, nil
}

// read returns the contents of a part, or nil when it does not exist.
func (a *archive) read(name string) ([]byte, error) {
	f := a.files[name]
	if f == nil {
		return nil, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(io.LimitReader(rc, maxPartBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if len(data) > maxPartBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidDocument, name, maxPartBytes)
	}
	return data, nil
}

// mediaName resolves an image relationship to its file name for messages.
func (a *archive) mediaName(relID string) string {
	rel, ok := a.rels[relID]
	if !ok || rel.External {
		return ""
	}
	return path.Base(rel.Target)
}

// ========================================
// Relationships
// ========================================

type xmlRelationships struct {
	Rels []struct {
		ID         string `xml:"Id,attr"`
		Target     string `xml:"Target,attr"`
		TargetMode string `xml:"TargetMode,attr"`
	} `xml:"Relationship"`
}

func parseRels(data []byte) map[string]relationship {
	var rels xmlRelationships
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil
	}
	out := make(map[string]relationship, len(rels.Rels))
	for _, r := range rels.Rels {
		out[r.ID] = relationship{Target: r.Target, External: strings.EqualFold(r.TargetMode, "External")}
	}
	return out
}

// ========================================
// Numbering
// ========================================

// numbering maps numId to the list format of each indentation level.
type numbering struct {
	formats map[string]map[int]string
}

type xmlNumbering struct {
	AbstractNums []struct {
		ID     string `xml:"abstractNumId,attr"`
		Levels []struct {
			Ilvl   int `xml:"ilvl,attr"`
			NumFmt struct {
				Val string `xml:"val,attr"`
			} `xml:"numFmt"`
		} `xml:"lvl"`
	} `xml:"abstractNum"`
	Nums []struct {
		ID       string `xml:"numId,attr"`
		Abstract struct {
			Val string `xml:"val,attr"`
		} `xml:"abstractNumId"`
	} `xml:"num"`
}

func parseNumbering(data []byte) numbering {
	var doc xmlNumbering
	if err := xml.Unmarshal(data, &doc); err != nil {
		return numbering{}
	}
	abstract := make(map[string]map[int]string, len(doc.AbstractNums))
	for _, an := range doc.AbstractNums {
		levels := make(map[int]string, len(an.Levels))
		for _, lvl := range an.Levels {
			levels[lvl.Ilvl] = lvl.NumFmt.Val
		}
		abstract[an.ID] = levels
	}
	n := numbering{formats: make(map[string]map[int]string, len(doc.Nums))}
	for _, num := range doc.Nums {
		n.formats[num.ID] = abstract[num.Abstract.Val]
	}
	return n
}

// ordered reports whether the list level renders with numbers. Unknown
// lists default to bullets.
func (n numbering) ordered(numID string, ilvl int) bool {
	levels := n.formats[numID]
	if levels == nil {
		return false
	}
	switch levels[ilvl] {
	case "", "bullet", "none":
		return false
	default:
		return true
	}
}

// ========================================
// Styles
// ========================================

type xmlStyles struct {
	Styles []struct {
		ID   string `xml:"styleId,attr"`
		Name struct {
			Val string `xml:"val,attr"`
		} `xml:"name"`
	} `xml:"style"`
}

func parseStyles(data []byte) map[string]string {
	var doc xmlStyles
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil
	}
	out := make(map[string]string, len(doc.Styles))
	for _, s := range doc.Styles {
		out[s.ID] = strings.ToLower(s.Name.Val)
	}
	return out
}

// headingLevel returns 1-6 for heading and title styles, 0 otherwise.
func (a *archive) headingLevel(styleID string) int {
	if styleID == "" {
		return 0
	}
	if lvl := headingLevelFromName(strings.ToLower(styleID)); lvl > 0 {
		return lvl
	}
	return headingLevelFromName(a.styles[styleID])
}

func headingLevelFromName(name string) int {
	name = strings.ReplaceAll(name, " ", "")
	switch {
	case name == "title":
		return 1
	case name == "subtitle":
		return 2
	case strings.HasPrefix(name, "heading") && len(name) == len("heading")+1:
		d := name[len(name)-1]
		if d >= '1' && d <= '9' {
			return min(int(d-'0'), 6)
		}
	}
	return 0
}
