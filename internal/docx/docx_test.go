package docx

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/jmylchreest/pagemark/internal/logging"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"`

func buildDocx(t *testing.T, body string, extra map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		partDocument:          `<?xml version="1.0" encoding="UTF-8"?><w:document ` + wordNS + `><w:body>` + body + `</w:body></w:document>`,
	}
	for k, v := range extra {
		files[k] = v
	}
	for name, content := range files {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func para(style, text string) string {
	ppr := ""
	if style != "" {
		ppr = `<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`
	}
	return `<w:p>` + ppr + `<w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p>`
}

func listItem(numID string, ilvl, text string) string {
	return `<w:p><w:pPr><w:numPr><w:ilvl w:val="` + ilvl + `"/><w:numId w:val="` + numID + `"/></w:numPr></w:pPr><w:r><w:t>` + text + `</w:t></w:r></w:p>`
}

const numberingXML = `<?xml version="1.0"?><w:numbering ` + wordNS + `>
<w:abstractNum w:abstractNumId="0"><w:lvl w:ilvl="0"><w:numFmt w:val="bullet"/></w:lvl><w:lvl w:ilvl="1"><w:numFmt w:val="bullet"/></w:lvl></w:abstractNum>
<w:abstractNum w:abstractNumId="1"><w:lvl w:ilvl="0"><w:numFmt w:val="decimal"/></w:lvl></w:abstractNum>
<w:num w:numId="1"><w:abstractNumId w:val="0"/></w:num>
<w:num w:numId="2"><w:abstractNumId w:val="1"/></w:num>
</w:numbering>`

func convert(t *testing.T, data []byte) string {
	t.Helper()
	res, err := NewConverter(logging.Discard()).Convert(data)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	return res.Markdown
}

// ========================================
// Structure Tests
// ========================================

func TestConvert_HeadingsAndParagraphs(t *testing.T) {
	data := buildDocx(t, para("Title", "Annual Report")+para("Heading2", "Summary")+para("", "Revenue grew &amp; costs fell."), nil)
	md := convert(t, data)

	for _, want := range []string{"# Annual Report", "## Summary", "Revenue grew & costs fell."} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestConvert_LocalizedHeadingStyle(t *testing.T) {
	styles := `<?xml version="1.0"?><w:styles ` + wordNS + `><w:style w:styleId="berschrift1"><w:name w:val="heading 1"/></w:style></w:styles>`
	md := convert(t, buildDocx(t, para("berschrift1", "Einleitung"), map[string]string{partStyles: styles}))
	if !strings.HasPrefix(md, "# Einleitung") {
		t.Errorf("markdown = %q, want ATX heading", md)
	}
}

func TestConvert_RunFormatting(t *testing.T) {
	body := `<w:p>
<w:r><w:t xml:space="preserve">plain </w:t></w:r>
<w:r><w:rPr><w:b/></w:rPr><w:t>bold</w:t></w:r>
<w:r><w:t xml:space="preserve"> and </w:t></w:r>
<w:r><w:rPr><w:i/></w:rPr><w:t>italic</w:t></w:r>
<w:r><w:rPr><w:b w:val="0"/></w:rPr><w:t xml:space="preserve"> off</w:t></w:r>
</w:p>`
	md := convert(t, buildDocx(t, body, nil))
	if !strings.Contains(md, "**bold**") || !strings.Contains(md, "*italic*") {
		t.Errorf("markdown = %q, want emphasis", md)
	}
	if strings.Contains(md, "**off") || strings.Contains(md, "** off") {
		t.Errorf("w:val=0 should disable bold: %q", md)
	}
}

func TestConvert_Lists(t *testing.T) {
	body := listItem("1", "0", "apples") + listItem("1", "1", "green") + listItem("1", "0", "pears") +
		para("", "between") +
		listItem("2", "0", "first") + listItem("2", "0", "second")
	html, _, err := ToHTML(buildDocx(t, body, map[string]string{partNumbering: numberingXML}))
	if err != nil {
		t.Fatal(err)
	}
	wantHTML := "<ul><li>apples<ul><li>green</li></ul></li><li>pears</li></ul><p>between</p><ol><li>first</li><li>second</li></ol>"
	if html != wantHTML {
		t.Errorf("html =\n%s\nwant\n%s", html, wantHTML)
	}

	md := convert(t, buildDocx(t, body, map[string]string{partNumbering: numberingXML}))
	for _, want := range []string{"- apples", "- green", "- pears", "1. first", "2. second"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestConvert_Table(t *testing.T) {
	cell := func(s string) string { return `<w:tc><w:tcPr/>` + para("", s) + `</w:tc>` }
	body := `<w:tbl><w:tblPr/>` +
		`<w:tr>` + cell("Name") + cell("Qty") + `</w:tr>` +
		`<w:tr>` + cell("Bolts") + cell("12") + `</w:tr>` +
		`</w:tbl>`
	md := convert(t, buildDocx(t, body, nil))
	for _, want := range []string{"| Name", "| Bolts", "12"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestConvert_HyperlinkAndBreak(t *testing.T) {
	rels := `<?xml version="1.0"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId5" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink" Target="https://example.com/docs" TargetMode="External"/>
</Relationships>`
	body := `<w:p><w:hyperlink r:id="rId5"><w:r><w:t>the docs</w:t></w:r></w:hyperlink><w:r><w:br/><w:t>next line</w:t></w:r></w:p>`
	html, _, err := ToHTML(buildDocx(t, body, map[string]string{partRels: rels}))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, `<a href="https://example.com/docs">the docs</a>`) {
		t.Errorf("html = %q, want link", html)
	}
	if !strings.Contains(html, "<br>next line") {
		t.Errorf("html = %q, want line break", html)
	}
}

func TestConvert_ImagesReported(t *testing.T) {
	rels := `<?xml version="1.0"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId9" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.png"/>
</Relationships>`
	body := `<w:p><w:r><w:drawing><a:graphic><a:graphicData><a:blip r:embed="rId9"/></a:graphicData></a:graphic></w:drawing></w:r></w:p>` + para("", "caption")
	res, err := NewConverter(logging.Discard()).Convert(buildDocx(t, body, map[string]string{partRels: rels}))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Messages) != 1 || res.Messages[0] != "skipped embedded image image1.png" {
		t.Errorf("Messages = %v", res.Messages)
	}
	if res.Markdown != "caption" {
		t.Errorf("Markdown = %q, want caption only", res.Markdown)
	}
}

func TestConvert_EmptyDocument(t *testing.T) {
	res, err := NewConverter(logging.Discard()).Convert(buildDocx(t, "", nil))
	if err != nil {
		t.Fatal(err)
	}
	if res.Markdown != "" || res.Messages == nil {
		t.Errorf("result = %+v, want empty markdown and non-nil messages", res)
	}
}

// ========================================
// Error Tests
// ========================================

func TestConvert_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"not a zip", []byte("plain text")},
		{"missing document part", func() []byte {
			var buf bytes.Buffer
			zw := zip.NewWriter(&buf)
			_, _ = zw.Create("word/other.xml")
			_ = zw.Close()
			return buf.Bytes()
		}()},
		{"malformed xml", buildDocx(t, "<w:p><w:r>", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConverter(logging.Discard()).Convert(tt.data)
			if !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("Convert() error = %v, want ErrInvalidDocument", err)
			}
		})
	}
}

func TestHeadingLevelFromName(t *testing.T) {
	tests := map[string]int{
		"title": 1, "subtitle": 2, "heading 1": 1, "heading3": 3, "heading 9": 6,
		"normal": 0, "heading": 0, "headingx": 0, "": 0,
	}
	for name, want := range tests {
		if got := headingLevelFromName(name); got != want {
			t.Errorf("headingLevelFromName(%q) = %d, want %d", name, got, want)
		}
	}
}
