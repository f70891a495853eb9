package docx

import (
	"fmt"
	"log/slog"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/jmylchreest/pagemark/internal/models"
)

// Converter renders DOCX archives as Markdown.
type Converter struct {
	md     *htmltomarkdown.Converter
	logger *slog.Logger
}

// NewConverter creates a converter with ATX headings, dash bullets and
// pipe tables.
func NewConverter(logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		md: htmltomarkdown.NewConverter(
			htmltomarkdown.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(
					commonmark.WithHeadingStyle(commonmark.HeadingStyleATX),
					commonmark.WithBulletListMarker("-"),
				),
				table.NewTablePlugin(),
			),
		),
		logger: logger,
	}
}

// ToHTML converts the document body to HTML and reports anything that was
// dropped along the way.
func ToHTML(data []byte) (string, []string, error) {
	a, err := openArchive(data)
	if err != nil {
		return "", nil, err
	}
	raw, err := a.read(partDocument)
	if err != nil {
		return "", nil, err
	}
	blocks, messages, err := parseBody(a, raw)
	if err != nil {
		return "", nil, err
	}
	return renderHTML(a, blocks), messages, nil
}

// Convert turns a DOCX archive into Markdown.
func (c *Converter) Convert(data []byte) (models.DocxResult, error) {
	html, messages, err := ToHTML(data)
	if err != nil {
		return models.DocxResult{}, err
	}
	md, err := c.md.ConvertString(html)
	if err != nil {
		return models.DocxResult{}, fmt.Errorf("rendering markdown: %w", err)
	}
	if messages == nil {
		messages = []string{}
	}
	c.logger.Debug("docx converted", "html_bytes", len(html), "markdown_bytes", len(md), "messages", len(messages))
	return models.DocxResult{Markdown: strings.TrimSpace(md), Messages: messages}, nil
}
