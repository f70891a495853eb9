// Package render rasterizes document pages into PNG data URLs for the
// extraction pipeline.
package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"

	"github.com/jmylchreest/pagemark/internal/constants"
)

// Kind is the broad type of an input document.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindDOCX    Kind = "docx"
	KindImage   Kind = "image"
	KindUnknown Kind = ""
)

var (
	ErrUnsupported = errors.New("unsupported file type")
	ErrNoPages     = errors.New("document has no pages")
)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

var imageMIMEs = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// Options controls PDF rasterization.
type Options struct {
	// DPI defaults to constants.DefaultRenderDPI and is capped at MaxRenderDPI.
	DPI float64

	// MaxPages defaults to constants.MaxRenderPages.
	MaxPages int
}

func (o Options) withDefaults() Options {
	if o.DPI <= 0 {
		o.DPI = constants.DefaultRenderDPI
	}
	if o.DPI > constants.MaxRenderDPI {
		o.DPI = constants.MaxRenderDPI
	}
	if o.MaxPages <= 0 {
		o.MaxPages = constants.MaxRenderPages
	}
	return o
}

// DetectKind classifies a file by its extension.
func DetectKind(name string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case ext == ".pdf":
		return KindPDF
	case ext == ".docx":
		return KindDOCX
	case imageMIMEs[ext] != "":
		return KindImage
	default:
		return KindUnknown
	}
}

// SniffKind classifies content by its magic bytes, for files whose
// extension is missing or wrong.
func SniffKind(data []byte) Kind {
	m := mimetype.Detect(data)
	switch {
	case m.Is("application/pdf"):
		return KindPDF
	case m.Is(docxMIME):
		return KindDOCX
	}
	for _, mime := range imageMIMEs {
		if m.Is(mime) {
			return KindImage
		}
	}
	return KindUnknown
}

// PageCount returns the number of pages in a PDF.
func PageCount(data []byte) (int, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer func() { _ = doc.Close() }()
	return doc.NumPage(), nil
}

// RenderPDF rasterizes up to opts.MaxPages pages of a PDF, in order, as PNG
// data URLs.
func RenderPDF(ctx context.Context, data []byte, opts Options) ([]string, error) {
	opts = opts.withDefaults()

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer func() { _ = doc.Close() }()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, ErrNoPages
	}
	pageCount = min(pageCount, opts.MaxPages)

	images := make([]string, 0, pageCount)
	for n := 0; n < pageCount; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(n, opts.DPI)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", n+1, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", n+1, err)
		}
		images = append(images, DataURL("image/png", buf.Bytes()))
	}
	return images, nil
}

// ImageFileToDataURL reads an image file and encodes it as a data URL. The
// MIME type comes from the content, falling back to the extension.
func ImageFileToDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return ImageToDataURL(filepath.Base(path), data)
}

// ImageToDataURL encodes image bytes as a data URL.
func ImageToDataURL(name string, data []byte) (string, error) {
	detected := mimetype.Detect(data)
	for _, mime := range imageMIMEs {
		if detected.Is(mime) {
			return DataURL(mime, data), nil
		}
	}
	if mime := imageMIMEs[strings.ToLower(filepath.Ext(name))]; mime != "" && len(data) > 0 {
		return DataURL(mime, data), nil
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrUnsupported, name, detected.String())
}

// DataURL builds a base64 data URL.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
