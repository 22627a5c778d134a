// Package printing renders HTML documents such as payslips to PDF.
package printing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrDisabled is returned when PDF output is not configured
	ErrDisabled  = errors.New("pdf rendering is disabled")
	ErrEmptyHTML = errors.New("html content is empty")
	ErrPaperSize = errors.New("unsupported paper size")
	ErrTimeout   = errors.New("pdf rendering timed out")
)

// PaperSize names a supported sheet format
type PaperSize string

const (
	PaperSizeA4     PaperSize = "A4"
	PaperSizeA5     PaperSize = "A5"
	PaperSizeLetter PaperSize = "LETTER"
)

// portrait width and height in millimeters
var paperSizes = map[PaperSize][2]float64{
	PaperSizeA4:     {210, 297},
	PaperSizeA5:     {148, 210},
	PaperSizeLetter: {215.9, 279.4},
}

// Dimensions returns width and height in millimeters. Unknown sizes report A4.
func (p PaperSize) Dimensions() (width, height float64) {
	d, ok := paperSizes[p]
	if !ok {
		d = paperSizes[PaperSizeA4]
	}
	return d[0], d[1]
}

func (p PaperSize) IsValid() bool {
	_, ok := paperSizes[p]
	return ok
}

// Margins in millimeters
type Margins struct {
	Top, Right, Bottom, Left float64
}

// UniformMargins returns the same margin on every side
func UniformMargins(mm float64) Margins {
	return Margins{Top: mm, Right: mm, Bottom: mm, Left: mm}
}

// RenderRequest describes one HTML page set to print
type RenderRequest struct {
	HTML      string
	PaperSize PaperSize
	Landscape bool
	Margins   Margins
	// Title is used when HTML is a fragment and has to be wrapped into a document
	Title      string
	FooterHTML string
	// Timeout overrides the renderer default
	Timeout time.Duration
}

// validate fills the default paper size and rejects requests that cannot print
func (r *RenderRequest) validate() error {
	if r == nil || strings.TrimSpace(r.HTML) == "" {
		return ErrEmptyHTML
	}
	if r.PaperSize == "" {
		r.PaperSize = PaperSizeA4
	}
	if !r.PaperSize.IsValid() {
		return fmt.Errorf("%w: %q", ErrPaperSize, r.PaperSize)
	}
	return nil
}

// PDF is a rendered document
type PDF struct {
	Data  []byte
	Pages int
	Took  time.Duration
}

// PDFRenderer turns HTML into PDF
type PDFRenderer interface {
	Render(ctx context.Context, req *RenderRequest) (*PDF, error)
	Close() error
}

// DisabledRenderer is installed when printing is turned off in configuration
type DisabledRenderer struct{}

func (DisabledRenderer) Render(context.Context, *RenderRequest) (*PDF, error) {
	return nil, ErrDisabled
}

func (DisabledRenderer) Close() error { return nil }

var _ PDFRenderer = DisabledRenderer{}
