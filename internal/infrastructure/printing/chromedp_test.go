package printing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/municipal/backoffice/internal/infrastructure/config"
)

func TestPrintParams(t *testing.T) {
	tests := []struct {
		name         string
		req          RenderRequest
		width        float64
		marginBottom float64
		landscape    bool
		footer       bool
	}{
		{
			name:         "A4 portrait",
			req:          RenderRequest{PaperSize: PaperSizeA4, Margins: UniformMargins(12)},
			width:        210,
			marginBottom: 12,
		},
		{
			name:      "A5 landscape",
			req:       RenderRequest{PaperSize: PaperSizeA5, Landscape: true},
			width:     148,
			landscape: true,
		},
		{
			name:         "footer widens a narrow bottom margin",
			req:          RenderRequest{PaperSize: PaperSizeLetter, Margins: UniformMargins(4), FooterHTML: `<span class="pageNumber"></span>`},
			width:        215.9,
			marginBottom: minFooterMarginMM,
			footer:       true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := printParams(&tt.req)
			assert.InDelta(t, tt.width/mmPerInch, p.PaperWidth, 1e-9)
			assert.InDelta(t, tt.marginBottom/mmPerInch, p.MarginBottom, 1e-9)
			assert.Equal(t, tt.landscape, p.Landscape)
			assert.Equal(t, tt.footer, p.DisplayHeaderFooter)
			assert.True(t, p.PrintBackground)
		})
	}
}

func TestWrapDocument(t *testing.T) {
	doc := wrapDocument(&RenderRequest{HTML: "<p>Bordro</p>", Title: "Mart & Nisan"})
	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
	assert.Contains(t, doc, "<title>Mart &amp; Nisan</title>")
	assert.Contains(t, doc, "<body><p>Bordro</p></body>")

	full := "<html><body>x</body></html>"
	assert.Equal(t, full, wrapDocument(&RenderRequest{HTML: full, Title: "ignored"}))
}

func TestPaperSize(t *testing.T) {
	assert.True(t, PaperSizeLetter.IsValid())
	assert.False(t, PaperSize("B3").IsValid())

	w, h := PaperSize("").Dimensions()
	assert.Equal(t, 210.0, w)
	assert.Equal(t, 297.0, h)
}

func TestCountPages(t *testing.T) {
	assert.Equal(t, 2, countPages([]byte("/Type /Pages /Type /Page x /Type /Page y")))
	assert.Equal(t, 1, countPages([]byte("%PDF-1.4")))
}

func TestRenderRequest_Validate(t *testing.T) {
	var nilReq *RenderRequest
	assert.ErrorIs(t, nilReq.validate(), ErrEmptyHTML)
	assert.ErrorIs(t, (&RenderRequest{HTML: " \n "}).validate(), ErrEmptyHTML)

	err := (&RenderRequest{HTML: "<p>x</p>", PaperSize: "B3"}).validate()
	assert.ErrorIs(t, err, ErrPaperSize)
	assert.ErrorContains(t, err, `"B3"`)

	req := &RenderRequest{HTML: "<p>x</p>"}
	require.NoError(t, req.validate())
	assert.Equal(t, PaperSizeA4, req.PaperSize)
}

func TestChromedpRenderer_RejectsInvalidInput(t *testing.T) {
	r := NewChromedpRenderer(config.PrintingConfig{}, zap.NewNop())
	defer r.Close()

	_, err := r.Render(context.Background(), &RenderRequest{HTML: "  "})
	assert.ErrorIs(t, err, ErrEmptyHTML)
	_, err = r.Render(context.Background(), &RenderRequest{HTML: "<p>x</p>", PaperSize: "B3"})
	assert.ErrorIs(t, err, ErrPaperSize)
}

func TestChromedpRenderer_WaitsForFreeTab(t *testing.T) {
	r := NewChromedpRenderer(config.PrintingConfig{MaxConcurrent: 1}, zap.NewNop())
	defer r.Close()
	require.True(t, r.tabs.TryAcquire(1))
	defer r.tabs.Release(1)

	_, err := r.Render(context.Background(), &RenderRequest{HTML: "<p>x</p>", Timeout: 20 * time.Millisecond})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestDisabledRenderer(t *testing.T) {
	_, err := DisabledRenderer{}.Render(context.Background(), &RenderRequest{HTML: "<p>x</p>"})
	assert.ErrorIs(t, err, ErrDisabled)
}
