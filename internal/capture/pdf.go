package capture

import (
	"context"
	"fmt"

	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

// Page margins in inches
const (
	pdfMarginVertical   = 0.4
	pdfMarginHorizontal = 0.25
)

// pageBreakCSS keeps blocks and headings together when printing screen media
const pageBreakCSS = `
p, li, blockquote, h1, h2, h3, h4, h5, h6 {
	break-inside: avoid;
}
h1, h2, h3, h4, h5, h6 {
	break-after: avoid;
}
p {
	widows: 3;
	orphans: 3;
}
`

// flattenFixedJS turns fixed and sticky elements static so they do not
// repeat on every printed page
const flattenFixedJS = `(() => {
	let count = 0;
	document.querySelectorAll('*').forEach(el => {
		const computed = window.getComputedStyle(el);
		if (computed.visibility === 'hidden' || computed.display === 'none') {
			return;
		}
		if (computed.position === 'fixed' || computed.position === 'sticky') {
			el.dataset.originalPosition = computed.position;
			el.style.position = 'static';
			el.style.top = 'auto';
			el.style.bottom = 'auto';
			el.style.left = 'auto';
			el.style.right = 'auto';
			count++;
		}
	});
	return count;
})()`

func injectStyleJS(css string) string {
	return fmt.Sprintf(`(() => {
	const style = document.createElement('style');
	style.textContent = %s;
	(document.head || document.documentElement).appendChild(style);
	return true;
})()`, jsString(css))
}

// PrintOptionsFor converts request PDF options to print options.
// Explicit width and height win over the named paper size.
func PrintOptionsFor(opts types.PDFOptions) PrintOptions {
	width, height, ok := types.PaperSize(opts.Paper)
	if !ok {
		width, height, _ = types.PaperSize(types.DefaultPaper)
	}
	if opts.Width > 0 && opts.Height > 0 {
		width, height = opts.Width, opts.Height
	}
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}
	return PrintOptions{
		PaperWidth:      width,
		PaperHeight:     height,
		Landscape:       opts.Landscape,
		Scale:           scale,
		PrintBackground: opts.PrintBackground,
		MarginTop:       pdfMarginVertical,
		MarginBottom:    pdfMarginVertical,
		MarginLeft:      pdfMarginHorizontal,
		MarginRight:     pdfMarginHorizontal,
	}
}

// renderPDF prepares media emulation and styles, then prints
func renderPDF(ctx context.Context, tab Tab, opts types.PDFOptions) ([]byte, error) {
	if opts.MediaScreen {
		if err := tab.EmulateMedia(ctx, "screen"); err != nil {
			return nil, protocolErr("emulate screen media", err)
		}
		css := pageBreakCSS
		if opts.CSS != "" {
			css += "\n" + opts.CSS
		}
		if err := tab.Evaluate(ctx, injectStyleJS(css), nil); err != nil {
			return nil, protocolErr("inject pdf css", err)
		}
		if err := tab.Evaluate(ctx, flattenFixedJS, nil); err != nil {
			return nil, protocolErr("flatten fixed elements", err)
		}
	} else {
		if err := tab.EmulateMedia(ctx, "print"); err != nil {
			return nil, protocolErr("emulate print media", err)
		}
		if opts.CSS != "" {
			if err := tab.Evaluate(ctx, injectStyleJS(opts.CSS), nil); err != nil {
				return nil, protocolErr("inject pdf css", err)
			}
		}
	}

	data, err := tab.PrintToPDF(ctx, PrintOptionsFor(opts))
	if err != nil {
		return nil, protocolErr("print to pdf", err)
	}
	return data, nil
}
