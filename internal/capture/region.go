package capture

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// markerSettleDelay gives the browser time to lay out the marker div
const markerSettleDelay = 300 * time.Millisecond

// RegionBox is the union of selected element boxes, inflated by padding.
// Coordinates are document relative.
type RegionBox struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains reports whether r lies fully inside the box
func (b RegionBox) Contains(r Rect) bool {
	return r.Top >= b.Top && r.Left >= b.Left &&
		r.Bottom() <= b.Top+b.Height && r.Right() <= b.Left+b.Width
}

// UnionBox computes the bounding box of rects and grows it by padding on
// every side. It returns false for an empty input.
func UnionBox(rects []Rect, padding int) (RegionBox, bool) {
	if len(rects) == 0 {
		return RegionBox{}, false
	}
	top, left := math.Inf(1), math.Inf(1)
	bottom, right := math.Inf(-1), math.Inf(-1)
	for _, r := range rects {
		top = math.Min(top, r.Top)
		left = math.Min(left, r.Left)
		bottom = math.Max(bottom, r.Bottom())
		right = math.Max(right, r.Right())
	}
	p := float64(padding)
	top, left = top-p, left-p
	bottom, right = bottom+p, right+p
	return RegionBox{Top: top, Left: left, Width: right - left, Height: bottom - top}, true
}

// Region is a staged selection ready to be captured
type Region struct {
	Box       RegionBox
	MarkerID  string
	Selectors []string // every selector that contributed, in request order
}

// Selector returns the CSS selector of the marker element
func (r *Region) Selector() string {
	return "#" + r.MarkerID
}

// RegionSelector turns selectors into a single capturable marker element
type RegionSelector struct {
	tab           Tab
	markerClasses []string
	markerIDs     []string
}

// NewRegionSelector works on tab
func NewRegionSelector(tab Tab) *RegionSelector {
	return &RegionSelector{tab: tab}
}

// Select resolves the CSS and JavaScript selectors, unions their boxes and
// appends an absolutely positioned marker div covering the result.
// A selector that matches nothing yields SelectorNotFoundError.
func (s *RegionSelector) Select(ctx context.Context, selectors, selectorsAll, jsSelectors, jsSelectorsAll []string, padding int) (*Region, error) {
	first := append([]string(nil), selectors...)
	all := append([]string(nil), selectorsAll...)
	labels := make(map[string]string) // marker class selector -> predicate

	if len(jsSelectors) > 0 || len(jsSelectorsAll) > 0 {
		extraFirst, extraAll, err := s.markJSSelectors(ctx, jsSelectors, jsSelectorsAll)
		if err != nil {
			return nil, err
		}
		for i, sel := range extraFirst {
			labels[sel] = jsSelectors[i]
		}
		for i, sel := range extraAll {
			labels[sel] = jsSelectorsAll[i]
		}
		first = append(first, extraFirst...)
		all = append(all, extraAll...)
	}

	var rects []Rect
	resolve := func(sel string, matchAll bool) error {
		found, err := s.tab.ElementRects(ctx, sel, matchAll)
		if err != nil {
			return protocolErr("resolve selector "+sel, err)
		}
		if len(found) == 0 {
			if pred, ok := labels[sel]; ok {
				sel = pred
			}
			return &SelectorNotFoundError{Selector: sel}
		}
		rects = append(rects, found...)
		return nil
	}
	for _, sel := range first {
		if err := resolve(sel, false); err != nil {
			return nil, err
		}
	}
	for _, sel := range all {
		if err := resolve(sel, true); err != nil {
			return nil, err
		}
	}

	box, ok := UnionBox(rects, padding)
	if !ok {
		return nil, &SelectorNotFoundError{Selector: strings.Join(append(first, all...), ", ")}
	}

	markerID := "shot-scraper-" + randomHex(8)
	if err := s.tab.Evaluate(ctx, markerJS(markerID, box), nil); err != nil {
		return nil, protocolErr("insert region marker", err)
	}
	s.markerIDs = append(s.markerIDs, markerID)
	if err := sleepCtx(ctx, markerSettleDelay); err != nil {
		return nil, err
	}

	named := make([]string, 0, len(selectors)+len(selectorsAll)+len(jsSelectors)+len(jsSelectorsAll))
	named = append(named, selectors...)
	named = append(named, selectorsAll...)
	named = append(named, jsSelectors...)
	named = append(named, jsSelectorsAll...)

	return &Region{Box: box, MarkerID: markerID, Selectors: named}, nil
}

// markJSSelectors tags elements matching JavaScript predicates with unique
// classes and returns the CSS selectors for them.
func (s *RegionSelector) markJSSelectors(ctx context.Context, jsSelectors, jsSelectorsAll []string) ([]string, []string, error) {
	var blocks []string
	var first, all []string

	for _, pred := range jsSelectors {
		class := "js-selector-" + randomHex(16)
		s.markerClasses = append(s.markerClasses, class)
		first = append(first, "."+class)
		blocks = append(blocks, fmt.Sprintf(
			"{ const el = Array.from(document.getElementsByTagName('*')).find(el => %s); if (el) el.classList.add(%s); }",
			pred, jsString(class)))
	}
	for _, pred := range jsSelectorsAll {
		class := "js-selector-all-" + randomHex(16)
		s.markerClasses = append(s.markerClasses, class)
		all = append(all, "."+class)
		blocks = append(blocks, fmt.Sprintf(
			"Array.from(document.getElementsByTagName('*')).filter(el => %s).forEach(el => el.classList.add(%s));",
			pred, jsString(class)))
	}

	script := "(() => {\n" + strings.Join(blocks, "\n") + "\n})()"
	if err := s.tab.Evaluate(ctx, script, nil); err != nil {
		return nil, nil, protocolErr("evaluate js selectors", err)
	}
	return first, all, nil
}

// Cleanup removes marker divs and classes added by Select. Errors are
// ignored: the tab is either reused for another navigation or closed.
func (s *RegionSelector) Cleanup(ctx context.Context) {
	if len(s.markerIDs) == 0 && len(s.markerClasses) == 0 {
		return
	}
	ids, _ := json.Marshal(s.markerIDs)
	classes, _ := json.Marshal(s.markerClasses)
	script := fmt.Sprintf(`(() => {
	%s.forEach(id => { const el = document.getElementById(id); if (el) el.remove(); });
	%s.forEach(c => document.querySelectorAll('.' + c).forEach(el => el.classList.remove(c)));
})()`, ids, classes)
	_ = s.tab.Evaluate(ctx, script, nil)
	s.markerIDs = nil
	s.markerClasses = nil
}

func markerJS(id string, box RegionBox) string {
	return fmt.Sprintf(`(() => {
	const div = document.createElement('div');
	div.style.position = 'absolute';
	div.style.top = '%[2]spx';
	div.style.left = '%[3]spx';
	div.style.width = '%[4]spx';
	div.style.height = '%[5]spx';
	div.style.maxWidth = 'none';
	div.style.pointerEvents = 'none';
	div.setAttribute('id', %[1]s);
	document.body.appendChild(div);
	return true;
})()`, jsString(id), cssNumber(box.Top), cssNumber(box.Left), cssNumber(box.Width), cssNumber(box.Height))
}

func cssNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// jsString quotes s as a JavaScript string literal
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
