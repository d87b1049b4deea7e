package batch_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/elidickinson/shot-power-scraper/internal/batch"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

var _ = Describe("Parse", func() {
	It("decodes a list of shots", func() {
		shots, err := batch.Parse([]byte(`
- url: https://example.com/
  output: example.png
  height: 600
  wait: 500
  timeout: 10s
  selectors: ["#a"]
  selector: "#b"
- url: https://example.com/doc
  output: doc.pdf
  pdf_landscape: true
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(shots).To(HaveLen(2))
		Expect(shots[0].Wait.ToDuration()).To(Equal(500 * time.Millisecond))
		Expect(shots[0].Timeout.ToDuration()).To(Equal(10 * time.Second))
		Expect(shots[1].PDFLandscape).To(BeTrue())
	})

	It("rejects a document that is not a list", func() {
		_, err := batch.Parse([]byte("url: https://example.com/\n"))
		Expect(err).To(MatchError(batch.ErrNotList))
	})

	It("rejects unknown keys", func() {
		_, err := batch.Parse([]byte("- url: https://example.com/\n  outptu: x.png\n"))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unknown configuration field"))
	})

	It("returns nothing for an empty file", func() {
		shots, err := batch.Parse([]byte(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(shots).To(BeEmpty())
	})
})

var _ = Describe("Shot.Request", func() {
	defaults := batch.Defaults{Timeout: types.Duration(45 * time.Second), AdBlock: true, UserAgent: "batch-agent"}

	It("merges single selectors into the lists", func() {
		req, err := batch.Shot{
			URL:         "https://example.com/",
			Selectors:   []string{"#a"},
			Selector:    "#b",
			SelectorAll: ".c",
			JSSelector:  "el.id == 'x'",
		}.Request(defaults)
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Selectors).To(Equal([]string{"#a", "#b"}))
		Expect(req.SelectorsAll).To(Equal([]string{".c"}))
		Expect(req.JSSelectors).To(Equal([]string{"el.id == 'x'"}))
	})

	It("applies defaults the shot leaves unset", func() {
		req, err := batch.Shot{URL: "https://example.com/"}.Request(defaults)
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Timeout).To(Equal(45 * time.Second))
		Expect(req.AdBlock).To(BeTrue())
		Expect(req.UserAgent).To(Equal("batch-agent"))
		Expect(req.FullPage).To(BeTrue())
	})

	It("lets the shot override defaults", func() {
		off := false
		req, err := batch.Shot{
			URL:       "https://example.com/",
			Timeout:   types.Duration(5 * time.Second),
			AdBlock:   &off,
			UserAgent: "custom",
			Height:    400,
		}.Request(defaults)
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Timeout).To(Equal(5 * time.Second))
		Expect(req.AdBlock).To(BeFalse())
		Expect(req.UserAgent).To(Equal("custom"))
		Expect(req.FullPage).To(BeFalse())
	})

	It("treats a .pdf output as a PDF capture", func() {
		req, err := batch.Shot{URL: "https://example.com/", Output: "Report.PDF", PDFScale: 0.5, PDFLandscape: true}.Request(defaults)
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Format).To(Equal(types.FormatPDF))
		Expect(req.PDF.Scale).To(Equal(0.5))
		Expect(req.PDF.Landscape).To(BeTrue())
		Expect(req.PDF.Paper).To(Equal(types.DefaultPaper))
	})

	It("writes a JPEG when quality is set on a .png output", func() {
		shots, err := batch.Parse([]byte("- url: https://example.com/\n  output: x.png\n  quality: 80\n"))
		Expect(err).NotTo(HaveOccurred())
		req, err := shots[0].Request(defaults)
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Format).To(Equal(types.FormatJPEG))
		Expect(req.Quality).To(Equal(80))
	})

		It("maps skip_cloudflare_check onto the challenge check", func() {
		req, err := batch.Shot{URL: "https://example.com/", SkipCloudflareCheck: true}.Request(defaults)
		Expect(err).NotTo(HaveOccurred())
		Expect(req.SkipChallengeCheck).To(BeTrue())
	})

	It("rejects skip together with fail", func() {
		_, err := batch.Shot{URL: "https://example.com/", Skip: true, Fail: true}.Request(defaults)
		var cfgErr *types.ConfigError
		Expect(err).To(BeAssignableToTypeOf(cfgErr))
	})

	It("requires a url", func() {
		_, err := batch.Shot{Output: "x.png"}.Request(defaults)
		Expect(err).To(HaveOccurred())
	})
})
