package batch_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/elidickinson/shot-power-scraper/internal/batch"
	"github.com/elidickinson/shot-power-scraper/internal/capture"
	"github.com/elidickinson/shot-power-scraper/internal/capturelog"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

type fakeCapturer struct {
	mu     sync.Mutex
	jobs   []types.CaptureRequest
	errors map[string]error
}

func (f *fakeCapturer) Capture(_ context.Context, job *capture.Job) (*capture.Artifact, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job.Request)
	f.mu.Unlock()

	if err := f.errors[job.Request.URL]; err != nil {
		return nil, err
	}
	return &capture.Artifact{
		Format: job.Request.Format,
		Data:   []byte(string(job.Request.Format) + ":" + job.Request.URL),
		Status: 200,
	}, nil
}

func (f *fakeCapturer) formats() []types.Format {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Format, len(f.jobs))
	for i, j := range f.jobs {
		out[i] = j.Format
	}
	return out
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*capturelog.Event
}

func (r *recordingEmitter) Emit(ev *capturelog.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) Close() error { return nil }

var _ = Describe("Runner", func() {
	var (
		dir      string
		capturer *fakeCapturer
		events   *recordingEmitter
		ctx      context.Context
	)

	out := func(name string) string { return filepath.Join(dir, name) }

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		capturer = &fakeCapturer{errors: map[string]error{}}
		events = &recordingEmitter{}
		ctx = context.Background()
	})

	It("writes every shot in order", func() {
		runner := batch.NewRunner(capturer, events, batch.Options{}, nil)
		results, err := runner.Run(ctx, []batch.Shot{
			{URL: "https://a.example/", Output: out("a.png")},
			{URL: "https://b.example/", Output: out("b.pdf")},
			{URL: "https://c.example/", Output: out("c.html")},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(batch.Counts(results)[batch.StatusWritten]).To(Equal(3))
		Expect(capturer.formats()).To(Equal([]types.Format{types.FormatPNG, types.FormatPDF, types.FormatHTML}))

		data, err := os.ReadFile(out("b.pdf"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("pdf:https://b.example/"))

		Expect(events.events).To(HaveLen(3))
		Expect(events.events[0].Source).To(Equal(capturelog.SourceBatch))
		Expect(events.events[0].Outcome).To(Equal(capturelog.OutcomeSuccess))
	})

	It("leaves existing outputs alone with noclobber", func() {
		Expect(os.WriteFile(out("a.png"), []byte("old"), 0o644)).To(Succeed())

		runner := batch.NewRunner(capturer, events, batch.Options{Noclobber: true}, nil)
		results, err := runner.Run(ctx, []batch.Shot{
			{URL: "https://a.example/", Output: out("a.png")},
			{URL: "https://b.example/", Output: out("b.png")},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].Status).To(Equal(batch.StatusExists))
		Expect(results[1].Status).To(Equal(batch.StatusWritten))

		data, _ := os.ReadFile(out("a.png"))
		Expect(string(data)).To(Equal("old"))
	})

	It("runs only the listed outputs", func() {
		runner := batch.NewRunner(capturer, events, batch.Options{Outputs: []string{out("b.png")}}, nil)
		results, err := runner.Run(ctx, []batch.Shot{
			{URL: "https://a.example/", Output: out("a.png")},
			{URL: "https://b.example/", Output: out("b.png")},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].Status).To(Equal(batch.StatusFiltered))
		Expect(results[1].Status).To(Equal(batch.StatusWritten))
		Expect(capturer.jobs).To(HaveLen(1))
	})

	It("treats a skipped page as neither written nor failed", func() {
		capturer.errors["https://a.example/"] = &capture.SkipError{Cause: errors.New("page returned 404")}

		runner := batch.NewRunner(capturer, events, batch.Options{FailOnError: true}, nil)
		results, err := runner.Run(ctx, []batch.Shot{
			{URL: "https://a.example/", Output: out("a.png"), Skip: true},
			{URL: "https://b.example/", Output: out("b.png")},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].Status).To(Equal(batch.StatusSkipped))
		Expect(results[1].Status).To(Equal(batch.StatusWritten))
		Expect(out("a.png")).NotTo(BeAnExistingFile())
		Expect(events.events[0].Outcome).To(Equal(capturelog.OutcomeSkipped))
	})

	Context("when a shot fails", func() {
		BeforeEach(func() {
			capturer.errors["https://a.example/"] = errors.New("browser went away")
		})

		shots := func() []batch.Shot {
			return []batch.Shot{
				{URL: "https://a.example/", Output: out("a.png")},
				{URL: "https://b.example/", Output: out("b.png")},
			}
		}

		It("continues by default", func() {
			results, err := batch.NewRunner(capturer, events, batch.Options{}, nil).Run(ctx, shots())
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Status).To(Equal(batch.StatusFailed))
			Expect(results[1].Status).To(Equal(batch.StatusWritten))
			Expect(events.events[0].Outcome).To(Equal(capturelog.OutcomeError))
		})

		It("stops with fail_on_error", func() {
			results, err := batch.NewRunner(capturer, events, batch.Options{FailOnError: true}, nil).Run(ctx, shots())
			Expect(err).To(MatchError(ContainSubstring("browser went away")))
			Expect(results).To(HaveLen(1))
		})

		It("stops when the shot itself asks to fail", func() {
			list := shots()
			list[0].Fail = true
			results, err := batch.NewRunner(capturer, events, batch.Options{}, nil).Run(ctx, list)
			Expect(err).To(HaveOccurred())
			Expect(results).To(HaveLen(1))
		})
	})

	It("reports an invalid shot without capturing it", func() {
		results, err := batch.NewRunner(capturer, events, batch.Options{}, nil).Run(ctx, []batch.Shot{
			{URL: "https://a.example/", Output: out("a.jpg"), Quality: 300},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].Status).To(Equal(batch.StatusFailed))
		Expect(capturer.jobs).To(BeEmpty())
	})

	It("writes - to stdout", func() {
		var buf bytes.Buffer
		runner := batch.NewRunner(capturer, events, batch.Options{}, nil)
		runner.SetStdout(&buf)
		_, err := runner.Run(ctx, []batch.Shot{{URL: "https://a.example/", Output: "-", Format: "html"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(Equal("html:https://a.example/"))
	})

	It("saves the page HTML next to a screenshot", func() {
		_, err := batch.NewRunner(capturer, events, batch.Options{}, nil).Run(ctx, []batch.Shot{
			{URL: "https://a.example/", Output: out("a.png"), SaveHTML: true},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out("a.png")).To(BeAnExistingFile())
		data, err := os.ReadFile(out("a.html"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("html:https://a.example/"))
	})

	It("stops when the context is cancelled", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		results, err := batch.NewRunner(capturer, events, batch.Options{}, nil).Run(cctx, []batch.Shot{
			{URL: "https://a.example/", Output: out("a.png")},
		})
		Expect(err).To(MatchError(context.Canceled))
		Expect(results).To(BeEmpty())
	})
})
