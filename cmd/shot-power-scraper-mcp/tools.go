package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/capture"
	"github.com/elidickinson/shot-power-scraper/internal/capturelog"
	"github.com/elidickinson/shot-power-scraper/internal/render/chrome"
	"github.com/elidickinson/shot-power-scraper/pkg/types"
)

// runner executes captures and page scripts
type runner interface {
	Capture(ctx context.Context, job *capture.Job) (*capture.Artifact, error)
	Evaluate(ctx context.Context, job *capture.Job, expr string) (json.RawMessage, error)
}

// poolRunner borrows a browser from the pool for every call
type poolRunner struct {
	pool   *chrome.Pool
	logger *zap.Logger
}

func (r *poolRunner) Capture(ctx context.Context, job *capture.Job) (*capture.Artifact, error) {
	member, err := r.pool.Acquire(ctx, job.RequestID)
	if err != nil {
		return nil, fmt.Errorf("no browser available: %w", err)
	}
	defer r.pool.Release(member)
	return capture.NewExecutor(member, job.Logger).Capture(ctx, job)
}

func (r *poolRunner) Evaluate(ctx context.Context, job *capture.Job, expr string) (json.RawMessage, error) {
	member, err := r.pool.Acquire(ctx, job.RequestID)
	if err != nil {
		return nil, fmt.Errorf("no browser available: %w", err)
	}
	defer r.pool.Release(member)
	return capture.NewExecutor(member, job.Logger).Evaluate(ctx, job, expr)
}

// toolDefaults apply to every tool call
type toolDefaults struct {
	AdBlock    bool
	PopupBlock bool
	Stealth    bool
	UserAgent  string
}

type tools struct {
	runner   runner
	events   capturelog.Emitter
	defaults toolDefaults
	logger   *zap.Logger
}

func newServer(t *tools, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"shot-power-scraper",
		version,
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("screenshot",
		mcp.WithDescription("Take a screenshot of a web page with a headless browser. Returns a PNG or JPEG image."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to capture"),
		),
		mcp.WithNumber("width",
			mcp.Description("Viewport width in pixels (default: 1280)"),
		),
		mcp.WithNumber("height",
			mcp.Description("Viewport height in pixels; the full page is captured when omitted"),
		),
		mcp.WithString("selector",
			mcp.Description("Capture only the first element matching this CSS selector"),
		),
		mcp.WithNumber("padding",
			mcp.Description("Padding in pixels around the selected element"),
		),
		mcp.WithNumber("quality",
			mcp.Description("Return a JPEG with this quality (1-100) instead of a PNG"),
		),
		mcp.WithNumber("wait",
			mcp.Description("Milliseconds to wait before capturing"),
		),
		mcp.WithString("wait_for",
			mcp.Description("JavaScript expression to wait for before capturing"),
		),
		mcp.WithString("javascript",
			mcp.Description("JavaScript to execute before capturing"),
		),
		mcp.WithBoolean("trigger_lazy_load",
			mcp.Description("Scroll the page to load deferred images"),
		),
	), t.screenshot)

	s.AddTool(mcp.NewTool("html",
		mcp.WithDescription("Return the rendered HTML of a web page after JavaScript has run."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to load"),
		),
		mcp.WithString("selector",
			mcp.Description("Return only the outerHTML of the first element matching this CSS selector"),
		),
		mcp.WithBoolean("strip_scripts",
			mcp.Description("Remove <script> elements from the output"),
		),
		mcp.WithNumber("wait",
			mcp.Description("Milliseconds to wait before reading the page"),
		),
	), t.html)

	s.AddTool(mcp.NewTool("javascript",
		mcp.WithDescription("Execute a JavaScript expression in a web page and return its JSON result."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to load"),
		),
		mcp.WithString("expression",
			mcp.Required(),
			mcp.Description("JavaScript expression; a returned promise is awaited"),
		),
	), t.javascript)

	return s
}

// builder starts a request from the arguments every tool shares
func (t *tools) builder(request mcp.CallToolRequest) (*types.CaptureRequestBuilder, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return nil, err
	}
	return types.NewCaptureRequestBuilder(url).
		Viewport(request.GetInt("width", types.DefaultViewportWidth), request.GetInt("height", 0)).
		Wait(time.Duration(request.GetInt("wait", 0)) * time.Millisecond).
		Blocking(t.defaults.AdBlock, t.defaults.PopupBlock).
		Stealth(t.defaults.Stealth).
		UserAgent(t.defaults.UserAgent), nil
}

func (t *tools) run(ctx context.Context, b *types.CaptureRequestBuilder) (*capture.Artifact, error) {
	req, err := b.Build()
	if err != nil {
		return nil, err
	}
	job := capture.NewJob(req, t.logger, "")
	artifact, err := t.runner.Capture(ctx, job)
	t.events.Emit(capturelog.NewEvent(job, capturelog.SourceMCP, artifact, err))
	return artifact, err
}

func (t *tools) screenshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := t.builder(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	quality := request.GetInt("quality", 0)
	format := types.FormatPNG
	if quality > 0 {
		format = types.FormatJPEG
	}
	b.Format(string(format)).
		Quality(quality).
		Padding(request.GetInt("padding", 0)).
		JavaScript(request.GetString("javascript", "")).
		WaitFor(request.GetString("wait_for", "")).
		TriggerLazyLoad(request.GetBool("trigger_lazy_load", false))
	if sel := request.GetString("selector", ""); sel != "" {
		b.Selector(sel)
	}

	artifact, err := t.run(ctx, b)
	if err != nil {
		return toolError(err), nil
	}
	caption := fmt.Sprintf("Screenshot of %s", artifact.FinalURL)
	return mcp.NewToolResultImage(caption, base64.StdEncoding.EncodeToString(artifact.Data), artifact.ContentType), nil
}

func (t *tools) html(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := t.builder(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b.Format(string(types.FormatHTML)).
		HTMLSelector(request.GetString("selector", "")).
		StripScripts(request.GetBool("strip_scripts", false))

	artifact, err := t.run(ctx, b)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(string(artifact.Data)), nil
}

func (t *tools) javascript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := request.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := t.builder(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	req, err := b.Format(string(types.FormatHTML)).Build()
	if err != nil {
		return toolError(err), nil
	}

	job := capture.NewJob(req, t.logger, "")
	result, err := t.runner.Evaluate(ctx, job, expr)
	t.events.Emit(capturelog.NewEvent(job, capturelog.SourceMCP, nil, err))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(string(result)), nil
}

// toolError reports a failed capture to the client with its category
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", capture.ErrorType(err), err))
}
