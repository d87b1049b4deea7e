package chrome

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"

	"github.com/elidickinson/shot-power-scraper/internal/render/netbus"
)

// Placeholders for console messages without a usable stack frame
const (
	anonymousSourceURL    = "<anonymous>"
	unknownSourceLocation = "0:0"
)

func monotonicSeconds(ts *cdp.MonotonicTime) float64 {
	if ts == nil {
		return 0
	}
	return float64(ts.Time().UnixNano()) / 1e9
}

func wallTime(ts *cdp.TimeSinceEpoch) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.Time()
}

func flattenHeaders(h network.Headers) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// postData joins the request's body entries. Entries arrive base64 encoded.
func postData(req *network.Request) string {
	if req == nil || len(req.PostDataEntries) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, entry := range req.PostDataEntries {
		if entry == nil {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(entry.Bytes)
		if err != nil {
			sb.WriteString(entry.Bytes)
			continue
		}
		sb.Write(raw)
	}
	return sb.String()
}

func responseInfo(resp *network.Response) *netbus.ResponseInfo {
	if resp == nil {
		return nil
	}
	info := &netbus.ResponseInfo{
		Status:          int(resp.Status),
		StatusText:      resp.StatusText,
		Headers:         flattenHeaders(resp.Headers),
		MimeType:        resp.MimeType,
		Protocol:        resp.Protocol,
		RemoteIPAddress: resp.RemoteIPAddress,
	}
	if resp.ConnectionID > 0 {
		info.ConnectionID = strconv.FormatFloat(resp.ConnectionID, 'f', -1, 64)
	}
	if t := resp.Timing; t != nil {
		info.Timing = &netbus.Timing{
			DNSStart:          t.DNSStart,
			DNSEnd:            t.DNSEnd,
			ConnectStart:      t.ConnectStart,
			ConnectEnd:        t.ConnectEnd,
			SSLStart:          t.SslStart,
			SSLEnd:            t.SslEnd,
			SendStart:         t.SendStart,
			SendEnd:           t.SendEnd,
			ReceiveHeadersEnd: t.ReceiveHeadersEnd,
		}
	}
	return info
}

func requestStartedEvent(ev *network.EventRequestWillBeSent) netbus.Event {
	out := netbus.Event{
		Kind:             netbus.RequestStarted,
		RequestID:        string(ev.RequestID),
		FrameID:          string(ev.FrameID),
		LoaderID:         string(ev.LoaderID),
		ResourceType:     string(ev.Type),
		RedirectResponse: responseInfo(ev.RedirectResponse),
		Timestamp:        monotonicSeconds(ev.Timestamp),
		WallTime:         wallTime(ev.WallTime),
	}
	if ev.Request != nil {
		out.URL = ev.Request.URL
		out.Method = ev.Request.Method
		out.Headers = flattenHeaders(ev.Request.Headers)
		out.PostData = postData(ev.Request)
	}
	if ev.Initiator != nil {
		out.Initiator = string(ev.Initiator.Type)
	}
	return out
}

func responseReceivedEvent(ev *network.EventResponseReceived) netbus.Event {
	out := netbus.Event{
		Kind:         netbus.ResponseReceived,
		RequestID:    string(ev.RequestID),
		FrameID:      string(ev.FrameID),
		LoaderID:     string(ev.LoaderID),
		ResourceType: string(ev.Type),
		Response:     responseInfo(ev.Response),
		Timestamp:    monotonicSeconds(ev.Timestamp),
	}
	if ev.Response != nil {
		out.URL = ev.Response.URL
	}
	return out
}

func loadingFinishedEvent(ev *network.EventLoadingFinished) netbus.Event {
	return netbus.Event{
		Kind:              netbus.LoadingFinished,
		RequestID:         string(ev.RequestID),
		EncodedDataLength: int64(ev.EncodedDataLength),
		Timestamp:         monotonicSeconds(ev.Timestamp),
	}
}

func loadingFailedEvent(ev *network.EventLoadingFailed) netbus.Event {
	return netbus.Event{
		Kind:         netbus.LoadingFailed,
		RequestID:    string(ev.RequestID),
		ResourceType: string(ev.Type),
		ErrorText:    ev.ErrorText,
		Canceled:     ev.Canceled,
		Timestamp:    monotonicSeconds(ev.Timestamp),
	}
}

func pageMilestoneEvent(kind netbus.Kind, ts *cdp.MonotonicTime) netbus.Event {
	return netbus.Event{Kind: kind, Timestamp: monotonicSeconds(ts)}
}

func domContentLoadedEvent(ev *page.EventDomContentEventFired) netbus.Event {
	return pageMilestoneEvent(netbus.DOMContentLoaded, ev.Timestamp)
}

func pageLoadedEvent(ev *page.EventLoadEventFired) netbus.Event {
	return pageMilestoneEvent(netbus.PageLoaded, ev.Timestamp)
}

// consoleMessage joins the arguments of a console call
func consoleMessage(ev *cdpruntime.EventConsoleAPICalled) string {
	parts := make([]string, 0, len(ev.Args))
	for _, arg := range ev.Args {
		if part := formatConsoleArg(arg); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " ")
}

// formatConsoleArg renders a console argument: primitives by value,
// objects by description.
func formatConsoleArg(arg *cdpruntime.RemoteObject) string {
	if arg == nil {
		return ""
	}
	if len(arg.Value) > 0 {
		raw := string(arg.Value)
		if unquoted, err := strconv.Unquote(raw); err == nil {
			return unquoted
		}
		if raw != "null" && raw != "undefined" {
			return raw
		}
	}

	switch {
	case arg.Description != "":
		return arg.Description
	case arg.ClassName != "":
		return "[" + arg.ClassName + "]"
	case arg.Type != "":
		return "[" + string(arg.Type) + "]"
	}
	return ""
}

// sourceInfo returns the script URL and 1-based "line:column" of the
// top stack frame.
func sourceInfo(trace *cdpruntime.StackTrace) (string, string) {
	if trace == nil || len(trace.CallFrames) == 0 {
		return anonymousSourceURL, unknownSourceLocation
	}

	frame := trace.CallFrames[0]
	url := frame.URL
	if url == "" {
		url = anonymousSourceURL
	}
	line := max(frame.LineNumber, 0)
	col := max(frame.ColumnNumber, 0)
	return url, fmt.Sprintf("%d:%d", line+1, col+1)
}
