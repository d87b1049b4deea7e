// Package httputil writes fasthttp responses.
package httputil

import (
	"encoding/json"
	"mime"

	"github.com/valyala/fasthttp"
)

const contentTypeJSON = "application/json"

// JSON marshals v as the response body. A value that cannot be marshaled
// becomes a 500 with a fixed detail message.
func JSON(ctx *fasthttp.RequestCtx, statusCode int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetContentType(contentTypeJSON)
		ctx.SetBodyString(`{"detail":"Failed to marshal response"}`)
		return
	}
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType(contentTypeJSON)
	ctx.SetBody(body)
}

// Inline sends data as a 200 response that browsers display rather than
// download, suggesting filename when saved
func Inline(ctx *fasthttp.RequestCtx, contentType, filename string, data []byte) {
	if filename != "" {
		ctx.Response.Header.Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": filename}))
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType(contentType)
	ctx.SetBody(data)
}
