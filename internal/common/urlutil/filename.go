package urlutil

import (
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var disallowedFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// FilenameForURL derives an output filename from the host and path of
// rawURL: dots and slashes become hyphens, anything else outside
// [a-zA-Z0-9_-] is dropped. When exists reports the name as taken a
// numeric suffix is added: name.1.png, name.2.png and so on.
func FilenameForURL(rawURL, ext string, exists func(string) bool) string {
	if ext == "" {
		ext = "png"
	}
	base := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		base = u.Host + u.Path
	}
	base = strings.NewReplacer(".", "-", "/", "-").Replace(base)
	base = strings.TrimRight(base, "-")
	base = strings.TrimLeft(disallowedFilenameRe.ReplaceAllString(base, ""), "-")

	name := base + "." + ext
	if exists == nil {
		return name
	}
	for suffix := 1; exists(name); suffix++ {
		name = base + "." + strconv.Itoa(suffix) + "." + ext
	}
	return name
}

// URLOrFilePath turns a command line argument into a URL. An existing
// local file becomes file:<absolute path>; anything without an http(s)
// scheme gets http://.
func URLOrFilePath(arg string, localFile func(string) (string, bool)) string {
	if localFile != nil {
		if path, ok := localFile(arg); ok {
			return "file:" + path
		}
	}
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return arg
	}
	return "http://" + arg
}

// FileExists reports whether path exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LocalFile resolves path to an absolute path when it names an existing file
func LocalFile(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	return abs, true
}
