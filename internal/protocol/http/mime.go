package http

import (
	"path"
	"strings"
)

const defaultContentType = "text/plain"

var suffixTypes = map[string]string{
	".html":  "text/html",
	".xml":   "text/xml",
	".xhtml": "application/xhtml+xml",
	".txt":   "text/plain",
	".rtf":   "application/rtf",
	".pdf":   "application/pdf",
	".word":  "application/nsword",
	".png":   "image/png",
	".gif":   "image/gif",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".au":    "audio/basic",
	".mpeg":  "video/mpeg",
	".mpg":   "video/mpeg",
	".mp4":   "video/mp4",
	".avi":   "video/x-msvideo",
	".gz":    "application/x-gzip",
	".tar":   "application/x-tar",
	".css":   "text/css",
	".js":    "text/javascript",
	".json":  "application/json",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
}

// ContentType maps a path's suffix to its media type. Unknown suffixes are
// served as text/plain.
func ContentType(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if t, ok := suffixTypes[ext]; ok {
		return t
	}
	return defaultContentType
}
