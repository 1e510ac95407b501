package utils

import (
	"discharge-export-service/internal/pkg/constvars"
	"mime"
	"strings"
)

// NormalizeContentType lowercases the media type and keeps only the charset
// parameter. Unparseable or empty values fall back to application/octet-stream.
func NormalizeContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return constvars.MIMEOctetStream
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return constvars.MIMEOctetStream
	}

	charset, ok := params["charset"]
	if !ok || charset == "" {
		return mediaType
	}
	return mime.FormatMediaType(mediaType, map[string]string{"charset": strings.ToLower(charset)})
}
