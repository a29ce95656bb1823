package inline

import (
	"encoding/base64"
	"net/url"
	"path"
	"strings"
)

// extensionMIME maps recognized image file extensions to MIME types.
var extensionMIME = map[string]string{
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// mimeForResource picks the MIME type for a fetched image. The
// Content-Type header wins when it names a recognized image type;
// otherwise the URL's file extension is sniffed, and anything still
// unrecognized is treated as JPEG.
func mimeForResource(contentType, resourceURL string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.Contains(ct, "png"):
		return "image/png"
	case strings.Contains(ct, "gif"):
		return "image/gif"
	case strings.Contains(ct, "webp"):
		return "image/webp"
	case strings.Contains(ct, "jpg"), strings.Contains(ct, "jpeg"):
		return "image/jpeg"
	}
	if mime, ok := extensionMIME[strings.ToLower(path.Ext(urlPath(resourceURL)))]; ok {
		return mime
	}
	return "image/jpeg"
}

// extensionForMIME is the inverse used for artifact filenames.
func extensionForMIME(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ".jpg"
}

// resourceMIME cleans the Content-Type header of a generic CSS
// sub-resource (fonts, background images). Unlike document images
// these are not assumed to be pictures, so an absent header falls
// back to a generic binary type.
func resourceMIME(contentType string) string {
	ct := strings.TrimSpace(contentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}

// dataURI encodes body as a base64 data URI with the given MIME type.
func dataURI(mime string, body []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(body)
}
