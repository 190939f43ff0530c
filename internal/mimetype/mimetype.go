// Package mimetype maps file extensions to MIME types for transfer responses.
package mimetype

import (
	"mime"
	"path/filepath"
	"strings"
)

const Octet = "application/octet-stream"

// fallback covers formats commonly missing from sparse system mime tables,
// modern media formats in particular.
var fallback = map[string]string{
	// video
	".mp4": "video/mp4", ".m4v": "video/mp4",
	".mkv": "video/x-matroska", ".webm": "video/webm",
	".avi": "video/x-msvideo", ".mov": "video/quicktime",
	".wmv": "video/x-ms-wmv", ".flv": "video/x-flv",
	".ogv": "video/ogg", ".3gp": "video/3gpp",
	".ts": "video/mp2t", ".m2ts": "video/mp2t",
	".mpg": "video/mpeg", ".mpeg": "video/mpeg",
	// audio
	".mp3": "audio/mpeg", ".m4a": "audio/mp4", ".m4b": "audio/mp4",
	".aac": "audio/aac", ".ogg": "audio/ogg", ".oga": "audio/ogg",
	".opus": "audio/opus", ".flac": "audio/flac", ".wav": "audio/wav",
	".wma": "audio/x-ms-wma", ".aiff": "audio/aiff", ".aif": "audio/aiff",
	".mid": "audio/midi", ".midi": "audio/midi", ".mka": "audio/x-matroska",
	// images
	".jpg": "image/jpeg", ".jpeg": "image/jpeg",
	".png": "image/png", ".gif": "image/gif", ".webp": "image/webp",
	".svg": "image/svg+xml", ".ico": "image/x-icon", ".bmp": "image/bmp",
	".tiff": "image/tiff", ".tif": "image/tiff",
	".heic": "image/heic", ".heif": "image/heif", ".avif": "image/avif",
	// documents
	".pdf": "application/pdf",
	".doc": "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls": "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt": "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt": "text/plain; charset=utf-8", ".md": "text/markdown",
	".csv": "text/csv", ".json": "application/json", ".xml": "application/xml",
	".rtf": "application/rtf",
	// archives
	".zip": "application/zip", ".rar": "application/vnd.rar",
	".7z": "application/x-7z-compressed", ".tar": "application/x-tar",
	".gz": "application/gzip", ".bz2": "application/x-bzip2", ".xz": "application/x-xz",
	// playlists
	".m3u": "audio/x-mpegurl", ".m3u8": "application/vnd.apple.mpegurl",
	// fonts
	".woff": "font/woff", ".woff2": "font/woff2",
	".ttf": "font/ttf", ".otf": "font/otf",
	// other
	".apk": "application/vnd.android.package-archive",
	".iso": "application/x-iso9660-image",
	".torrent": "application/x-bittorrent",
}

// ByName returns the MIME type for a file name based on its extension,
// defaulting to application/octet-stream.
func ByName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return Octet
	}
	if ct, ok := fallback[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return Octet
}

// IsImage reports whether downstream handlers can thumbnail the file.
func IsImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	default:
		return false
	}
}
