package storage

import (
	"path/filepath"
	"strings"
)

// audioContentTypes maps audio file extensions to MIME types. The caller's
// presigned URLs are almost always .wav or .mp3 stereo recordings, but the
// common streaming container formats show up too.
var audioContentTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".flac": "audio/flac",
	".webm": "audio/webm",
	".aac":  "audio/aac",
}

// DetectContentType returns the MIME type for a storage key based on its
// file extension. Unknown extensions fall back to application/octet-stream.
func DetectContentType(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if ct, ok := audioContentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
