package domain

import "strings"

// MediaType is a MIME type accepted for upload.
type MediaType string

const (
	MediaTypeJPEG MediaType = "image/jpeg"
	MediaTypePNG  MediaType = "image/png"
	MediaTypeGIF  MediaType = "image/gif"
	MediaTypeWEBP MediaType = "image/webp"
)

// AllowedMediaTypes is the upload allow-list.
var AllowedMediaTypes = map[MediaType]bool{
	MediaTypeJPEG: true,
	MediaTypePNG:  true,
	MediaTypeGIF:  true,
	MediaTypeWEBP: true,
}

// AllowedExtensions maps each allowed media type to the filename extensions
// (without dot, lowercase) it may be uploaded under.
var AllowedExtensions = map[MediaType][]string{
	MediaTypeJPEG: {"jpg", "jpeg"},
	MediaTypePNG:  {"png"},
	MediaTypeGIF:  {"gif"},
	MediaTypeWEBP: {"webp"},
}

// mediaTypeAliases maps non-canonical spellings clients commonly send.
var mediaTypeAliases = map[string]MediaType{
	"image/jpg":   MediaTypeJPEG,
	"image/pjpeg": MediaTypeJPEG,
}

// NormalizeMediaType lowercases a claimed content type, strips parameters and
// resolves known aliases. It does not check the allow-list.
func NormalizeMediaType(claimed string) MediaType {
	mt := strings.ToLower(strings.TrimSpace(claimed))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if alias, ok := mediaTypeAliases[mt]; ok {
		return alias
	}
	return MediaType(mt)
}

// IsAllowed reports whether the media type is on the upload allow-list.
func (m MediaType) IsAllowed() bool {
	return AllowedMediaTypes[m]
}

// Dimension is one independently limited usage counter.
type Dimension string

const (
	DimensionStorage Dimension = "storage"
	DimensionClassA  Dimension = "classA"
	DimensionClassB  Dimension = "classB"
)

// Dimensions lists every usage dimension in reporting order.
var Dimensions = []Dimension{DimensionStorage, DimensionClassA, DimensionClassB}

// RejectionKind classifies why an upload was refused by validation.
type RejectionKind string

const (
	RejectEmptyFile         RejectionKind = "empty_file"
	RejectUnsupportedType   RejectionKind = "unsupported_media_type"
	RejectContentMismatch   RejectionKind = "content_mismatch"
	RejectFileTooLarge      RejectionKind = "file_too_large"
	RejectSuspiciousContent RejectionKind = "suspicious_content"
	RejectExtensionMismatch RejectionKind = "extension_mismatch"
	RejectMissingFile       RejectionKind = "missing_file"
	RejectTooManyFields     RejectionKind = "too_many_fields"
	RejectMalformedBody     RejectionKind = "malformed_body"
)

// UsageStrategy selects the backing source of usage data.
type UsageStrategy string

const (
	UsageStrategyMemory    UsageStrategy = "memory"
	UsageStrategyRedis     UsageStrategy = "redis"
	UsageStrategyPostgres  UsageStrategy = "postgres"
	UsageStrategyAnalytics UsageStrategy = "analytics"
)
