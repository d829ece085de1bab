package validator

import (
	"bytes"
	"path"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"imguard/internal/domain"
)

// Signatures maps each allowed media type to the leading bytes its content
// must start with.
var Signatures = map[domain.MediaType][]byte{
	domain.MediaTypeJPEG: {0xFF, 0xD8, 0xFF},
	domain.MediaTypePNG:  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	domain.MediaTypeGIF:  {0x47, 0x49, 0x46, 0x38},
	domain.MediaTypeWEBP: {0x52, 0x49, 0x46, 0x46},
}

// suspiciousMarkers are matched case-insensitively against the first ScanLen
// bytes. Best effort only: a clean scan does not prove the file is harmless.
var suspiciousMarkers = [][]byte{
	[]byte("<script"),
	[]byte("</script"),
	[]byte("<?php"),
	[]byte("<?="),
	[]byte("<%@"),
	[]byte("<%="),
	[]byte("javascript:"),
	[]byte("vbscript:"),
	[]byte("data:text/html"),
	[]byte("<iframe"),
}

type emptyRule struct{}

func (emptyRule) Key() string { return "empty" }

func (emptyRule) Check(in *Input, _ *Verdict) *domain.ValidationError {
	if in.Size <= 0 || len(in.Head) == 0 {
		return domain.NewValidationError(domain.RejectEmptyFile, "uploaded file is empty")
	}
	return nil
}

type allowListRule struct{}

func (allowListRule) Key() string { return "allow_list" }

func (allowListRule) Check(in *Input, v *Verdict) *domain.ValidationError {
	mt := domain.NormalizeMediaType(in.MediaType)
	if !mt.IsAllowed() {
		return domain.NewValidationError(domain.RejectUnsupportedType,
			"file type %q is not allowed; allowed: jpeg, png, gif, webp", in.MediaType)
	}
	v.MediaType = mt
	return nil
}

type signatureRule struct{}

func (signatureRule) Key() string { return "signature" }

func (signatureRule) Check(in *Input, v *Verdict) *domain.ValidationError {
	sig := Signatures[v.MediaType]
	if len(sig) == 0 || !bytes.HasPrefix(in.Head, sig) {
		return domain.NewValidationError(domain.RejectContentMismatch,
			"file content does not match declared type %s", v.MediaType)
	}
	return nil
}

// detectedTypeRule corroborates the signature match with full type detection,
// which also checks structure beyond the leading bytes (e.g. the WEBP tag of
// a RIFF container).
type detectedTypeRule struct{}

func (detectedTypeRule) Key() string { return "detected_type" }

func (detectedTypeRule) Check(in *Input, v *Verdict) *domain.ValidationError {
	detected := mimetype.Detect(in.Head)
	v.DetectedType = detected.String()
	for m := detected; m != nil; m = m.Parent() {
		if m.Is(string(v.MediaType)) {
			return nil
		}
	}
	return domain.NewValidationError(domain.RejectContentMismatch,
		"file content does not match declared type %s", v.MediaType)
}

type sizeRule struct {
	max int64
}

func (sizeRule) Key() string { return "size" }

func (r sizeRule) Check(in *Input, _ *Verdict) *domain.ValidationError {
	if r.max > 0 && in.Size > r.max {
		return domain.NewValidationError(domain.RejectFileTooLarge,
			"file is %s; maximum allowed is %s", humanize.IBytes(uint64(in.Size)), humanize.IBytes(uint64(r.max)))
	}
	return nil
}

type markupScanRule struct{}

func (markupScanRule) Key() string { return "markup_scan" }

func (markupScanRule) Check(in *Input, _ *Verdict) *domain.ValidationError {
	head := in.Head
	if len(head) > ScanLen {
		head = head[:ScanLen]
	}
	lowered := bytes.ToLower(head)
	for _, marker := range suspiciousMarkers {
		if bytes.Contains(lowered, marker) {
			return domain.NewValidationError(domain.RejectSuspiciousContent,
				"file contains suspicious embedded content")
		}
	}
	return nil
}

type extensionRule struct{}

func (extensionRule) Key() string { return "extension" }

func (extensionRule) Check(in *Input, v *Verdict) *domain.ValidationError {
	ext := Extension(in.Filename)
	if !slices.Contains(domain.AllowedExtensions[v.MediaType], ext) {
		return domain.NewValidationError(domain.RejectExtensionMismatch,
			"file extension %q does not match file type %s", ext, v.MediaType)
	}
	v.Extension = ext
	return nil
}

// Extension returns the lowercase extension of a client filename without the
// dot. Directory components, including Windows-style ones, are ignored.
func Extension(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	ext := path.Ext(base)
	if ext == base {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
