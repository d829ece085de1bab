package validator

import (
	"bytes"

	"imguard/internal/domain"
)

// SniffLen is how many leading bytes callers should supply in Input.Head.
// Signature matching and type detection never look further.
const SniffLen = 3072

// ScanLen is the prefix searched for markup and script injection markers.
const ScanLen = 1024

// Input is the evidence a content check runs against. Everything except Head
// and Size is client-supplied and untrusted.
type Input struct {
	Head      []byte
	Size      int64
	MediaType string
	Filename  string
}

// Verdict is the result of validating one upload. Rejection is nil when
// Accepted is true.
type Verdict struct {
	Accepted     bool
	MediaType    domain.MediaType
	Extension    string
	DetectedType string
	Rejection    *domain.ValidationError
}

// Err returns the rejection as an error, or nil for an accepted verdict.
func (v *Verdict) Err() error {
	if v.Accepted || v.Rejection == nil {
		return nil
	}
	return v.Rejection
}

// Rule is a single content check. Rules run in order and may refine the
// verdict for the rules after them.
type Rule interface {
	Key() string
	Check(in *Input, v *Verdict) *domain.ValidationError
}

// Validator decides whether uploaded bytes are an acceptable image.
type Validator struct {
	rules []Rule
}

// New creates a Validator with the built-in rule chain. maxFileBytes bounds
// the accepted size independently of any request-level limit.
func New(maxFileBytes int64) *Validator {
	return &Validator{rules: []Rule{
		emptyRule{},
		allowListRule{},
		signatureRule{},
		detectedTypeRule{},
		sizeRule{max: maxFileBytes},
		markupScanRule{},
		extensionRule{},
	}}
}

// Rules returns the rule keys in evaluation order.
func (val *Validator) Rules() []string {
	keys := make([]string, 0, len(val.rules))
	for _, r := range val.rules {
		keys = append(keys, r.Key())
	}
	return keys
}

// Validate runs every rule in order and stops at the first rejection.
func (val *Validator) Validate(in *Input) *Verdict {
	v := &Verdict{}
	for _, r := range val.rules {
		if rej := r.Check(in, v); rej != nil {
			v.Rejection = rej
			return v
		}
	}
	v.Accepted = true
	return v
}

// CheckType runs only the allow-list rule against a claimed media type, so
// unsupported types can be refused before any content is inspected.
func CheckType(claimed string) (domain.MediaType, *domain.ValidationError) {
	v := &Verdict{}
	if rej := (allowListRule{}).Check(&Input{MediaType: claimed}, v); rej != nil {
		return "", rej
	}
	return v.MediaType, nil
}

// ValidateBytes validates a fully buffered payload.
func (val *Validator) ValidateBytes(data []byte, claimedMediaType, claimedFilename string) *Verdict {
	head := data
	if len(head) > SniffLen {
		head = head[:SniffLen]
	}
	return val.Validate(&Input{
		Head:      bytes.Clone(head),
		Size:      int64(len(data)),
		MediaType: claimedMediaType,
		Filename:  claimedFilename,
	})
}
