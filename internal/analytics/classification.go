package analytics

import "imguard/internal/domain"

// classBActions are the read and metadata operations. Everything else,
// including actions this table does not know, is billed as class A.
var classBActions = map[string]bool{
	"HeadBucket":                      true,
	"HeadObject":                      true,
	"GetObject":                       true,
	"UsageSummary":                    true,
	"GetBucketEncryption":             true,
	"GetBucketLocation":               true,
	"GetBucketCors":                   true,
	"GetBucketLifecycleConfiguration": true,
}

// classAActions are the write, list and delete operations.
var classAActions = map[string]bool{
	"ListBuckets":                     true,
	"PutBucket":                       true,
	"ListObjects":                     true,
	"ListObjectsV2":                   true,
	"PutObject":                       true,
	"CopyObject":                      true,
	"CompleteMultipartUpload":         true,
	"CreateMultipartUpload":           true,
	"AbortMultipartUpload":            true,
	"ListMultipartUploads":            true,
	"UploadPart":                      true,
	"UploadPartCopy":                  true,
	"ListParts":                       true,
	"PutBucketEncryption":             true,
	"PutBucketCors":                   true,
	"PutBucketLifecycleConfiguration": true,
	"DeleteObject":                    true,
	"DeleteObjects":                   true,
	"DeleteBucket":                    true,
}

// Classify returns the billing class of an operation name.
func Classify(action string) domain.Dimension {
	if classBActions[action] {
		return domain.DimensionClassB
	}
	return domain.DimensionClassA
}

// IsKnown reports whether the action appears in the classification table.
func IsKnown(action string) bool {
	return classAActions[action] || classBActions[action]
}
