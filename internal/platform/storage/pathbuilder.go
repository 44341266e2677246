package storage

import (
	"fmt"
	"path"
	"strings"
)

// OrderLineImagePath returns the object key for a line image snapshot:
// orders/{invoice}/{position}-{fileName}.
func OrderLineImagePath(invoiceCode string, position int, fileName string) (string, error) {
	invoice, err := validateSegment("invoiceCode", invoiceCode)
	if err != nil {
		return "", err
	}
	if position < 0 {
		return "", fmt.Errorf("storage: position must not be negative")
	}
	name, err := validateFileName(fileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("orders/%s/%d-%s", invoice, position, name), nil
}

// ParseRef splits an image reference into bucket and object. References are
// either gs://bucket/object or a bare object key in defaultBucket.
func ParseRef(ref, defaultBucket string) (bucket, object string, err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", fmt.Errorf("storage: image reference is empty")
	}
	if rest, ok := strings.CutPrefix(ref, "gs://"); ok {
		bucket, object, _ = strings.Cut(rest, "/")
	} else {
		bucket, object = defaultBucket, strings.TrimPrefix(ref, "/")
	}
	if bucket == "" || object == "" {
		return "", "", fmt.Errorf("storage: invalid image reference %q", ref)
	}
	if strings.Contains(object, "..") {
		return "", "", fmt.Errorf("storage: image reference contains invalid traversal sequence")
	}
	return bucket, object, nil
}

// Ref formats a gs:// reference.
func Ref(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

func baseName(object string) string {
	return path.Base(object)
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	return validateSegment("fileName", value)
}
