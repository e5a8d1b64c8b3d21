package sdk

import (
	"fmt"
	"strings"
	"unicode"
)

// Well-known collection names.
const (
	UsersCollection       = "users"
	SensorDataCollection  = "sensor-data"
	ExampleDataCollection = "example-data"
)

// Split breaks a slash separated path into its segments. Segments may not be
// empty or contain whitespace, since the TCP protocol is space delimited.
func Split(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" || strings.IndexFunc(p, unicode.IsSpace) >= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return parts, nil
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// IsCollection reports whether path addresses a collection (odd segment count).
func IsCollection(path string) bool {
	parts, err := Split(path)
	return err == nil && len(parts)%2 == 1
}

// IsDocument reports whether path addresses a document (even segment count).
func IsDocument(path string) bool {
	parts, err := Split(path)
	return err == nil && len(parts)%2 == 0
}

// SplitDocument returns the collection path and ID of a document path.
func SplitDocument(docPath string) (collection, id string, err error) {
	parts, err := Split(docPath)
	if err != nil {
		return "", "", err
	}
	if len(parts)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q is not a document path", ErrInvalidPath, docPath)
	}
	return Join(parts[:len(parts)-1]...), parts[len(parts)-1], nil
}

// CleanCollection validates and normalizes a collection path.
func CleanCollection(collectionPath string) (string, error) {
	parts, err := Split(collectionPath)
	if err != nil {
		return "", err
	}
	if len(parts)%2 != 1 {
		return "", fmt.Errorf("%w: %q is not a collection path", ErrInvalidPath, collectionPath)
	}
	return Join(parts...), nil
}

// UserSensorData is the partitioned sensor-data collection of one user.
func UserSensorData(userID string) string {
	return Join(UsersCollection, userID, SensorDataCollection)
}
