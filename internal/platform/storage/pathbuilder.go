package storage

import (
	"fmt"
	"strings"
)

const listingImagePrefix = "listings/images"

// ListingImagePath returns the object key for a listing image id.
func ListingImagePath(imageID string) (string, error) {
	id, err := validateSegment("imageID", imageID)
	if err != nil {
		return "", err
	}
	return listingImagePrefix + "/" + id, nil
}

// ImageIDFromPath reverses ListingImagePath; ok is false for keys outside the listing image prefix.
func ImageIDFromPath(objectPath string) (string, bool) {
	id, found := strings.CutPrefix(objectPath, listingImagePrefix+"/")
	if !found || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", fmt.Errorf("storage: %s is required", name)
	case strings.ContainsAny(value, "/\\"):
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	case strings.Contains(value, ".."):
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

// SafeFilename strips directory components and path separators from an uploaded file name.
func SafeFilename(name string) string {
	name = strings.TrimSpace(name)
	if idx := strings.LastIndexAny(name, "/\\"); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.ReplaceAll(name, "..", "")
	if name == "" {
		return "upload"
	}
	return name
}
