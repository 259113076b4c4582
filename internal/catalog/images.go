package catalog

import (
	"net/url"
	"strings"
)

// PlaceholderImage is served whenever a listing has no resolvable image.
const PlaceholderImage = "/placeholder.svg"

// ResolveImageURLs builds fetchable URLs for a listing's images. The result always has the same length as
// imageIDs except when no URL can be built at all, in which case it is a single placeholder.
func ResolveImageURLs(listingID string, imageIDs []string, baseURL string) []string {
	listingID = strings.TrimSpace(listingID)
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if len(imageIDs) == 0 || listingID == "" || baseURL == "" {
		return []string{PlaceholderImage}
	}
	prefix := baseURL + "/api/listings/" + url.PathEscape(listingID) + "/images/"
	urls := make([]string, len(imageIDs))
	for i, id := range imageIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			urls[i] = PlaceholderImage
			continue
		}
		urls[i] = prefix + url.PathEscape(id)
	}
	return urls
}

// FirstImageURL returns the URL of the first image, or the placeholder.
func FirstImageURL(listingID string, imageIDs []string, baseURL string) string {
	if len(imageIDs) > 1 {
		imageIDs = imageIDs[:1]
	}
	return ResolveImageURLs(listingID, imageIDs, baseURL)[0]
}
