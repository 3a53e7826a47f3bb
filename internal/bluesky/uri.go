// Package bluesky provides AT Protocol URI helpers used by the
// registry package.
package bluesky

import (
	"fmt"
	"regexp"
	"strings"
)

// PostCollection is the lexicon collection identifier for a feed post.
const PostCollection = "app.bsky.feed.post"

var (
	atURIRegex = regexp.MustCompile(`^at://([^/]+)/([^/]+)/([a-zA-Z0-9._~:-]+)$`)
	didRegex   = regexp.MustCompile(`^did:`)
)

// PostRef is a parsed at:// URI.
type PostRef struct {
	DID        string // repository DID
	Collection string // e.g. "app.bsky.feed.post"
	RKey       string // record key
}

// ParseATURI parses an at://did/collection/rkey URI into its components.
func ParseATURI(uri string) (*PostRef, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, fmt.Errorf("empty URI")
	}
	matches := atURIRegex.FindStringSubmatch(uri)
	if matches == nil {
		return nil, fmt.Errorf("invalid at:// URI: %s", uri)
	}
	return &PostRef{DID: matches[1], Collection: matches[2], RKey: matches[3]}, nil
}

// MakePostURI builds an at:// URI for a feed post record.
func MakePostURI(did, rkey string) string {
	return fmt.Sprintf("at://%s/%s/%s", did, PostCollection, rkey)
}

// DisplayURL derives the public bsky.app URL for a post URI. ok is false
// when the URI does not name a feed post; the registry then stores a nil
// posturl row for that id (§4.3).
func DisplayURL(postURI string) (url string, ok bool) {
	ref, err := ParseATURI(postURI)
	if err != nil || ref.Collection != PostCollection {
		return "", false
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", ref.DID, ref.RKey), true
}

// IsLikelyDID checks if a string looks like a DID.
func IsLikelyDID(s string) bool {
	return didRegex.MatchString(strings.TrimSpace(s))
}
