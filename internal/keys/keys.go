// Package keys builds the KV key prefixes the aggregator uses, per §6 of
// the design: meta:, postid:, posturi:, posturl:, post:, like:, repost:.
// Centralizing them here keeps the registry, tally, recovery and pruner
// packages from disagreeing about layout.
package keys

import (
	"strconv"
	"strings"
)

const (
	prefixMeta    = "meta:"
	prefixPostID  = "postid:"
	prefixPostURI = "posturi:"
	prefixPostURL = "posturl:"
	prefixPost    = "post:"
	prefixLike    = "like:"
	prefixRepost  = "repost:"

	// NextPostID is the single meta key tracking next_post_id.
	NextPostID = prefixMeta + "nextPostId"
)

// PostID returns the postid:<uri> key mapping a URI to its numeric id.
func PostID(uri string) []byte { return []byte(prefixPostID + uri) }

// TrimPostID strips the postid: prefix, returning the URI.
func TrimPostID(key string) string { return strings.TrimPrefix(key, prefixPostID) }

// HasPostIDPrefix reports whether key is a postid: row.
func HasPostIDPrefix(key string) bool { return strings.HasPrefix(key, prefixPostID) }

// PostIDPrefix returns the byte range bounding all postid: rows.
func PostIDPrefix() (lo, hi []byte) { return rangeOf(prefixPostID) }

// PostURI returns the posturi:<id> key mapping a numeric id to its URI.
func PostURI(id uint64) []byte { return []byte(prefixPostURI + strconv.FormatUint(id, 10)) }

func TrimPostURI(key string) (uint64, bool) { return trimID(key, prefixPostURI) }

func PostURIPrefix() (lo, hi []byte) { return rangeOf(prefixPostURI) }

// PostURL returns the posturl:<id> key holding the cached display URL.
func PostURL(id uint64) []byte { return []byte(prefixPostURL + strconv.FormatUint(id, 10)) }

func TrimPostURL(key string) (uint64, bool) { return trimID(key, prefixPostURL) }

func PostURLPrefix() (lo, hi []byte) { return rangeOf(prefixPostURL) }

// Post returns the post:<uri> key holding a PostStats row.
func Post(uri string) []byte { return []byte(prefixPost + uri) }

func TrimPost(key string) string { return strings.TrimPrefix(key, prefixPost) }

func PostPrefix() (lo, hi []byte) { return rangeOf(prefixPost) }

// Like returns the like:<did>/<rkey> key for an active like reference.
func Like(ref string) []byte { return []byte(prefixLike + ref) }

func TrimLike(key string) string { return strings.TrimPrefix(key, prefixLike) }

func LikePrefix() (lo, hi []byte) { return rangeOf(prefixLike) }

// Repost returns the repost:<did>/<rkey> key for an active repost reference.
func Repost(ref string) []byte { return []byte(prefixRepost + ref) }

func TrimRepost(key string) string { return strings.TrimPrefix(key, prefixRepost) }

func RepostPrefix() (lo, hi []byte) { return rangeOf(prefixRepost) }

// RefKey builds the "<did>/<rkey>" reference key used as both the active
// cache key and the like:/repost: KV row suffix.
func RefKey(did, rkey string) string { return did + "/" + rkey }

func trimID(key, prefix string) (uint64, bool) {
	if !strings.HasPrefix(key, prefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(key, prefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// rangeOf returns the [lo, hi) byte range covering every key with the
// given string prefix, for use with an ordered-keyspace range iterator.
func rangeOf(prefix string) (lo, hi []byte) {
	lo = []byte(prefix)
	hi = append([]byte(nil), lo...)
	// Increment the last byte to get the exclusive upper bound of the
	// prefix range (works because prefixes here are plain ASCII with no
	// trailing 0xFF byte).
	hi[len(hi)-1]++
	return lo, hi
}
