// Package fileid derives deterministic document ids from the sources a document was built from.
package fileid

import (
	"bytes"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	filePrefix = "file:"
	webPrefix  = "web:"
)

// DocID returns a stable id for a document built from sources, in order. File paths
// are cleaned and URLs are normalised so that equivalent spellings map to one id.
// The id is a name-based (SHA-1) UUID.
func DocID(sources ...string) string {
	var name bytes.Buffer
	prefix := filePrefix
	for i, s := range sources {
		norm, web := normalize(s)
		if i == 0 && web {
			prefix = webPrefix
		}
		name.WriteString(norm)
		name.WriteByte(0)
	}
	return prefix + uuid.NewSHA1(uuid.NameSpaceURL, name.Bytes()).String()
}

func normalize(source string) (string, bool) {
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		u.Scheme = strings.ToLower(u.Scheme)
		u.Host = strings.ToLower(u.Host)
		u.Fragment = ""
		if u.Path == "" {
			u.Path = "/"
		}
		return u.String(), true
	}
	return filepath.Clean(source), false
}
