package destination

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/starford/inkmirror/internal/apperr"
)

var itemIDRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ParseFolderLink extracts the folder id from a user supplied external link
// such as "joplin://x-callback-url/openFolder?id=<id>". A bare id is accepted
// as well.
func ParseFolderLink(link string) (string, error) {
	link = strings.TrimSpace(link)
	if itemIDRe.MatchString(link) {
		return link, nil
	}
	u, err := url.Parse(link)
	if err != nil || u.Scheme != "joplin" {
		return "", fmt.Errorf("%w: destination link %q is not a joplin:// link", apperr.ErrConfiguration, link)
	}
	if !strings.HasSuffix(u.Path, "/openFolder") {
		return "", fmt.Errorf("%w: destination link %q does not point to a notebook", apperr.ErrConfiguration, link)
	}
	id := u.Query().Get("id")
	if !itemIDRe.MatchString(id) {
		return "", fmt.Errorf("%w: destination link %q has no valid id", apperr.ErrConfiguration, link)
	}
	return id, nil
}
