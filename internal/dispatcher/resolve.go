package dispatcher

import (
	"fmt"
	"strings"
)

// ResolveDriverName maps a link's scheme/shape to the drivers.Registry
// entry that handles it (spec §9: "lift to explicit process-wide
// registries" instead of the original's if/elif host-sniffing chain).
// Callers pass this to ToTaskConfig; it's a free function rather than a
// method so cmd/orchestrator can wire it once against whichever drivers a
// given deployment actually registers.
func ResolveDriverName(link string) (string, error) {
	switch {
	case strings.HasPrefix(link, "magnet:"), strings.HasSuffix(link, ".torrent"):
		return "torrent", nil
	case strings.HasPrefix(link, "chatmedia:"):
		return "chatmedia", nil
	case strings.HasPrefix(link, "s3://"), strings.HasPrefix(link, "azure://"):
		return "driveapi", nil
	case strings.HasPrefix(link, "nzb:"), strings.HasSuffix(link, ".nzb"):
		return "usenet", nil
	case strings.HasPrefix(link, "jd:"):
		return "linkresolver", nil
	case strings.HasPrefix(link, "http://"), strings.HasPrefix(link, "https://"):
		return "httpmulti", nil
	default:
		return "", fmt.Errorf("dispatcher: cannot resolve a driver for link %q", link)
	}
}
