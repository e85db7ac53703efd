package source

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

// desktopAgents is the pool a browser profile is drawn from.
var desktopAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36 Edg/123.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 YaBrowser/24.4.0.0 Safari/537.36",
}

// BrowserProfile is the set of headers a lookup presents for its whole
// lifetime, so the token call and the search call look like one browser.
type BrowserProfile struct {
	UserAgent string
	Brands    string
	Mobile    string
	Platform  string
}

// RandomProfile picks a desktop user agent and derives matching client hints.
func RandomProfile() BrowserProfile {
	return ProfileFor(desktopAgents[rand.IntN(len(desktopAgents))])
}

// ProfileFor derives client hint headers from a user agent string.
func ProfileFor(ua string) BrowserProfile {
	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	major, _, _ := strings.Cut(version, ".")

	mobile := "?0"
	if parsed.Mobile() {
		mobile = "?1"
	}
	return BrowserProfile{
		UserAgent: ua,
		Brands:    fmt.Sprintf(`"%s";v="%s", "Chromium";v="%s", "Not-A.Brand";v="99"`, name, major, major),
		Mobile:    mobile,
		Platform:  fmt.Sprintf("%q", hintPlatform(parsed.Platform())),
	}
}

func hintPlatform(platform string) string {
	switch platform {
	case "Windows":
		return "Windows"
	case "Macintosh":
		return "macOS"
	case "X11", "Linux":
		return "Linux"
	default:
		return platform
	}
}

// Apply sets the XHR headers shared by both services plus the per-service
// origin and referer.
func (b BrowserProfile) Apply(req *http.Request, origin, referer string) {
	h := req.Header
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "ru,en;q=0.9,en-GB;q=0.8,en-US;q=0.7")
	h.Set("Connection", "keep-alive")
	h.Set("DNT", "1")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("User-Agent", b.UserAgent)
	h.Set("sec-ch-ua", b.Brands)
	h.Set("sec-ch-ua-mobile", b.Mobile)
	h.Set("sec-ch-ua-platform", b.Platform)
	if origin != "" {
		h.Set("Origin", origin)
	}
	if referer != "" {
		h.Set("Referer", referer)
	}
}
