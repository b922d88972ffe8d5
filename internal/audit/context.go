package audit

import (
	"math"
	"net/netip"
	"strconv"
	"strings"

	"github.com/mssola/useragent"
)

// ClientContext is the coarsened view of where a request came from.
type ClientContext struct {
	NetworkOrigin string
	DeviceClass   string
	Geolocation   string
}

// AnonymiseIP truncates an address to its /24 (IPv4) or /48 (IPv6) network.
// Unparseable input yields "".
func AnonymiseIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		ap, perr := netip.ParseAddrPort(raw)
		if perr != nil {
			return ""
		}
		addr = ap.Addr()
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return ""
	}
	return prefix.String()
}

// DeviceClass reduces a user agent string to "bot" or "<mobile|desktop>/<os family>".
func DeviceClass(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return "unknown"
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		return "bot"
	}
	class := "desktop"
	if parsed.Mobile() {
		class = "mobile"
	}
	return class + "/" + osFamily(parsed.Platform()+" "+parsed.OS())
}

func osFamily(s string) string {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "iphone"), strings.Contains(s, "ipad"), strings.Contains(s, "ios"):
		return "ios"
	case strings.Contains(s, "android"):
		return "android"
	case strings.Contains(s, "windows"):
		return "windows"
	case strings.Contains(s, "mac"):
		return "macos"
	case strings.Contains(s, "linux"), strings.Contains(s, "x11"):
		return "linux"
	}
	return "other"
}

// CoarseLocation accepts an ISO country code or a "lat,long" pair and
// returns the country upper-cased or the coordinates rounded to one decimal
// (roughly 11km). Anything else is dropped.
func CoarseLocation(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if lat, long, ok := strings.Cut(raw, ","); ok {
		la, err1 := strconv.ParseFloat(strings.TrimSpace(lat), 64)
		lo, err2 := strconv.ParseFloat(strings.TrimSpace(long), 64)
		if err1 != nil || err2 != nil || math.Abs(la) > 90 || math.Abs(lo) > 180 {
			return ""
		}
		return strconv.FormatFloat(round1(la), 'f', 1, 64) + "," + strconv.FormatFloat(round1(lo), 'f', 1, 64)
	}
	if len(raw) == 2 && isAlpha(raw) {
		return strings.ToUpper(raw)
	}
	return ""
}

func round1(f float64) float64 {
	r := math.Round(f*10) / 10
	if r == 0 {
		return 0
	}
	return r
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
