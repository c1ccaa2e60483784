package middleware

import (
	"fmt"
	"net"
	"strings"

	"github.com/labstack/echo/v4"
)

// ClientIPExtractor decides which address echo reports as the client IP.
// With no trusted proxies the TCP peer is used and forwarding headers are
// ignored. Otherwise X-Forwarded-For is honoured only across hops inside the
// given CIDR ranges.
func ClientIPExtractor(trustedProxies []string) (echo.IPExtractor, error) {
	var ranges []echo.TrustOption
	for _, cidr := range trustedProxies {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy range %q: %w", cidr, err)
		}
		ranges = append(ranges, echo.TrustIPRange(network))
	}
	if len(ranges) == 0 {
		return echo.ExtractIPDirect(), nil
	}

	opts := append([]echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}, ranges...)
	return echo.ExtractIPFromXFFHeader(opts...), nil
}
