package middleware

import (
	"net/http"
	"net/netip"

	"github.com/gin-gonic/gin"
)

// IPWhitelist returns a middleware that only allows requests from the given
// addresses or CIDR prefixes. Unparseable entries are ignored. If the
// whitelist is empty, all IPs are allowed.
func IPWhitelist(ips []string) gin.HandlerFunc {
	var prefixes []netip.Prefix
	for _, s := range ips {
		if p, err := netip.ParsePrefix(s); err == nil {
			prefixes = append(prefixes, p.Masked())
		} else if a, err := netip.ParseAddr(s); err == nil {
			prefixes = append(prefixes, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return func(c *gin.Context) {
		if len(ips) == 0 {
			c.Next()
			return
		}
		addr, err := netip.ParseAddr(c.ClientIP())
		if err == nil {
			addr = addr.Unmap()
			for _, p := range prefixes {
				if p.Contains(addr) {
					c.Next()
					return
				}
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	}
}
