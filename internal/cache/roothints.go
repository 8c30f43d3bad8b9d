package cache

import (
	"net"

	"github.com/lafolle/rrdns/internal/dns"
)

// rootHintTTL is the TTL published in IANA's named.root hints file.
const rootHintTTL = 3600000

type rootServer struct {
	name string
	ipv4 string
	ipv6 string
}

// rootServers mirrors IANA's named.root: the 13 root server letters, their
// canonical names, and published glue addresses.
var rootServers = []rootServer{
	{"a.root-servers.net.", "198.41.0.4", "2001:503:ba3e::2:30"},
	{"b.root-servers.net.", "170.247.170.2", "2801:1b8:10::b"},
	{"c.root-servers.net.", "192.33.4.12", "2001:500:2::c"},
	{"d.root-servers.net.", "199.7.91.13", "2001:500:2d::d"},
	{"e.root-servers.net.", "192.203.230.10", "2001:500:a8::e"},
	{"f.root-servers.net.", "192.5.5.241", "2001:500:2f::f"},
	{"g.root-servers.net.", "192.112.36.4", "2001:500:12::d0d"},
	{"h.root-servers.net.", "198.97.190.53", "2001:500:1::53"},
	{"i.root-servers.net.", "192.36.148.17", "2001:7fe::53"},
	{"j.root-servers.net.", "192.58.128.30", "2001:503:c27::2:30"},
	{"k.root-servers.net.", "193.0.14.129", "2001:7fd::1"},
	{"l.root-servers.net.", "199.7.83.42", "2001:500:9f::42"},
	{"m.root-servers.net.", "202.12.27.33", "2001:dc3::35"},
}

// SeedRootHints preloads the cache with NS records owned by "." for each
// root server, plus its A and AAAA glue, at the published hints TTL. Called
// once at startup; the hint data is compiled in, never loaded from a path.
func (c *Cache) SeedRootHints() {
	for _, rs := range rootServers {
		c.Insert(dns.Record{
			Name: ".",
			Type: uint16(dns.TypeNS),
			Class: uint16(dns.ClassIN),
			TTL:  rootHintTTL,
			Data: rs.name,
		})
		if ip4 := net.ParseIP(rs.ipv4).To4(); ip4 != nil {
			c.Insert(dns.Record{
				Name:  rs.name,
				Type:  uint16(dns.TypeA),
				Class: uint16(dns.ClassIN),
				TTL:   rootHintTTL,
				Data:  []byte(ip4),
			})
		}
		if ip6 := net.ParseIP(rs.ipv6).To16(); ip6 != nil {
			c.Insert(dns.Record{
				Name:  rs.name,
				Type:  uint16(dns.TypeAAAA),
				Class: uint16(dns.ClassIN),
				TTL:   rootHintTTL,
				Data:  []byte(ip6),
			})
		}
	}
}
