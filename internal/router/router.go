// Package router implements longest-prefix-match IPv4 forwarding
// across a set of network interfaces.
package router

import (
	"encoding/binary"
	"log/slog"
	"net"

	"github.com/tinyrange/netcore/internal/netface"
)

// Interface is the subset of netface.Interface the router depends on,
// kept narrow so the router can be tested against a fake.
type Interface interface {
	SendDatagram(dgram netface.Datagram, nextHop net.IP) error
	PopReceivedDatagram() (netface.Datagram, bool)
}

// route is one forwarding-table entry. NextHop is nil for directly
// attached networks, meaning "send to the datagram's own destination".
type route struct {
	prefix       uint32
	prefixLength uint8
	nextHop      net.IP
	ifaceIdx     int
}

// Router forwards IPv4 datagrams between a set of interfaces using
// longest-prefix-match routing, decrementing TTL and dropping
// datagrams that would reach zero.
type Router struct {
	interfaces []Interface
	routes     []route
	log        *slog.Logger
}

// New returns a router with no interfaces or routes installed. l may
// be nil, in which case log/slog's default logger is used.
func New(l *slog.Logger) *Router {
	if l == nil {
		l = slog.Default()
	}
	return &Router{log: l}
}

// AddInterface registers iface and returns its index, used when
// installing routes that forward through it.
func (r *Router) AddInterface(iface Interface) int {
	r.interfaces = append(r.interfaces, iface)
	return len(r.interfaces) - 1
}

// AddRoute installs a route for prefix/prefixLength via nextHop (nil
// for directly attached networks) out ifaceIdx. Routes are matched by
// longest prefix; among equal-length matches, the earliest added wins.
func (r *Router) AddRoute(prefix net.IP, prefixLength uint8, nextHop net.IP, ifaceIdx int) {
	r.routes = append(r.routes, route{
		prefix:       ipToUint32(prefix),
		prefixLength: prefixLength,
		nextHop:      nextHop,
		ifaceIdx:     ifaceIdx,
	})
}

func ipToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v4)
}

// mask returns the prefixLength-bit netmask, with the zero-length
// prefix (the default route) correctly yielding 0 rather than
// overflowing the shift.
func mask(prefixLength uint8) uint32 {
	if prefixLength == 0 {
		return 0
	}
	return ^uint32(0) << (32 - prefixLength)
}

// bestRoute finds the longest-prefix match for dst, or false if none
// applies.
func (r *Router) bestRoute(dst net.IP) (route, bool) {
	target := ipToUint32(dst)
	best := route{}
	found := false
	for _, rt := range r.routes {
		m := mask(rt.prefixLength)
		if target&m != rt.prefix&m {
			continue
		}
		if !found || rt.prefixLength > best.prefixLength {
			best = rt
			found = true
		}
	}
	return best, found
}

// RouteOneDatagram applies longest-prefix-match routing to a single
// already-decoded datagram: TTL is checked and decremented and the
// checksum recomputed on send, so callers must pass the original
// (undecremented) datagram. Returns false if no route matched or TTL
// expired (the datagram is silently dropped, per IP forwarding rules).
func (r *Router) RouteOneDatagram(dgram netface.Datagram) bool {
	if dgram.IP.TTL <= 1 {
		r.log.Debug("router: drop datagram, TTL expired", "dst", dgram.IP.DstIP.String())
		return false
	}

	rt, ok := r.bestRoute(dgram.IP.DstIP)
	if !ok {
		r.log.Debug("router: drop datagram, no route", "dst", dgram.IP.DstIP.String())
		return false
	}
	if rt.ifaceIdx < 0 || rt.ifaceIdx >= len(r.interfaces) {
		return false
	}

	next := rt.nextHop
	if next == nil {
		next = dgram.IP.DstIP
	}

	dgram.IP.TTL--
	if err := r.interfaces[rt.ifaceIdx].SendDatagram(dgram, next); err != nil {
		r.log.Warn("router: send failed", "dst", dgram.IP.DstIP.String(), "err", err)
		return false
	}
	return true
}

// Route drains every interface's queue of already-decoded inbound
// datagrams and forwards each one.
func (r *Router) Route() {
	for _, iface := range r.interfaces {
		for {
			dgram, ok := iface.PopReceivedDatagram()
			if !ok {
				break
			}
			r.RouteOneDatagram(dgram)
		}
	}
}
