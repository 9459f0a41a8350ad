// Package netface implements a single network interface: an Ethernet
// port backed by an ARP cache and waitlist, sitting below the IPv4
// layer. It owns no socket; frames arrive and leave through RecvFrame
// and MaybeSend, so it can be driven by anything from an in-process
// test harness to a raw packet socket.
package netface

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Interface is one Ethernet-framed, ARP-resolving network interface.
type Interface struct {
	ethAddr net.HardwareAddr
	ipAddr  net.IP
	log     *slog.Logger

	cache    map[[4]byte]cacheEntry
	waitlist map[[4]byte]*waitlistEntry

	outbound [][]byte
	inbound  []Datagram
}

// New returns an interface bound to the given hardware and IPv4
// addresses. l may be nil, in which case log/slog's default logger is
// used.
func New(ethAddr net.HardwareAddr, ipAddr net.IP, l *slog.Logger) *Interface {
	if l == nil {
		l = slog.Default()
	}
	return &Interface{
		ethAddr:  ethAddr,
		ipAddr:   ipAddr.To4(),
		log:      l,
		cache:    make(map[[4]byte]cacheEntry),
		waitlist: make(map[[4]byte]*waitlistEntry),
	}
}

// EthernetAddress reports the interface's MAC.
func (n *Interface) EthernetAddress() net.HardwareAddr { return n.ethAddr }

// IPAddress reports the interface's IPv4 address.
func (n *Interface) IPAddress() net.IP { return n.ipAddr }

// SendDatagram attempts to send ip to nextHop. If nextHop's MAC is
// cached, the datagram is framed and queued immediately. Otherwise it
// is parked on the waitlist and an ARP request is (re)broadcast no
// more than once per ARPRequestIntervalMs.
func (n *Interface) SendDatagram(dgram Datagram, nextHop net.IP) error {
	key := ipKey(nextHop)
	d := fromExported(dgram)

	if entry, ok := n.cache[key]; ok {
		return n.frameAndQueue(entry.ethAddr, d)
	}

	wl, ok := n.waitlist[key]
	if !ok {
		wl = &waitlistEntry{sinceRequestMs: -1}
		n.waitlist[key] = wl
	}
	wl.queued = append(wl.queued, queuedDatagram{dgram: d})

	if wl.sinceRequestMs < 0 || wl.sinceRequestMs > ARPRequestIntervalMs {
		if err := n.broadcastARPRequest(nextHop); err != nil {
			return err
		}
		wl.sinceRequestMs = 0
	}
	return nil
}

// RecvFrame decodes an incoming Ethernet frame. ARP frames update the
// cache and flush any waitlisted datagrams (or answer a request
// addressed to this interface); frames not addressed to this
// interface or its broadcast address are dropped. Valid IPv4 frames
// are queued for PopReceivedDatagram.
func (n *Interface) RecvFrame(frame []byte) (Datagram, bool, error) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return Datagram{}, false, fmt.Errorf("netface: not an ethernet frame")
	}
	eth := ethLayer.(*layers.Ethernet)

	if !isForUs(eth.DstMAC, n.ethAddr) {
		return Datagram{}, false, nil
	}

	switch eth.EthernetType {
	case layers.EthernetTypeARP:
		n.handleARP(pkt)
		return Datagram{}, false, nil

	case layers.EthernetTypeIPv4:
		ipLayer := pkt.Layer(layers.LayerTypeIPv4)
		if ipLayer == nil {
			return Datagram{}, false, fmt.Errorf("netface: malformed IPv4 frame")
		}
		ip := ipLayer.(*layers.IPv4)
		d := newDatagram(ip, append([]byte(nil), ip.Payload...)).export()
		n.inbound = append(n.inbound, d)
		return d, true, nil

	default:
		return Datagram{}, false, nil
	}
}

// PopReceivedDatagram dequeues the next decoded IPv4 datagram this
// interface has accepted, for a router (or other caller) to forward.
func (n *Interface) PopReceivedDatagram() (Datagram, bool) {
	if len(n.inbound) == 0 {
		return Datagram{}, false
	}
	d := n.inbound[0]
	n.inbound = n.inbound[1:]
	return d, true
}

// Tick advances TTLs on cache entries, evicting stale ones, and ages
// every waitlist entry's since-last-request clock.
func (n *Interface) Tick(ms uint64) {
	for k, entry := range n.cache {
		entry.ttlMs -= int64(ms)
		if entry.ttlMs <= 0 {
			n.log.Debug("netface: arp cache entry expired", "mac", entry.ethAddr.String())
			delete(n.cache, k)
			continue
		}
		n.cache[k] = entry
	}
	for _, wl := range n.waitlist {
		if wl.sinceRequestMs >= 0 {
			wl.sinceRequestMs += int64(ms)
		}
	}
}

// MaybeSend dequeues the next outbound Ethernet frame ready for the
// wire.
func (n *Interface) MaybeSend() ([]byte, bool) {
	if len(n.outbound) == 0 {
		return nil, false
	}
	frame := n.outbound[0]
	n.outbound = n.outbound[1:]
	return frame, true
}

func (n *Interface) frameAndQueue(dst net.HardwareAddr, d *datagram) error {
	payload, err := d.serialize()
	if err != nil {
		return err
	}
	frame, err := serializeEthernet(dst, n.ethAddr, layers.EthernetTypeIPv4, payload)
	if err != nil {
		return err
	}
	n.outbound = append(n.outbound, frame)
	return nil
}

func (n *Interface) broadcastARPRequest(target net.IP) error {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   n.ethAddr,
		SourceProtAddress: n.ipAddr,
		DstHwAddress:      broadcastMAC,
		DstProtAddress:    target.To4(),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, arp); err != nil {
		return err
	}
	frame, err := serializeEthernet(broadcastMAC, n.ethAddr, layers.EthernetTypeARP, buf.Bytes())
	if err != nil {
		return err
	}
	n.outbound = append(n.outbound, frame)
	return nil
}

func (n *Interface) handleARP(pkt gopacket.Packet) {
	arpLayer := pkt.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return
	}
	arp := arpLayer.(*layers.ARP)

	senderIP := net.IP(arp.SourceProtAddress)
	senderMAC := net.HardwareAddr(append([]byte(nil), arp.SourceHwAddress...))
	n.learn(senderIP, senderMAC)

	if arp.Operation == layers.ARPRequest && net.IP(arp.DstProtAddress).Equal(n.ipAddr) {
		reply := &layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPReply,
			SourceHwAddress:   n.ethAddr,
			SourceProtAddress: n.ipAddr,
			DstHwAddress:      senderMAC,
			DstProtAddress:    senderIP.To4(),
		}
		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true}
		if err := gopacket.SerializeLayers(buf, opts, reply); err == nil {
			if frame, err := serializeEthernet(senderMAC, n.ethAddr, layers.EthernetTypeARP, buf.Bytes()); err == nil {
				n.outbound = append(n.outbound, frame)
			}
		}
	}
}

// learn records a resolved MAC and flushes anything waiting on it.
func (n *Interface) learn(ip net.IP, mac net.HardwareAddr) {
	key := ipKey(ip)
	n.cache[key] = cacheEntry{ethAddr: mac, ttlMs: CacheEntryTTLMs}

	wl, ok := n.waitlist[key]
	if !ok {
		return
	}
	n.log.Debug("netface: arp resolved", "ip", ip.String(), "mac", mac.String(), "queued", len(wl.queued))
	for _, q := range wl.queued {
		_ = n.frameAndQueue(mac, q.dgram)
	}
	delete(n.waitlist, key)
}

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func isForUs(dst, ours net.HardwareAddr) bool {
	return dst.String() == ours.String() || dst.String() == broadcastMAC.String()
}

func serializeEthernet(dst, src net.HardwareAddr, ethType layers.EthernetType, payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		DstMAC:       dst,
		SrcMAC:       src,
		EthernetType: ethType,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
