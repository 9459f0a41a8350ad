package netface

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// datagram is the IPv4 packet this interface carries. It is kept as a
// decoded gopacket layer rather than raw bytes so a Router can mutate
// TTL and recompute the checksum without a parse/serialize round trip
// on every hop.
type datagram struct {
	ip      *layers.IPv4
	payload []byte
}

// Datagram is the exported handle other packages (the router) use to
// pass IPv4 packets through an interface without reaching into its
// internals.
type Datagram struct {
	IP      *layers.IPv4
	Payload []byte
}

func newDatagram(ip *layers.IPv4, payload []byte) *datagram {
	return &datagram{ip: ip, payload: payload}
}

func (d *datagram) export() Datagram {
	return Datagram{IP: d.ip, Payload: d.payload}
}

func fromExported(d Datagram) *datagram {
	return &datagram{ip: d.IP, payload: d.Payload}
}

// serialize renders the datagram as wire bytes, recomputing the IPv4
// checksum and length.
func (d *datagram) serialize() ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, d.ip, gopacket.Payload(d.payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
