// Command netcoredemo drives the TCP/IP core end to end: a client and
// a server, each behind their own network interface, talk through a
// router over two simulated point-to-point links. It exists to
// exercise internal/tcp, internal/netface, and internal/router
// together outside of their unit tests, and optionally records the
// exchange to a pcap file.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/tinyrange/netcore/internal/netface"
	"github.com/tinyrange/netcore/internal/pcap"
	"github.com/tinyrange/netcore/internal/router"
	"github.com/tinyrange/netcore/internal/stream"
	"github.com/tinyrange/netcore/internal/tcp"
)

const (
	clientPort = 50000
	serverPort = 80
)

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func run(payload string, maxTicks int, tickMs uint64, pcapPath string, verbose bool) error {
	log := newLogger(verbose)

	clientIP := net.IPv4(10, 0, 0, 1)
	routerClientSideIP := net.IPv4(10, 0, 0, 254)
	routerServerSideIP := net.IPv4(10, 0, 1, 254)
	serverIP := net.IPv4(10, 0, 1, 1)

	client := netface.New(mac("02:00:00:00:00:01"), clientIP, log.With("if", "client"))
	routerClientSide := netface.New(mac("02:00:00:00:00:02"), routerClientSideIP, log.With("if", "router0"))
	routerServerSide := netface.New(mac("02:00:00:00:00:03"), routerServerSideIP, log.With("if", "router1"))
	server := netface.New(mac("02:00:00:00:00:04"), serverIP, log.With("if", "server"))

	r := router.New(log.With("component", "router"))
	idxClientSide := r.AddInterface(routerClientSide)
	idxServerSide := r.AddInterface(routerServerSide)
	r.AddRoute(net.IPv4(10, 0, 0, 0), 24, nil, idxClientSide)
	r.AddRoute(net.IPv4(10, 0, 1, 0), 24, nil, idxServerSide)

	var capture *pcap.Writer
	if pcapPath != "" {
		f, err := os.Create(pcapPath)
		if err != nil {
			return fmt.Errorf("create pcap file: %w", err)
		}
		defer f.Close()
		capture = pcap.NewWriter(f)
		if err := capture.WriteFileHeader(65535, pcap.LinkTypeEthernet); err != nil {
			return fmt.Errorf("write pcap header: %w", err)
		}
	}

	clientOut := stream.New(uint64(len(payload)) + 1)
	clientOut.Push([]byte(payload))
	clientOut.Close()
	serverIn := stream.New(64 * 1024)

	sender := tcp.NewSender(200, nil)
	receiver := tcp.New(serverIn)
	// serverSeq tracks the server's own send-direction sequence space
	// for bare ACKs; this demo never pushes data the other way, so
	// SendEmptyMessage is the only thing it's used for.
	serverSeq := tcp.NewSender(200, nil)
	var lastServerAck tcp.ReceiverMessage

	for i := 0; i < maxTicks && !serverIn.IsClosed(); i++ {
		sender.Push(clientOut)
		for {
			msg, ok := sender.MaybeSend()
			if !ok {
				break
			}
			seg := tcp.FromSender(msg, tcp.ReceiverMessage{})
			seg.SrcPort, seg.DstPort = clientPort, serverPort
			if err := sendSegment(client, seg, clientIP, serverIP, routerClientSideIP); err != nil {
				return err
			}
		}

		pumpLink(client, routerClientSide, capture, uint64(i)*tickMs)
		r.Route()
		pumpLink(routerServerSide, server, capture, uint64(i)*tickMs)

		for {
			dgram, ok := server.PopReceivedDatagram()
			if !ok {
				break
			}
			seg, err := tcp.DecodeSegment(dgram.Payload)
			if err != nil {
				log.Warn("server: malformed segment", "err", err)
				continue
			}
			receiver.Receive(tcp.ToSenderMessage(seg))
		}
		ack := receiver.Send()

		replySeg := tcp.FromSender(serverSeq.SendEmptyMessage(), ack)
		replySeg.SrcPort, replySeg.DstPort = serverPort, clientPort
		if err := sendSegment(server, replySeg, serverIP, clientIP, routerServerSideIP); err != nil {
			return err
		}

		pumpLink(server, routerServerSide, capture, uint64(i)*tickMs)
		r.Route()
		pumpLink(routerClientSide, client, capture, uint64(i)*tickMs)

		for {
			dgram, ok := client.PopReceivedDatagram()
			if !ok {
				break
			}
			seg, err := tcp.DecodeSegment(dgram.Payload)
			if err != nil {
				log.Warn("client: malformed segment", "err", err)
				continue
			}
			if seg.ACK {
				lastServerAck = tcp.ToReceiverMessage(seg)
				sender.Receive(lastServerAck)
			}
		}

		client.Tick(tickMs)
		routerClientSide.Tick(tickMs)
		routerServerSide.Tick(tickMs)
		server.Tick(tickMs)
		sender.Tick(tickMs)
	}

	if !serverIn.IsClosed() {
		return fmt.Errorf("netcoredemo: did not converge within %d ticks", maxTicks)
	}

	got := serverIn.Peek()
	log.Info("demo complete", "bytes_delivered", len(got), "matches_payload", string(got) == payload)
	fmt.Println(string(got))
	return nil
}

func sendSegment(iface *netface.Interface, seg tcp.Segment, srcIP, dstIP, nextHop net.IP) error {
	payload, err := tcp.EncodeSegment(seg, srcIP, dstIP)
	if err != nil {
		return fmt.Errorf("encode segment: %w", err)
	}
	dgram := netface.Datagram{
		IP: &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    srcIP.To4(),
			DstIP:    dstIP.To4(),
		},
		Payload: payload,
	}
	return iface.SendDatagram(dgram, nextHop)
}

// pumpLink moves every frame queued on either end of a point-to-point
// link to the other end, optionally recording each to a capture file.
func pumpLink(a, b *netface.Interface, capture *pcap.Writer, tickMs uint64) {
	for {
		frame, ok := a.MaybeSend()
		if !ok {
			break
		}
		if capture != nil {
			_ = capture.WriteFrame(tickMs, frame)
		}
		_, _, _ = b.RecvFrame(frame)
	}
	for {
		frame, ok := b.MaybeSend()
		if !ok {
			break
		}
		if capture != nil {
			_ = capture.WriteFrame(tickMs, frame)
		}
		_, _, _ = a.RecvFrame(frame)
	}
}

func mac(s string) net.HardwareAddr {
	m, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return m
}

func main() {
	var (
		payload  string
		ticks    int
		tickMs   uint64
		pcapPath string
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "netcoredemo",
		Short: "Drive a TCP connection across a simulated two-hop network",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(payload, ticks, tickMs, pcapPath, verbose)
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "hello from the other side of the router", "bytes for the client to send")
	cmd.Flags().IntVar(&ticks, "max-ticks", 10000, "give up after this many simulated ticks")
	cmd.Flags().Uint64Var(&tickMs, "tick-ms", 5, "milliseconds advanced per simulated tick")
	cmd.Flags().StringVar(&pcapPath, "pcap", "", "write a pcap capture of every frame to this path")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "netcoredemo: %v\n", err)
		os.Exit(1)
	}
}
