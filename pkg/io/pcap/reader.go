// Package pcap turns captured network packets into feature instances for
// drift scoring, from PCAP files or live interfaces.
package pcap

import (
	"context"
	"errors"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// DefaultTimeout is the packet read timeout for live captures.
const DefaultTimeout = 30 * time.Second

// Source reads packets and emits one feature vector per packet, shaped for
// the traffic classifier under drift watch.
type Source struct {
	handle    *pcap.Handle
	extractor *FeatureExtractor
	isLive    bool
}

// OpenFile creates a source over a PCAP capture file.
func OpenFile(filename string) (*Source, error) {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return nil, err
	}
	return &Source{handle: handle, extractor: NewFeatureExtractor()}, nil
}

// OpenLive creates a source over a live network interface.
func OpenLive(iface string, snaplen int32, promisc bool, timeout time.Duration) (*Source, error) {
	handle, err := pcap.OpenLive(iface, snaplen, promisc, timeout)
	if err != nil {
		return nil, err
	}
	return &Source{handle: handle, extractor: NewFeatureExtractor(), isLive: true}, nil
}

// Live reports whether the source captures from a live interface.
func (s *Source) Live() bool { return s.isLive }

// Read returns feature vectors for every packet in the capture. Not useful
// on live sources, which never reach end of capture.
func (s *Source) Read() ([][]float64, error) {
	if s.handle == nil {
		return nil, errors.New("pcap: source not initialized")
	}

	var data [][]float64
	packetSource := gopacket.NewPacketSource(s.handle, s.handle.LinkType())

	for packet := range packetSource.Packets() {
		if features := s.extractor.Extract(packet); features != nil {
			data = append(data, features)
		}
	}

	return data, nil
}

// Stream returns a channel of per-packet feature vectors.
func (s *Source) Stream(ctx context.Context) (<-chan []float64, error) {
	if s.handle == nil {
		return nil, errors.New("pcap: source not initialized")
	}

	out := make(chan []float64, 1000)
	packetSource := gopacket.NewPacketSource(s.handle, s.handle.LinkType())

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-packetSource.Packets():
				if !ok {
					return
				}
				features := s.extractor.Extract(packet)
				if features == nil {
					continue
				}
				select {
				case out <- features:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close releases the capture handle.
func (s *Source) Close() error {
	if s.handle != nil {
		s.handle.Close()
	}
	return nil
}

// FeatureExtractor converts packets to the feature vector a traffic
// classifier consumes: [packet_size, inter_arrival_time, protocol,
// src_port, dst_port, payload_size].
type FeatureExtractor struct {
	lastTimestamp time.Time
}

// NewFeatureExtractor creates a packet feature extractor.
func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{}
}

// Extract converts a packet to a feature vector.
func (e *FeatureExtractor) Extract(packet gopacket.Packet) []float64 {
	features := make([]float64, 6)

	features[0] = float64(len(packet.Data()))

	if metadata := packet.Metadata(); metadata != nil && !metadata.Timestamp.IsZero() {
		if !e.lastTimestamp.IsZero() {
			features[1] = metadata.Timestamp.Sub(e.lastTimestamp).Seconds()
		}
		e.lastTimestamp = metadata.Timestamp
	}

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		features[2] = 6
		features[3] = float64(tcp.SrcPort)
		features[4] = float64(tcp.DstPort)
	} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		features[2] = 17
		features[3] = float64(udp.SrcPort)
		features[4] = float64(udp.DstPort)
	} else if packet.Layer(layers.LayerTypeICMPv4) != nil {
		features[2] = 1
	}

	if appLayer := packet.ApplicationLayer(); appLayer != nil {
		features[5] = float64(len(appLayer.Payload()))
	}

	return features
}

// FeatureNames returns the names of extracted features.
func (e *FeatureExtractor) FeatureNames() []string {
	return []string{
		"packet_size",
		"inter_arrival_time",
		"protocol",
		"src_port",
		"dst_port",
		"payload_size",
	}
}
