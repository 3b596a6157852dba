// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"wakeword/internal/transport"
)

// DefaultQueueFrames bounds the frames waiting to be sent.
const DefaultQueueFrames = 256

// PacketSender is satisfied by UDPSender.
type PacketSender interface {
	Send(data []byte) error
	Close() error
}

// UDPPublisher queues the frames of each extraction pass and sends one
// frame per tick, packed into a binary packet. Older frames are dropped when
// the queue is full.
type UDPPublisher struct {
	sender   PacketSender
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop

	queueMu  sync.Mutex
	queue    [][]float32
	maxQueue int
	dropped  uint64

	sequenceNum  uint32
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates a publisher. If interval is invalid (<= 0), it
// defaults to 33ms (~30Hz).
func NewUDPPublisher(interval time.Duration, sender PacketSender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if interval <= 0 {
		interval = 33 * time.Millisecond
		udpLog.Warnf("Invalid publish interval, defaulting to %s", interval)
	}
	udpLog.Infof("Publisher initializing (Interval: %s)", interval)

	return &UDPPublisher{
		sender:       sender,
		interval:     interval,
		maxQueue:     DefaultQueueFrames,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Send queues the frames of a transport.FrameMessage. Other messages are
// ignored.
func (p *UDPPublisher) Send(data any) error {
	msg, ok := data.(transport.FrameMessage)
	if !ok {
		return nil
	}
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	for _, f := range msg.Frames {
		if len(p.queue) == p.maxQueue {
			p.queue = p.queue[1:]
			p.dropped++
		}
		p.queue = append(p.queue, append([]float32(nil), f...))
	}
	return nil
}

// Pending returns the number of queued frames.
func (p *UDPPublisher) Pending() int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return len(p.queue)
}

func (p *UDPPublisher) next() ([]float32, bool) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	if len(p.queue) == 0 {
		return nil, false
	}
	f := p.queue[0]
	p.queue = p.queue[1:]
	return f, true
}

// Start begins the periodic publishing process. Calling it again while
// running is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		udpLog.Warnf("Publisher Start called but already running.")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				if frame, ok := p.next(); ok {
					p.buildAndSendPacket(frame, time.Now())
				}
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	udpLog.Debugf("Publisher stopped")
	return nil
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Value Count       | uint16         | 2            | Number of floats (N)    |
| Values            | []float32      | N * 4        | One log-mel frame       |
+-----------------------------------------------------------------------------+
*/

// HeaderLen is the size of the packet header in bytes.
const HeaderLen = 4 + 8 + 2

// Packet is a decoded frame packet.
type Packet struct {
	Sequence  uint32
	Timestamp int64
	Values    []float32
}

// ParsePacket decodes a packet built by the publisher.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) < HeaderLen {
		return Packet{}, fmt.Errorf("packet too short: %d bytes", len(b))
	}
	pkt := Packet{
		Sequence:  binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
	}
	n := int(binary.BigEndian.Uint16(b[12:14]))
	if len(b) != HeaderLen+4*n {
		return Packet{}, fmt.Errorf("packet holds %d bytes, header announces %d values", len(b), n)
	}
	pkt.Values = make([]float32, n)
	if err := binary.Read(bytes.NewReader(b[HeaderLen:]), binary.BigEndian, pkt.Values); err != nil {
		return Packet{}, err
	}
	return pkt, nil
}

func (p *UDPPublisher) buildAndSendPacket(frame []float32, now time.Time) {
	p.sequenceNum++
	p.packetBuffer.Reset()

	err := binary.Write(p.packetBuffer, binary.BigEndian, p.sequenceNum)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, now.UnixNano())
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, uint16(len(frame)))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, frame)
	}
	if err != nil {
		udpLog.Errorf("Error packing frame: %v", err)
		return
	}

	if err := p.sender.Send(p.packetBuffer.Bytes()); err == nil {
		udpLog.Debugf("Sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
	}
}

// Close stops the publisher and closes the sender.
func (p *UDPPublisher) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	return p.sender.Close()
}

// Ensure UDPPublisher satisfies the interface at compile time.
var _ transport.Transport = (*UDPPublisher)(nil)
