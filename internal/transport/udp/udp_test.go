package udp

import (
	"net"
	"sync"
	"testing"
	"time"

	"wakeword/internal/features"
	"wakeword/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu      sync.Mutex
	packets [][]byte
	closed  bool
}

func (c *captureSender) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, append([]byte(nil), data...))
	return nil
}

func (c *captureSender) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

func TestPacketLayout(t *testing.T) {
	s := &captureSender{}
	p, err := NewUDPPublisher(time.Millisecond, s)
	require.NoError(t, err)

	now := time.Unix(0, 1234567890)
	p.buildAndSendPacket([]float32{0.25, 0.5, 1}, now)
	p.buildAndSendPacket([]float32{0}, now)

	require.Len(t, s.packets, 2)
	assert.Len(t, s.packets[0], HeaderLen+3*4)

	pkt, err := ParsePacket(s.packets[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(1), pkt.Sequence)
	assert.Equal(t, int64(1234567890), pkt.Timestamp)
	assert.Equal(t, []float32{0.25, 0.5, 1}, pkt.Values)

	pkt, err = ParsePacket(s.packets[1])
	require.NoError(t, err)
	assert.Equal(t, uint32(2), pkt.Sequence)
}

func TestParsePacketRejectsBadLengths(t *testing.T) {
	_, err := ParsePacket([]byte{1, 2, 3})
	assert.Error(t, err)

	s := &captureSender{}
	p, _ := NewUDPPublisher(time.Millisecond, s)
	p.buildAndSendPacket([]float32{1, 2}, time.Now())
	_, err = ParsePacket(s.packets[0][:HeaderLen+4])
	assert.Error(t, err)
}

func TestSendQueuesFramesAndDropsOldest(t *testing.T) {
	p, _ := NewUDPPublisher(time.Millisecond, &captureSender{})
	p.maxQueue = 2

	frames := []features.Frame{{1}, {2}, {3}}
	require.NoError(t, p.Send(transport.NewFrameMessage("s", 512, frames)))
	require.NoError(t, p.Send("not a frame message"))

	assert.Equal(t, 2, p.Pending())
	assert.Equal(t, uint64(1), p.dropped)

	f, ok := p.next()
	require.True(t, ok)
	assert.Equal(t, []float32{2}, f)

	// The queue holds copies.
	frames[2][0] = 9
	f, _ = p.next()
	assert.Equal(t, []float32{3}, f)
}

func TestPublisherDrainsQueue(t *testing.T) {
	s := &captureSender{}
	p, _ := NewUDPPublisher(time.Millisecond, s)
	require.NoError(t, p.Send(transport.NewFrameMessage("s", 512, []features.Frame{{1}, {2}, {3}})))

	p.Start()
	p.Start() // no-op
	assert.Eventually(t, func() bool { return s.count() == 3 }, time.Second, time.Millisecond)
	require.NoError(t, p.Close())
	assert.True(t, s.closed)
	assert.NoError(t, p.Stop())
}

func TestUDPSenderDelivers(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	s, err := NewUDPSender(conn.LocalAddr().String())
	require.NoError(t, err)
	require.NoError(t, s.Send([]byte("frame")))

	buf := make([]byte, 64)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "frame", string(buf[:n]))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Error(t, s.Send([]byte("late")))
}

func TestNewUDPSenderBadAddress(t *testing.T) {
	_, err := NewUDPSender("not-an-address")
	assert.Error(t, err)
}

func TestNewUDPPublisherNilSender(t *testing.T) {
	_, err := NewUDPPublisher(time.Millisecond, nil)
	assert.Error(t, err)
}
