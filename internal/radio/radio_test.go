package radio

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPeer = PeerAddr{0x24, 0x0a, 0xc4, 0x12, 0x34, 0x56}

func TestParsePeerAddr(t *testing.T) {
	var tests = []struct {
		in      string
		want    PeerAddr
		wantErr bool
	}{
		{"24:0a:c4:12:34:56", testPeer, false},
		{"24-0A-C4-12-34-56", testPeer, false},
		{"240a.c412.3456", testPeer, false},
		{"24:0a:c4:12:34", PeerAddr{}, true},
		{"00:00:00:00:fe:80:00:00", PeerAddr{}, true},
		{"not a mac", PeerAddr{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePeerAddr(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPeer)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "24:0a:c4:12:34:56", got.String())
		})
	}
}

func TestUnicast(t *testing.T) {
	assert.True(t, testPeer.Unicast())
	assert.False(t, PeerAddr{}.Unicast())
	assert.False(t, PeerAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}.Unicast())
	assert.False(t, PeerAddr{0x01, 0x00, 0x5e, 0x00, 0x00, 0x01}.Unicast())
}

type outcomes struct {
	mu  sync.Mutex
	got []bool
}

func (o *outcomes) record(dst PeerAddr, ok bool) {
	o.mu.Lock()
	o.got = append(o.got, ok)
	o.mu.Unlock()
}

func (o *outcomes) list() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]bool(nil), o.got...)
}

func TestSimDeliversAsync(t *testing.T) {
	s := NewSim(0, 0)
	o := &outcomes{}
	s.OnSent(o.record)
	require.NoError(t, s.AddPeer(testPeer))

	require.NoError(t, s.Send(testPeer, []byte{4}))
	require.NoError(t, s.Close())
	assert.Equal(t, []bool{true}, o.list())
	assert.Equal(t, [][]byte{{4}}, s.Frames())
}

func TestSimFailEvery(t *testing.T) {
	s := NewSim(0, 2)
	var mu sync.Mutex
	n := map[bool]int{}
	s.OnSent(func(dst PeerAddr, ok bool) {
		mu.Lock()
		n[ok]++
		mu.Unlock()
	})
	require.NoError(t, s.AddPeer(testPeer))
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Send(testPeer, []byte{byte(i)}))
	}
	require.NoError(t, s.Close())
	assert.Equal(t, 2, n[true])
	assert.Equal(t, 2, n[false])
}

func TestSimRejects(t *testing.T) {
	s := NewSim(0, 0)
	assert.ErrorIs(t, s.AddPeer(PeerAddr{}), ErrInvalidPeer)
	assert.ErrorIs(t, s.Send(testPeer, []byte{1}), ErrUnknownPeer)
	require.NoError(t, s.AddPeer(testPeer))
	assert.ErrorIs(t, s.Send(testPeer, nil), ErrPayloadSize)
	assert.ErrorIs(t, s.Send(testPeer, make([]byte, MaxPayload+1)), ErrPayloadSize)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send(testPeer, []byte{1}), ErrClosed)
}

// gateway answers each datagram with status, or not at all when status < 0.
func gateway(t *testing.T, status int) (string, <-chan []byte) {
	t.Helper()
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	frames := make(chan []byte, 16)
	go func() {
		buf := make([]byte, 512)
		for {
			n, from, err := pc.ReadFromUDP(buf)
			if err != nil {
				return
			}
			frames <- append([]byte(nil), buf[:n]...)
			if status >= 0 {
				_, _ = pc.WriteToUDP([]byte{byte(status)}, from)
			}
		}
	}()
	return pc.LocalAddr().String(), frames
}

func TestUDPAcknowledged(t *testing.T) {
	addr, frames := gateway(t, 0)
	u, err := DialUDP(zerolog.Nop(), addr, time.Second)
	require.NoError(t, err)
	defer u.Close()

	o := &outcomes{}
	u.OnSent(o.record)
	require.NoError(t, u.AddPeer(testPeer))
	require.NoError(t, u.Send(testPeer, []byte{6}))

	select {
	case f := <-frames:
		assert.Equal(t, append(testPeer[:], 6), f)
	case <-time.After(time.Second):
		t.Fatal("gateway got nothing")
	}
	require.Eventually(t, func() bool { return len(o.list()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true}, o.list())
}

func TestUDPNegativeStatus(t *testing.T) {
	addr, _ := gateway(t, 1)
	u, err := DialUDP(zerolog.Nop(), addr, time.Second)
	require.NoError(t, err)
	defer u.Close()

	o := &outcomes{}
	u.OnSent(o.record)
	require.NoError(t, u.AddPeer(testPeer))
	require.NoError(t, u.Send(testPeer, []byte{0}))
	require.Eventually(t, func() bool { return len(o.list()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{false}, o.list())
}

func TestUDPAckTimeout(t *testing.T) {
	addr, _ := gateway(t, -1)
	u, err := DialUDP(zerolog.Nop(), addr, 20*time.Millisecond)
	require.NoError(t, err)
	defer u.Close()

	o := &outcomes{}
	u.OnSent(o.record)
	require.NoError(t, u.AddPeer(testPeer))
	require.NoError(t, u.Send(testPeer, []byte{3}))
	require.Eventually(t, func() bool { return len(o.list()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{false}, o.list())
}

func TestUDPAckTimeoutUnderSteadySends(t *testing.T) {
	addr, _ := gateway(t, -1)
	u, err := DialUDP(zerolog.Nop(), addr, 50*time.Millisecond)
	require.NoError(t, err)
	defer u.Close()

	o := &outcomes{}
	u.OnSent(o.record)
	require.NoError(t, u.AddPeer(testPeer))

	const sends = 40
	for i := 0; i < sends; i++ {
		require.NoError(t, u.Send(testPeer, []byte{byte(i % 7)}))
		time.Sleep(10 * time.Millisecond)
	}
	// Sends kept arriving faster than the ack timeout; the oldest ones
	// must already have been failed.
	assert.NotEmpty(t, o.list())

	require.Eventually(t, func() bool { return len(o.list()) == sends }, 2*time.Second, 5*time.Millisecond)
	for _, ok := range o.list() {
		assert.False(t, ok)
	}
}

func TestUDPClose(t *testing.T) {
	addr, _ := gateway(t, 0)
	u, err := DialUDP(zerolog.Nop(), addr, 0)
	require.NoError(t, err)
	require.NoError(t, u.AddPeer(testPeer))
	require.NoError(t, u.Close())
	assert.NoError(t, u.Close())
	assert.ErrorIs(t, u.Send(testPeer, []byte{1}), ErrClosed)
}
