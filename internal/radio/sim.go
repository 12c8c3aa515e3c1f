package radio

import (
	"fmt"
	"sync"
	"time"
)

// Sim is an in-process radio. Every send is delivered after Delay unless
// FailEvery is n > 0, in which case every nth send fails.
type Sim struct {
	Delay     time.Duration
	FailEvery int

	mu     sync.Mutex
	peers  map[PeerAddr]bool
	sent   SentFunc
	count  int
	closed bool
	wg     sync.WaitGroup
	frames [][]byte
}

func NewSim(delay time.Duration, failEvery int) *Sim {
	return &Sim{
		Delay:     delay,
		FailEvery: failEvery,
		peers:     map[PeerAddr]bool{},
	}
}

func (s *Sim) AddPeer(dst PeerAddr) error {
	if !dst.Unicast() {
		return fmt.Errorf("%w: %s", ErrInvalidPeer, dst)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.peers[dst] = true
	return nil
}

func (s *Sim) OnSent(f SentFunc) {
	s.mu.Lock()
	s.sent = f
	s.mu.Unlock()
}

func (s *Sim) Send(dst PeerAddr, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := checkSend(s.peers, dst, payload); err != nil {
		return err
	}
	s.count++
	ok := s.FailEvery <= 0 || s.count%s.FailEvery != 0
	s.frames = append(s.frames, append([]byte(nil), payload...))
	cb := s.sent

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.Delay > 0 {
			time.Sleep(s.Delay)
		}
		if cb != nil {
			cb(dst, ok)
		}
	}()
	return nil
}

// Frames returns a copy of every payload sent so far.
func (s *Sim) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

// Close waits for in-flight callbacks.
func (s *Sim) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}
