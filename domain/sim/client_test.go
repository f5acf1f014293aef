package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soocke/can-bot-go/domain/device"
	"github.com/soocke/can-bot-go/timeutil"
)

// fakeSim answers requests on a MemSegment the way the simulator does.
type fakeSim struct {
	seg     *MemSegment
	rgb     [3]byte
	sensors []byte

	mu    sync.Mutex
	moves []byte
	dumps []byte
	codes []byte
}

func startSim(t *testing.T, seg *MemSegment, sim *fakeSim) {
	t.Helper()
	sim.seg = seg
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ctx.Err() == nil {
			code := seg.Load(SyncOffset)
			if code == 0 || code == CodeAck {
				time.Sleep(10 * time.Microsecond)
				continue
			}
			sim.handle(code)
			seg.Store(SyncOffset, CodeAck)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (s *fakeSim) handle(code byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, code)
	switch code {
	case CodeFrontCam, CodeRearCam:
		px := make([]byte, FrameBytes)
		for i := 0; i < len(px); i += 3 {
			px[i], px[i+1], px[i+2] = s.rgb[0], s.rgb[1], s.rgb[2]
		}
		if code == CodeRearCam {
			px[0] = 200
		}
		_, _ = s.seg.WriteAt(px, PayloadOffset)
	case CodeProx:
		_, _ = s.seg.WriteAt(s.sensors, PayloadOffset)
	case CodeMove:
		s.moves = append(s.moves, s.seg.Load(PayloadOffset))
	case CodeDump:
		s.dumps = append(s.dumps, s.seg.Load(PayloadOffset))
	}
}

func (s *fakeSim) snapshot() (codes, moves, dumps []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.codes...), append([]byte(nil), s.moves...), append([]byte(nil), s.dumps...)
}

func newLinkedClient(t *testing.T, sim *fakeSim) *Client {
	t.Helper()
	seg := NewMemSegment(SegmentSize)
	c := NewClient(seg, 5*time.Microsecond, timeutil.RealClock{}, nil)
	startSim(t, seg, sim)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_MoveThenFrameIsNotMisread(t *testing.T) {
	sim := &fakeSim{rgb: [3]byte{10, 20, 30}}
	c := newLinkedClient(t, sim)

	require.NoError(t, c.SendInstruction(device.MoveForward))
	frame, err := c.FrontFrame()
	require.NoError(t, err)
	defer frame.Close()

	assert.Equal(t, FrameHeight, frame.Rows())
	assert.Equal(t, FrameWidth, frame.Cols())
	px := frame.GetVecbAt(100, 100)
	// RGB on the wire, BGR in memory
	assert.Equal(t, []uint8{30, 20, 10}, []uint8(px))

	rear, err := c.RearFrame()
	require.NoError(t, err)
	defer rear.Close()
	assert.Equal(t, uint8(200), rear.GetVecbAt(0, 0)[2])

	codes, moves, _ := sim.snapshot()
	assert.Equal(t, []byte{CodeMove, CodeFrontCam, CodeRearCam}, codes)
	assert.Equal(t, []byte{'a'}, moves)
}

func TestClient_RepeatedRequestIsIdempotent(t *testing.T) {
	sim := &fakeSim{}
	c := newLinkedClient(t, sim)
	for i := 0; i < 3; i++ {
		require.NoError(t, c.SendInstruction(device.MoveRight))
	}
	_, moves, _ := sim.snapshot()
	assert.Equal(t, []byte{'d', 'd', 'd'}, moves)
	assert.Equal(t, uint64(3), c.Stats().Requests)
}

func TestClient_ProximityVector(t *testing.T) {
	sim := &fakeSim{sensors: []byte{7, 12, 40, 0, 1, 0, 1, 0}}
	c := newLinkedClient(t, sim)
	got, err := c.ProximityVector()
	require.NoError(t, err)
	if diff := cmp.Diff([]int{12, 40, 0, 1, 0, 1, 0}, got); diff != "" {
		t.Fatalf("sensors mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_CorruptedSensorsFallback(t *testing.T) {
	sim := &fakeSim{sensors: []byte{200, 1, 2, 3}}
	c := newLinkedClient(t, sim)
	got, err := c.ProximityVector()
	require.NoError(t, err)
	assert.Equal(t, FallbackSensors(), got)
	assert.Equal(t, uint64(1), c.Stats().Corrupted)
}

func TestDecodeSensors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want []int
		ok   bool
	}{
		{"empty block", nil, FallbackSensors(), false},
		{"zero count", []byte{0, 9, 9}, []int{}, true},
		{"partial", []byte{2, 5, 6, 7}, []int{5, 6}, true},
		{"max", []byte{7, 1, 2, 3, 4, 5, 6, 7}, []int{1, 2, 3, 4, 5, 6, 7}, true},
		{"over max", []byte{8, 1, 2, 3, 4, 5, 6, 7}, FallbackSensors(), false},
		{"count beyond block", []byte{3, 1}, FallbackSensors(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeSensors(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_DumpCans(t *testing.T) {
	sim := &fakeSim{}
	c := newLinkedClient(t, sim)
	require.NoError(t, c.DumpCans(4))
	require.ErrorIs(t, c.SendInstruction(device.DumpCans), ErrDumpViaInstruction)
	require.Error(t, c.DumpCans(300))
	_, _, dumps := sim.snapshot()
	assert.Equal(t, []byte{4}, dumps)
}

func TestClient_InstructionsWithoutRequest(t *testing.T) {
	sim := &fakeSim{}
	c := newLinkedClient(t, sim)
	require.NoError(t, c.SendInstruction(device.ExtendBackdoor))
	require.ErrorIs(t, c.SendInstruction(device.RequestFrontCam), device.ErrNoOpcode)
	codes, _, _ := sim.snapshot()
	assert.Empty(t, codes)
}

func TestClient_CloseUnblocksPendingRequest(t *testing.T) {
	seg := NewMemSegment(SegmentSize)
	c := NewClient(seg, time.Microsecond, timeutil.RealClock{}, nil)
	errCh := make(chan error, 1)
	go func() { errCh <- c.SendInstruction(device.MoveForward) }()

	// no simulator: wait until the request is visible, then close
	deadline := time.Now().Add(2 * time.Second)
	for seg.Load(SyncOffset) != CodeMove && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, c.Close())
	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, ErrClosed))
	case <-time.After(2 * time.Second):
		t.Fatalf("request still blocked after Close")
	}
	assert.ErrorIs(t, c.SendInstruction(device.MoveForward), ErrClosed)
}

func TestNewClient_ZeroesSegment(t *testing.T) {
	seg := NewMemSegment(16)
	seg.Store(0, CodeAck)
	seg.Store(5, 9)
	NewClient(seg, 0, nil, nil)
	buf := make([]byte, 16)
	_, err := seg.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 16), buf)
}
