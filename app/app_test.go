package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/soocke/can-bot-go/config"
	"github.com/soocke/can-bot-go/domain/device"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeDevice returns empty floors and no obstacles.
type fakeDevice struct {
	mu     sync.Mutex
	sent   []device.Instruction
	closed bool
}

func (d *fakeDevice) frame() (gocv.Mat, error) {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(200, 200, 200, 0), 512, 512, gocv.MatTypeCV8UC3), nil
}

func (d *fakeDevice) FrontFrame() (gocv.Mat, error)   { return d.frame() }
func (d *fakeDevice) RearFrame() (gocv.Mat, error)    { return d.frame() }
func (d *fakeDevice) ProximityVector() ([]int, error) { return []int{255, 255, 0, 0, 0, 0, 0}, nil }
func (d *fakeDevice) DumpCans(int) error              { return nil }
func (d *fakeDevice) Close() error                    { d.closed = true; return nil }

func (d *fakeDevice) SendInstruction(in device.Instruction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, in)
	time.Sleep(time.Millisecond)
	return nil
}

func (d *fakeDevice) instructions() []device.Instruction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]device.Instruction(nil), d.sent...)
}

func testContainer(t *testing.T, sessionSecs float64) (*AppContainer, *fakeDevice) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Loop.SessionSecs = sessionSecs
	cfg.Telemetry.DBPath = filepath.Join(t.TempDir(), "runs.db")
	cfg.SaveImagesDir = t.TempDir()
	dev := &fakeDevice{}
	c, err := BuildContainer(cfg, "", discardLogger(), func(*config.Config, *slog.Logger) (device.Device, error) {
		return dev, nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, dev
}

func TestOpenDevice_UnsupportedMode(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mode = "drone"
	_, err := OpenDevice(cfg, discardLogger())
	require.ErrorIs(t, err, config.ErrUnsupportedMode)
}

func TestBuildContainer_DeviceFailureIsFatal(t *testing.T) {
	boom := errors.New("no shm file")
	_, err := BuildContainer(config.DefaultConfig(), "", discardLogger(), func(*config.Config, *slog.Logger) (device.Device, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestBuildContainer_WiresSinks(t *testing.T) {
	c, _ := testContainer(t, 1)
	assert.NotNil(t, c.Store)
	assert.NotNil(t, c.Images)
	assert.NotNil(t, c.Feed)
	assert.Empty(t, c.Publishers)
}

func TestRunner_SessionRunsToCompletion(t *testing.T) {
	c, dev := testContainer(t, 0.3)
	r := NewRunner(context.Background(), c, nil)
	require.NoError(t, r.Start())
	rep, err := r.Wait()
	require.NoError(t, err)
	assert.False(t, r.Active())
	assert.Positive(t, rep.Cycles.Cycles)

	sent := dev.instructions()
	require.NotEmpty(t, sent)
	assert.Equal(t, device.ExtendBackdoor, sent[0])
	assert.Equal(t, device.StopAll, sent[len(sent)-1])
	assert.Positive(t, r.Latest().Cycle)
}

func TestRunner_StopCancelsRun(t *testing.T) {
	c, dev := testContainer(t, 60)
	c.Config.NoBackdoorExtension = true
	r := NewRunner(context.Background(), c, nil)
	require.NoError(t, r.Start())
	require.ErrorIs(t, r.Start(), ErrRunActive)

	stopped := make(chan struct{})
	go func() { r.Stop(); close(stopped) }()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return")
	}
	assert.False(t, r.Active())
	sent := dev.instructions()
	assert.NotContains(t, sent, device.ExtendBackdoor)
	assert.Equal(t, device.StopAll, sent[len(sent)-1])
	assert.False(t, c.Feed.Running())

	// a stopped runner can start again
	require.NoError(t, r.Start())
	r.Stop()
}

func TestRunner_RecordsRunInStore(t *testing.T) {
	c, _ := testContainer(t, 0.2)
	r := NewRunner(context.Background(), c, nil)
	require.NoError(t, r.Start())
	_, err := r.Wait()
	require.NoError(t, err)

	rows, err := c.Store.Query(`SELECT id FROM runs WHERE finished_at IS NOT NULL`)
	require.NoError(t, err)
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	require.Len(t, ids, 1)

	n, err := c.Store.CountImages(ids[0])
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestRun_HeadlessCancelled(t *testing.T) {
	c, dev := testContainer(t, 60)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	rep, err := Run(ctx, c, true)
	require.NoError(t, err)
	assert.NotEmpty(t, rep.Runtime)
	sent := dev.instructions()
	assert.Equal(t, device.StopAll, sent[len(sent)-1])
}
