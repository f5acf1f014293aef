package telemetry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"

	"github.com/soocke/can-bot-go/domain/robot"
	"github.com/soocke/can-bot-go/domain/vision"
)

// ImageSavedFunc is told about every file written by an ImageDumper.
type ImageSavedFunc func(category, path string, generation int)

// ImageDumper writes categorized images as <dir>/<category>_<generation>.jpg.
// The generation advances once per decision cycle, so the files of a cycle
// share their suffix.
type ImageDumper struct {
	dir    string
	logger *slog.Logger

	mu         sync.Mutex
	generation int
	onSaved    ImageSavedFunc
}

// NewImageDumper creates dir if needed.
func NewImageDumper(dir string, logger *slog.Logger) (*ImageDumper, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &ImageDumper{dir: dir, logger: logger}, nil
}

// OnSaved registers fn for every written file.
func (d *ImageDumper) OnSaved(fn ImageSavedFunc) {
	d.mu.Lock()
	d.onSaved = fn
	d.mu.Unlock()
}

func (d *ImageDumper) Generation() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation
}

// SaveImage writes img; later saves of the same category in one cycle
// overwrite earlier ones.
func (d *ImageDumper) SaveImage(category string, img gocv.Mat) {
	if img.Empty() {
		return
	}
	d.mu.Lock()
	gen, fn := d.generation, d.onSaved
	d.mu.Unlock()

	path := filepath.Join(d.dir, fmt.Sprintf("%s_%d.jpg", category, gen))
	if !gocv.IMWrite(path, img) {
		d.logger.Warn("image write failed", "path", path)
		return
	}
	d.logger.Debug("image saved", "category", category, "path", path)
	if fn != nil {
		fn(category, path, gen)
	}
}

// CycleDone advances the generation.
func (d *ImageDumper) CycleDone(robot.Snapshot) {
	d.mu.Lock()
	d.generation++
	d.mu.Unlock()
}

var (
	_ vision.ImageSink    = (*ImageDumper)(nil)
	_ robot.CycleObserver = (*ImageDumper)(nil)
)
