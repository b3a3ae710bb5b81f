package tundra

import (
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"sync"

	"github.com/gen2brain/webp"
	"golang.org/x/image/tiff"
)

// tileExtensions are probed in order when a tile is loaded. The
// preprocessor writes exactly one of them per attachment, so after the
// first hit the loader remembers the extension per label.
var tileExtensions = []string{"bin", "tif", "png", "webp"}

// loadJob is one (coordinate, attachment) fetch handed to a worker.
type loadJob struct {
	tile    PendingTile
	config  AttachmentConfig
	path    string
	attempt int
}

// loadResult carries a finished load back to the main thread. retry is set
// when the decode failed and the job should be re-queued.
type loadResult struct {
	tile  LoadedTile
	job   loadJob
	retry bool
	err   error
}

// AttachmentLoader fetches tile bytes off the main thread, decodes them,
// generates mip levels and delivers the finished tiles to the atlas.
//
// Jobs flow through a single-producer multi-consumer channel to the
// workers; results return on a multi-producer single-consumer channel
// polled nonblockingly each frame. The frame loop never waits on a load.
type AttachmentLoader struct {
	path       string
	maxRetries int

	jobs    chan loadJob
	results chan loadResult

	inFlight int
	capacity int

	extensions map[AttachmentLabel]string

	wg     sync.WaitGroup
	closed bool
}

// NewAttachmentLoader starts workers many goroutines servicing loads below
// the terrain directory. capacity bounds the number of in-flight loads.
func NewAttachmentLoader(path string, workers, capacity int) *AttachmentLoader {
	if workers <= 0 {
		workers = 2
	}
	if capacity < workers {
		capacity = workers * 2
	}

	loader := &AttachmentLoader{
		path:       path,
		maxRetries: 3,
		jobs:       make(chan loadJob, capacity),
		results:    make(chan loadResult, capacity),
		capacity:   capacity,
		extensions: make(map[AttachmentLabel]string),
	}

	loader.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go loader.worker()
	}

	return loader
}

// Close stops the workers. In-flight loads finish and are discarded.
func (l *AttachmentLoader) Close() {
	if l.closed {
		return
	}
	l.closed = true
	close(l.jobs)
	l.wg.Wait()
}

// Update drives the loader for one frame: deliver finished loads to the
// atlas, then start new loads while capacity remains. Nonblocking.
func (l *AttachmentLoader) Update(atlas *TileAtlas) {
	l.finishLoading(atlas)
	l.startLoading(atlas)
}

func (l *AttachmentLoader) finishLoading(atlas *TileAtlas) {
	for {
		select {
		case result := <-l.results:
			l.inFlight--
			if result.retry {
				l.retry(atlas, result)
				continue
			}
			if result.err != nil {
				log.Printf("tundra: load %s/%s failed permanently: %v",
					result.job.tile.Coordinate, result.job.tile.Label, result.err)
				// Deliver zero data: the slot becomes resident with
				// zeroed pixels. There is no failed slot state.
				result.tile.Data = ZeroAttachmentData(result.job.config)
			}
			if ext := extensionOf(result.job.path); ext != "" {
				l.extensions[result.job.tile.Label] = ext
			}
			atlas.TileLoaded(result.tile)
		default:
			return
		}
	}
}

func (l *AttachmentLoader) retry(atlas *TileAtlas, result loadResult) {
	job := result.job
	job.attempt++
	if job.attempt >= l.maxRetries {
		log.Printf("tundra: load %s/%s failed after %d attempts: %v",
			job.tile.Coordinate, job.tile.Label, job.attempt, result.err)
		result.tile.Data = ZeroAttachmentData(job.config)
		atlas.TileLoaded(result.tile)
		return
	}
	l.inFlight++
	l.jobs <- job
}

func (l *AttachmentLoader) startLoading(atlas *TileAtlas) {
	for l.inFlight < l.capacity {
		tile, ok := atlas.NextPending()
		if !ok {
			return
		}
		config, ok := atlas.Attachment(tile.Label)
		if !ok {
			continue
		}

		l.inFlight++
		l.jobs <- loadJob{
			tile:   tile,
			config: config,
			path:   fmt.Sprintf("%s/%s", l.path, tile.Label),
		}
	}
}

func (l *AttachmentLoader) worker() {
	defer l.wg.Done()
	for job := range l.jobs {
		l.results <- l.load(job)
	}
}

// load reads and decodes one tile. A missing file is not an error: the
// tile resolves to zero data, matching tiles skipped by the preprocessor.
func (l *AttachmentLoader) load(job loadJob) loadResult {
	result := loadResult{
		job: job,
		tile: LoadedTile{
			Coordinate: job.tile.Coordinate,
			Label:      job.tile.Label,
			Index:      job.tile.Index,
		},
	}

	raw, path, err := l.read(job)
	if err != nil {
		result.tile.Data = ZeroAttachmentData(job.config)
		return result
	}
	result.job.path = path

	data, err := decodeTile(job.config, path, raw)
	if err != nil {
		result.retry = true
		result.err = err
		return result
	}

	data.GenerateMipmaps()
	result.tile.Data = data
	return result
}

// read probes the known extensions, preferring the one that matched before
// for this attachment.
func (l *AttachmentLoader) read(job loadJob) ([]byte, string, error) {
	try := tileExtensions
	if ext, ok := l.extensions[job.tile.Label]; ok {
		try = append([]string{ext}, tileExtensions...)
	}

	var firstErr error
	for _, ext := range try {
		path := job.tile.Coordinate.Path(job.path, ext)
		raw, err := os.ReadFile(path)
		if err == nil {
			return raw, path, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, "", firstErr
}

// decodeTile turns raw tile bytes into attachment pixel data, dispatching
// on the file extension.
func decodeTile(config AttachmentConfig, path string, raw []byte) (*AttachmentData, error) {
	switch extensionOf(path) {
	case "bin":
		return DecodeBinTile(config, raw)
	case "tif":
		img, err := tiff.Decode(bytesReader(raw))
		if err != nil {
			return nil, fmt.Errorf("tundra: decode %s: %w", path, err)
		}
		return imageToAttachment(config, img)
	case "png":
		img, err := png.Decode(bytesReader(raw))
		if err != nil {
			return nil, fmt.Errorf("tundra: decode %s: %w", path, err)
		}
		return imageToAttachment(config, img)
	case "webp":
		img, err := webp.Decode(bytesReader(raw))
		if err != nil {
			return nil, fmt.Errorf("tundra: decode %s: %w", path, err)
		}
		return imageToAttachment(config, img)
	default:
		return nil, fmt.Errorf("tundra: unknown tile extension in %s", path)
	}
}

// imageToAttachment converts a decoded image into the attachment's pixel
// format. The image must match the attachment texture size.
func imageToAttachment(config AttachmentConfig, img image.Image) (*AttachmentData, error) {
	bounds := img.Bounds()
	size := int(config.TextureSize)
	if bounds.Dx() != size || bounds.Dy() != size {
		return nil, fmt.Errorf("tundra: tile image is %dx%d, want %dx%d",
			bounds.Dx(), bounds.Dy(), size, size)
	}

	ps := int(config.Format.PixelSize())
	pixels := make([]byte, size*size*ps)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			offset := (y*size + x) * ps
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			switch config.Format {
			case FormatR16:
				pixels[offset] = byte(r)
				pixels[offset+1] = byte(r >> 8)
			case FormatRF32:
				// Heights in float tiles are stored in 16 bit grays scaled
				// to [0,1] when they arrive as images; native floats use
				// the bin format.
				float32ToLE(float32(r)/0xFFFF, pixels[offset:offset+4])
			case FormatRgba8:
				pixels[offset] = byte(r >> 8)
				pixels[offset+1] = byte(g >> 8)
				pixels[offset+2] = byte(b >> 8)
				pixels[offset+3] = byte(a >> 8)
			case FormatRgbU8:
				pixels[offset] = byte(r >> 8)
				pixels[offset+1] = byte(g >> 8)
				pixels[offset+2] = byte(b >> 8)
			}
		}
	}

	return NewAttachmentData(config, pixels)
}

func extensionOf(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return ""
}
