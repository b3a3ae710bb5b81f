// Package preprocess builds terrain datasets: it reprojects georeferenced
// source rasters onto the cube sphere (or a single planar face), splits
// them into border-padded tile pyramids, downsamples coarser levels,
// stitches tile seams and fills no-data gaps. The output directory is
// consumed directly by the tundra runtime.
package preprocess

import (
	"bufio"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"golang.org/x/image/tiff"
)

// SourceDataset is a georeferenced single-band raster in WGS84 lon/lat.
// Rasters arrive as TIFF (plus a world file for the geotransform) and are
// held decoded in memory; terrain sources are processed one at a time.
type SourceDataset struct {
	Width  int
	Height int

	// Transform maps pixel (x, y) to (lon, lat): the six world-file
	// coefficients [a, d, b, e, c, f] with
	// lon = a*x + b*y + c, lat = d*x + e*y + f.
	Transform [6]float64

	// NoData is the source no-data value; NaN when the source has none.
	NoData float64

	values []float64
}

// LoadSourceDataset reads a TIFF raster and its world file. The world file
// lives next to the raster with a .tfw extension; without one the raster
// spans the whole lon/lat range (useful for global datasets and planar
// sources).
func LoadSourceDataset(path string, noData float64) (*SourceDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("preprocess: open source: %w", err)
	}
	defer f.Close()

	img, err := tiff.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("preprocess: decode %s: %w", path, err)
	}

	dataset := &SourceDataset{NoData: noData}
	dataset.fromImage(img)

	if transform, err := loadWorldFile(worldFilePath(path)); err == nil {
		dataset.Transform = transform
	} else {
		// Default georeferencing: the raster spans lon [-180,180] and
		// lat [90,-90] top-down.
		dataset.Transform = [6]float64{
			360.0 / float64(dataset.Width), 0,
			0, -180.0 / float64(dataset.Height),
			-180, 90,
		}
	}

	return dataset, nil
}

func (d *SourceDataset) fromImage(img image.Image) {
	bounds := img.Bounds()
	d.Width = bounds.Dx()
	d.Height = bounds.Dy()
	d.values = make([]float64, d.Width*d.Height)

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < d.Height; y++ {
			for x := 0; x < d.Width; x++ {
				d.values[y*d.Width+x] = float64(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	case *image.Gray:
		for y := 0; y < d.Height; y++ {
			for x := 0; x < d.Width; x++ {
				d.values[y*d.Width+x] = float64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < d.Height; y++ {
			for x := 0; x < d.Width; x++ {
				r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				d.values[y*d.Width+x] = float64(r)
			}
		}
	}
}

// NewSourceDataset wraps raw values; used by tests and procedural sources.
func NewSourceDataset(width, height int, transform [6]float64, noData float64, values []float64) *SourceDataset {
	return &SourceDataset{
		Width:     width,
		Height:    height,
		Transform: transform,
		NoData:    noData,
		values:    values,
	}
}

// Value returns the raw pixel and whether it carries data.
func (d *SourceDataset) Value(x, y int) (float64, bool) {
	if x < 0 || y < 0 || x >= d.Width || y >= d.Height {
		return 0, false
	}
	v := d.values[y*d.Width+x]
	if !math.IsNaN(d.NoData) && v == d.NoData {
		return 0, false
	}
	return v, true
}

// Bound returns the dataset's lon/lat bounding box.
func (d *SourceDataset) Bound() orb.Bound {
	corners := [][2]float64{
		d.pixelToLonLat(0, 0),
		d.pixelToLonLat(float64(d.Width), 0),
		d.pixelToLonLat(0, float64(d.Height)),
		d.pixelToLonLat(float64(d.Width), float64(d.Height)),
	}

	bound := orb.Bound{
		Min: orb.Point{corners[0][0], corners[0][1]},
		Max: orb.Point{corners[0][0], corners[0][1]},
	}
	for _, c := range corners[1:] {
		bound = bound.Extend(orb.Point{c[0], c[1]})
	}
	return bound
}

func (d *SourceDataset) pixelToLonLat(x, y float64) [2]float64 {
	t := d.Transform
	return [2]float64{
		t[0]*x + t[2]*y + t[4],
		t[1]*x + t[3]*y + t[5],
	}
}

// lonLatToPixel inverts the affine geotransform.
func (d *SourceDataset) lonLatToPixel(lon, lat float64) (float64, float64) {
	t := d.Transform
	det := t[0]*t[3] - t[1]*t[2]
	if det == 0 {
		return -1, -1
	}
	lon -= t[4]
	lat -= t[5]
	return (lon*t[3] - lat*t[2]) / det, (lat*t[0] - lon*t[1]) / det
}

// SampleLonLat bilinearly samples the dataset at a lon/lat position.
// No-data pixels are excluded from the interpolation; a position whose
// four support pixels are all no-data reports false.
func (d *SourceDataset) SampleLonLat(lon, lat float64) (float64, bool) {
	px, py := d.lonLatToPixel(lon, lat)
	px -= 0.5
	py -= 0.5

	x0 := int(math.Floor(px))
	y0 := int(math.Floor(py))
	fx := px - float64(x0)
	fy := py - float64(y0)

	var sum, weight float64
	for dy := 0; dy <= 1; dy++ {
		for dx := 0; dx <= 1; dx++ {
			v, ok := d.Value(x0+dx, y0+dy)
			if !ok {
				continue
			}
			wx := fx
			if dx == 0 {
				wx = 1 - fx
			}
			wy := fy
			if dy == 0 {
				wy = 1 - fy
			}
			sum += v * wx * wy
			weight += wx * wy
		}
	}

	if weight == 0 {
		return 0, false
	}
	return sum / weight, true
}

func worldFilePath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".tfw"
}

// loadWorldFile reads the six-line ESRI world file format:
// a, d, b, e, c, f.
func loadWorldFile(path string) ([6]float64, error) {
	var transform [6]float64

	raw, err := os.ReadFile(path)
	if err != nil {
		return transform, err
	}

	fields := strings.Fields(string(raw))
	if len(fields) < 6 {
		return transform, fmt.Errorf("preprocess: world file %s has %d fields, want 6", path, len(fields))
	}
	for i := 0; i < 6; i++ {
		transform[i], err = strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return transform, fmt.Errorf("preprocess: world file %s: %w", path, err)
		}
	}
	return transform, nil
}
