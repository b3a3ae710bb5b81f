// Command btpp preprocesses georeferenced rasters into tundra terrain
// datasets: reproject onto the cube sphere (or a plane), split into
// border-padded tiles, downsample the LOD pyramid, stitch seams and fill
// no-data gaps.
//
// Usage:
//
//	btpp <src_paths...> <terrain_path> [flags]
//
// Exit codes: 0 success, 1 usage error, 2 I/O error, 3 invalid source.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/phanxgames/tundra"
	"github.com/phanxgames/tundra/preprocess"
)

const (
	exitUsage         = 1
	exitIO            = 2
	exitInvalidSource = 3
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "btpp: %v\n", err)
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(exitUsage)
	}
}

// exitError carries the process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "btpp <src_paths...> <terrain_path>",
		Short: "Preprocess raster datasets into tundra terrains",
		Long: `btpp builds a terrain dataset from one or more georeferenced rasters:
it reprojects them onto the terrain shape, splits them into border-padded
tiles, downsamples the coarser levels, stitches tile seams and fills
no-data gaps. The resulting directory is loaded directly by the tundra
runtime.

Examples:
  # A planar terrain from a single heightmap
  btpp heightmap.tif ./terrain --shape plane --side-length 1000 --lod-count 4

  # Earth from a global DEM, writing validity masks
  btpp earth_dem.tif ./earth --shape spheroid --lod-count 8 --create-mask

Worker counts honor RAYON_NUM_THREADS and GDAL_NUM_THREADS.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  false,
		SilenceErrors: true,
		RunE:          runPreprocess,
	}

	flags := cmd.Flags()
	flags.String("temp-path", "", "staging directory for tile output")
	flags.BoolP("overwrite", "o", false, "replace an existing terrain")
	flags.String("no-data", "source", `no-data value: "source" or "value:F"`)
	flags.String("data-type", "source", "source data type: source|u8|u16|i16|f32")
	flags.Float64("fill-radius", 16, "no-data fill radius in pixels (0 disables)")
	flags.Bool("create-mask", false, "write validity masks into the pixel LSBs")
	flags.Uint32("lod-count", 4, "levels of detail in the tile pyramid")
	flags.String("attachment-label", "height", "attachment to produce")
	flags.Uint32P("texture-size", "t", 516, "tile size in pixels, borders included")
	flags.Uint32P("border-size", "b", 2, "border width in pixels")
	flags.Uint32P("mip-level-count", "m", 1, "mip levels per tile")
	flags.String("format", "ru16", "pixel format: ru16|rf32|rgb8|rgba8")
	flags.String("shape", "plane", "terrain shape: plane|sphere|spheroid")
	flags.Float64("side-length", 1000, "plane side length")
	flags.Float64("radius", 6371000, "sphere radius")
	flags.Float64("major-axis", tundra.WGS84.MajorAxis, "spheroid major axis")
	flags.Float64("minor-axis", tundra.WGS84.MinorAxis, "spheroid minor axis")
	flags.Float64("min-height", 0, "minimum terrain height")
	flags.Float64("max-height", 9000, "maximum terrain height")
	flags.Int("concurrency", 0, "worker count (0 = auto)")
	flags.Bool("quiet", false, "suppress progress output")

	viper.SetEnvPrefix("btpp")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(flags)

	return cmd
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(args)
	if err != nil {
		return exitError{code: exitUsage, err: err}
	}

	quiet := viper.GetBool("quiet")
	var bar *progressbar.ProgressBar
	lastStage := ""
	if !quiet {
		config.Progress = func(stage string, done, total int) {
			if stage != lastStage {
				if bar != nil {
					_ = bar.Finish()
				}
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription(stage),
					progressbar.OptionClearOnFinish(),
				)
				lastStage = stage
			}
			_ = bar.Set(done)
		}
	}

	terrainConfig, err := preprocess.Run(config)
	if err != nil {
		return exitError{code: classifyError(err), err: err}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d tiles to %s\n",
		len(terrainConfig.Tiles), terrainConfig.Path)
	return nil
}

func buildConfig(args []string) (*preprocess.Config, error) {
	sources := args[:len(args)-1]
	terrainPath := args[len(args)-1]

	noData, err := parseNoData(viper.GetString("no-data"))
	if err != nil {
		return nil, err
	}
	if err := validateDataType(viper.GetString("data-type")); err != nil {
		return nil, err
	}

	format, err := tundra.ParseAttachmentFormat(viper.GetString("format"))
	if err != nil {
		return nil, err
	}

	shape, err := parseShape()
	if err != nil {
		return nil, err
	}

	return &preprocess.Config{
		SourcePaths: sources,
		TerrainPath: terrainPath,
		TempPath:    viper.GetString("temp-path"),
		Overwrite:   viper.GetBool("overwrite"),
		NoData:      noData,
		FillRadius:  viper.GetFloat64("fill-radius"),
		CreateMask:  viper.GetBool("create-mask"),
		Shape:       shape,
		LODCount:    viper.GetUint32("lod-count"),
		Attachment: tundra.AttachmentConfig{
			Label:         tundra.AttachmentLabel(viper.GetString("attachment-label")),
			TextureSize:   viper.GetUint32("texture-size"),
			BorderSize:    viper.GetUint32("border-size"),
			MipLevelCount: viper.GetUint32("mip-level-count"),
			Format:        format,
			Mask:          viper.GetBool("create-mask"),
		},
		MinHeight:   float32(viper.GetFloat64("min-height")),
		MaxHeight:   float32(viper.GetFloat64("max-height")),
		Concurrency: viper.GetInt("concurrency"),
	}, nil
}

// parseNoData accepts "source" or "value:F".
func parseNoData(s string) (float64, error) {
	if s == "source" {
		return preprocess.NoDataFromSource(), nil
	}
	if value, ok := strings.CutPrefix(s, "value:"); ok {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("btpp: invalid no-data value %q", value)
		}
		return v, nil
	}
	return 0, fmt.Errorf(`btpp: no-data must be "source" or "value:F", got %q`, s)
}

func validateDataType(s string) error {
	switch s {
	case "source", "u8", "u16", "i16", "f32":
		return nil
	default:
		return fmt.Errorf("btpp: unknown data type %q", s)
	}
}

func parseShape() (tundra.TerrainShape, error) {
	switch shape := viper.GetString("shape"); shape {
	case "plane":
		return tundra.PlaneShape{SideLength: viper.GetFloat64("side-length")}, nil
	case "sphere":
		return tundra.SphereShape{Radius: viper.GetFloat64("radius")}, nil
	case "spheroid":
		return tundra.SpheroidShape{
			MajorAxis: viper.GetFloat64("major-axis"),
			MinorAxis: viper.GetFloat64("minor-axis"),
		}, nil
	default:
		return nil, fmt.Errorf("btpp: unknown shape %q", shape)
	}
}

// classifyError maps pipeline failures onto the documented exit codes.
func classifyError(err error) int {
	message := err.Error()
	switch {
	case strings.Contains(message, "decode") || strings.Contains(message, "covers no terrain"):
		return exitInvalidSource
	case errors.Is(err, os.ErrNotExist) || strings.Contains(message, "open source") ||
		strings.Contains(message, "write"):
		return exitIO
	default:
		return exitUsage
	}
}
