package tundra

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// The terrain config is stored as a RON record at {path}/config.tc.ron so
// that datasets stay interchangeable with other engines reading the same
// layout. The codec below covers exactly the subset of RON the record
// uses: records, lists, idents, strings and numbers.

// TerrainConfigFile is the name of the config record below a terrain
// directory.
const TerrainConfigFile = "config.tc.ron"

// SaveTerrainConfig writes the config record of a terrain dataset.
func SaveTerrainConfig(config *TerrainConfig) error {
	var b strings.Builder
	b.WriteString("(\n")
	b.WriteString("    shape: " + encodeShape(config.Shape) + ",\n")
	fmt.Fprintf(&b, "    path: %q,\n", config.Path)
	fmt.Fprintf(&b, "    lod_count: %d,\n", config.LODCount)
	fmt.Fprintf(&b, "    min_height: %s,\n", formatRONFloat(float64(config.MinHeight)))
	fmt.Fprintf(&b, "    max_height: %s,\n", formatRONFloat(float64(config.MaxHeight)))

	b.WriteString("    attachments: [\n")
	for _, a := range config.Attachments {
		fmt.Fprintf(&b,
			"        (label: %q, texture_size: %d, border_size: %d, mip_level_count: %d, format: %s, mask: %t),\n",
			a.Label, a.TextureSize, a.BorderSize, a.MipLevelCount,
			strings.ToUpper(a.Format.String()), a.Mask)
	}
	b.WriteString("    ],\n")

	b.WriteString("    tiles: [\n")
	for _, t := range config.Tiles {
		fmt.Fprintf(&b, "        (face: %d, lod: %d, x: %d, y: %d),\n", t.Face, t.LOD, t.X, t.Y)
	}
	b.WriteString("    ],\n")
	b.WriteString(")\n")

	return os.WriteFile(config.Path+"/"+TerrainConfigFile, []byte(b.String()), 0o644)
}

// LoadTerrainConfig reads the config record below the terrain directory.
func LoadTerrainConfig(path string) (*TerrainConfig, error) {
	raw, err := os.ReadFile(path + "/" + TerrainConfigFile)
	if err != nil {
		return nil, fmt.Errorf("tundra: read terrain config: %w", err)
	}
	config, err := ParseTerrainConfig(raw)
	if err != nil {
		return nil, err
	}
	config.Path = path
	return config, nil
}

// ParseTerrainConfig parses the RON config record.
func ParseTerrainConfig(raw []byte) (*TerrainConfig, error) {
	p := &ronParser{input: string(raw)}
	value, err := p.parseValue()
	if err != nil {
		return nil, fmt.Errorf("tundra: parse terrain config: %w", err)
	}

	record, ok := value.(ronRecord)
	if !ok {
		return nil, fmt.Errorf("tundra: terrain config is not a record")
	}

	config := &TerrainConfig{}
	if config.Shape, err = decodeShape(record.field("shape")); err != nil {
		return nil, err
	}
	config.Path, _ = record.field("path").(string)
	config.LODCount = uint32(ronInt(record.field("lod_count")))
	config.MinHeight = float32(ronFloat(record.field("min_height")))
	config.MaxHeight = float32(ronFloat(record.field("max_height")))

	attachments, _ := record.field("attachments").(ronList)
	for _, item := range attachments {
		a, ok := item.(ronRecord)
		if !ok {
			continue
		}
		label, _ := a.field("label").(string)
		format, err := ParseAttachmentFormat(strings.ToLower(ronIdent(a.field("format"))))
		if err != nil {
			return nil, err
		}
		mask, _ := a.field("mask").(bool)
		config.Attachments = append(config.Attachments, AttachmentConfig{
			Label:         AttachmentLabel(label),
			TextureSize:   uint32(ronInt(a.field("texture_size"))),
			BorderSize:    uint32(ronInt(a.field("border_size"))),
			MipLevelCount: uint32(ronInt(a.field("mip_level_count"))),
			Format:        format,
			Mask:          mask,
		})
	}

	tiles, _ := record.field("tiles").(ronList)
	for _, item := range tiles {
		t, ok := item.(ronRecord)
		if !ok {
			continue
		}
		config.Tiles = append(config.Tiles, TileCoordinate{
			Face: uint8(ronInt(t.field("face"))),
			LOD:  uint32(ronInt(t.field("lod"))),
			X:    int32(ronInt(t.field("x"))),
			Y:    int32(ronInt(t.field("y"))),
		})
	}

	return config, nil
}

func encodeShape(shape TerrainShape) string {
	switch s := shape.(type) {
	case PlaneShape:
		return fmt.Sprintf("Plane(side_length: %s)", formatRONFloat(s.SideLength))
	case SphereShape:
		return fmt.Sprintf("Sphere(radius: %s)", formatRONFloat(s.Radius))
	case SpheroidShape:
		return fmt.Sprintf("Spheroid(major_axis: %s, minor_axis: %s)",
			formatRONFloat(s.MajorAxis), formatRONFloat(s.MinorAxis))
	default:
		return "Plane(side_length: 1.0)"
	}
}

func decodeShape(value any) (TerrainShape, error) {
	variant, ok := value.(ronVariant)
	if !ok {
		return nil, fmt.Errorf("tundra: terrain config shape is not a variant")
	}
	fields := variant.fields
	switch variant.name {
	case "Plane":
		return PlaneShape{SideLength: ronFloat(fields.field("side_length"))}, nil
	case "Sphere":
		return SphereShape{Radius: ronFloat(fields.field("radius"))}, nil
	case "Spheroid":
		return SpheroidShape{
			MajorAxis: ronFloat(fields.field("major_axis")),
			MinorAxis: ronFloat(fields.field("minor_axis")),
		}, nil
	default:
		return nil, fmt.Errorf("tundra: unknown terrain shape %q", variant.name)
	}
}

// formatRONFloat always keeps a decimal point, as RON floats require.
func formatRONFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// --- Minimal RON reader ---

type ronField struct {
	name  string
	value any
}

type ronRecord []ronField

func (r ronRecord) field(name string) any {
	for _, f := range r {
		if f.name == name {
			return f.value
		}
	}
	return nil
}

type ronList []any

type ronVariant struct {
	name   string
	fields ronRecord
}

func ronInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func ronFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func ronIdent(v any) string {
	if s, ok := v.(ronVariant); ok {
		return s.name
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

type ronParser struct {
	input string
	pos   int
}

func (p *ronParser) skipSpace() {
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ',' {
			p.pos++
			continue
		}
		if c == '/' && p.pos+1 < len(p.input) && p.input[p.pos+1] == '/' {
			for p.pos < len(p.input) && p.input[p.pos] != '\n' {
				p.pos++
			}
			continue
		}
		break
	}
}

func (p *ronParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *ronParser) parseValue() (any, error) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == '(':
		return p.parseRecord()
	case c == '[':
		return p.parseList()
	case c == '"':
		return p.parseString()
	case c == '-' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	case isIdentStart(c):
		return p.parseIdentValue()
	default:
		return nil, fmt.Errorf("unexpected character %q at %d", c, p.pos)
	}
}

func (p *ronParser) parseRecord() (ronRecord, error) {
	p.pos++ // (
	var record ronRecord
	for {
		p.skipSpace()
		if p.peek() == ')' {
			p.pos++
			return record, nil
		}
		if p.peek() == 0 {
			return nil, io.ErrUnexpectedEOF
		}

		name := p.readIdent()
		p.skipSpace()
		if p.peek() != ':' {
			return nil, fmt.Errorf("expected ':' after field %q", name)
		}
		p.pos++

		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		record = append(record, ronField{name: name, value: value})
	}
}

func (p *ronParser) parseList() (ronList, error) {
	p.pos++ // [
	var list ronList
	for {
		p.skipSpace()
		if p.peek() == ']' {
			p.pos++
			return list, nil
		}
		if p.peek() == 0 {
			return nil, io.ErrUnexpectedEOF
		}
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		list = append(list, value)
	}
}

func (p *ronParser) parseString() (string, error) {
	p.pos++ // "
	start := p.pos
	for p.pos < len(p.input) && p.input[p.pos] != '"' {
		p.pos++
	}
	if p.pos >= len(p.input) {
		return "", io.ErrUnexpectedEOF
	}
	s := p.input[start:p.pos]
	p.pos++
	return s, nil
}

func (p *ronParser) parseNumber() (any, error) {
	start := p.pos
	isFloat := false
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == '.' || c == 'e' || c == 'E' {
			isFloat = true
		}
		if c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E' || (c >= '0' && c <= '9') {
			p.pos++
			continue
		}
		break
	}
	text := p.input[start:p.pos]
	if isFloat {
		v, err := strconv.ParseFloat(text, 64)
		return v, err
	}
	v, err := strconv.ParseInt(text, 10, 64)
	return v, err
}

// parseIdentValue handles bools and enum variants, with or without a field
// record.
func (p *ronParser) parseIdentValue() (any, error) {
	name := p.readIdent()
	switch name {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	p.skipSpace()
	if p.peek() == '(' {
		fields, err := p.parseRecord()
		if err != nil {
			return nil, err
		}
		return ronVariant{name: name, fields: fields}, nil
	}
	return ronVariant{name: name}, nil
}

func (p *ronParser) readIdent() string {
	start := p.pos
	for p.pos < len(p.input) && isIdentPart(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// --- Binary tile format ---

// binTileHeaderSize is the fixed header in front of the pixel payload:
// little-endian width, height and mip count (u32 each) followed by pixel
// size and channel count bytes.
const binTileHeaderSize = 14

// EncodeBinTile serializes attachment data into the .bin tile format.
func EncodeBinTile(data *AttachmentData) []byte {
	config := data.Config
	out := make([]byte, binTileHeaderSize+len(data.Pixels))
	putU32LE(out[0:], config.TextureSize)
	putU32LE(out[4:], config.TextureSize)
	putU32LE(out[8:], config.MipLevelCount)
	out[12] = byte(config.Format.PixelSize() / config.Format.ChannelCount())
	out[13] = byte(config.Format.ChannelCount())
	copy(out[binTileHeaderSize:], data.Pixels)
	return out
}

// DecodeBinTile parses the .bin tile format and checks it against the
// attachment layout.
func DecodeBinTile(config AttachmentConfig, raw []byte) (*AttachmentData, error) {
	if len(raw) < binTileHeaderSize {
		return nil, fmt.Errorf("tundra: bin tile truncated: %d bytes", len(raw))
	}
	width := getU32LE(raw[0:])
	height := getU32LE(raw[4:])
	mips := getU32LE(raw[8:])
	pixelSize := uint32(raw[12])
	channels := uint32(raw[13])

	if width != config.TextureSize || height != config.TextureSize {
		return nil, fmt.Errorf("tundra: bin tile is %dx%d, want %d", width, height, config.TextureSize)
	}
	if channels != config.Format.ChannelCount() ||
		pixelSize*channels != config.Format.PixelSize() {
		return nil, fmt.Errorf("tundra: bin tile pixel layout %dx%d does not match format %s",
			pixelSize, channels, config.Format)
	}

	payload := raw[binTileHeaderSize:]
	level0Size := int(width) * int(height) * int(config.Format.PixelSize())
	if len(payload) < level0Size {
		return nil, fmt.Errorf("tundra: bin tile payload is %d bytes, want at least %d",
			len(payload), level0Size)
	}

	data, err := NewAttachmentData(config, payload[:level0Size])
	if err != nil {
		return nil, err
	}
	if mips >= config.MipLevelCount && len(payload) >= data.Config.DataSize() {
		copy(data.Pixels, payload[:data.Config.DataSize()])
	}
	return data, nil
}

func putU32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func bytesReader(raw []byte) *bytes.Reader {
	return bytes.NewReader(raw)
}

func float32ToLE(v float32, b []byte) {
	uint32ToBytes(math.Float32bits(v), b)
}
