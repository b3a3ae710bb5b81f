package tundra

import (
	"fmt"
	"sort"

	"github.com/hajimehoshi/ebiten/v2"
)

// The engine keeps a process-wide registry of named Kage sources,
// compiled lazily on first use and torn down with the engine. Hosts
// register their material shaders next to the built-in ones.

// All shaders use //kage:unit pixels as required by Ebitengine.

// terrainShaderSrc is the default terrain material: it reassembles the
// height value packed into the atlas texture (see expandToRGBA) and tints
// by altitude, modulated by the vertex-stage shade term.
const terrainShaderSrc = `//kage:unit pixels
package main

var MinHeight float
var MaxHeight float

func Fragment(dst vec4, src vec2, color vec4) vec4 {
	c := imageSrc0At(src)
	// Height tiles pack the 16 bit value into R (low) and G (high).
	height := (c.r*255.0 + c.g*255.0*256.0) / 65535.0

	// color carries (morph, blend, shade, 1) from the vertex stream.
	shade := 0.6 + 0.4*height
	tint := vec3(0.35, 0.55, 0.30)*(1.0-height) + vec3(0.55, 0.45, 0.35)*height

	return vec4(tint*shade*color.b, 1)
}
`

// albedoShaderSrc samples a color attachment directly. It declares the
// shared uniform set even where unused; every terrain material receives
// the same bindings.
const albedoShaderSrc = `//kage:unit pixels
package main

var MinHeight float
var MaxHeight float

func Fragment(dst vec4, src vec2, color vec4) vec4 {
	c := imageSrc0At(src)
	return vec4(c.rgb*color.b, 1)
}
`

// ShaderRegistry is the process-wide shader source registry.
type ShaderRegistry struct {
	sources  map[string]string
	compiled map[string]*ebiten.Shader
}

var globalShaders = &ShaderRegistry{
	sources: map[string]string{
		"terrain": terrainShaderSrc,
		"albedo":  albedoShaderSrc,
	},
	compiled: map[string]*ebiten.Shader{},
}

// Shaders returns the global shader registry.
func Shaders() *ShaderRegistry {
	return globalShaders
}

// Register adds (or replaces) a named Kage source. Replacing a source
// drops its compiled shader so the next use recompiles.
func (r *ShaderRegistry) Register(name, source string) {
	r.sources[name] = source
	delete(r.compiled, name)
}

// Names lists the registered shader names, sorted.
func (r *ShaderRegistry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get compiles the named shader on first use.
// No sync.Once: shaders compile on the main thread only.
func (r *ShaderRegistry) Get(name string) (*ebiten.Shader, error) {
	if shader, ok := r.compiled[name]; ok {
		return shader, nil
	}
	source, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("tundra: shader %q not registered", name)
	}
	shader, err := ebiten.NewShader([]byte(source))
	if err != nil {
		return nil, fmt.Errorf("tundra: compile shader %q: %w", name, err)
	}
	r.compiled[name] = shader
	return shader, nil
}

// Dispose deallocates every compiled shader. Sources stay registered.
func (r *ShaderRegistry) Dispose() {
	for name, shader := range r.compiled {
		shader.Dispose()
		delete(r.compiled, name)
	}
}

// Material describes how the final tile list is shaded. The vertex stage
// (surface evaluation, displacement, morphing) is owned by the engine; the
// material supplies the fragment stage and the attachment it samples.
type Material struct {
	// Shader is the name of a registered Kage shader.
	Shader string
	// Attachment is the label of the attachment bound as source image 0.
	Attachment AttachmentLabel
	// Uniforms are passed through to the shader each draw.
	Uniforms map[string]any
}

// DefaultMaterial shades heights with the built-in terrain shader.
func DefaultMaterial() Material {
	return Material{Shader: "terrain", Attachment: AttachmentHeight}
}
