package tundra

import (
	"fmt"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

// ---- Debug stats and helpers -----------------------------------------------

// globalDebug gates the chatty diagnostics (per-stage timings, slot
// warnings). Off by default.
var globalDebug bool

// SetDebug toggles debug diagnostics for the whole engine.
func SetDebug(enabled bool) {
	globalDebug = enabled
}

// debugStats holds per-frame stage timings and streaming metrics.
// Only populated when debug is enabled.
type debugStats struct {
	requestTime time.Duration
	loaderTime  time.Duration
	adjustTime  time.Duration
	extractTime time.Duration
	prepassTime time.Duration

	uploads  int
	pressure uint64
}

// debugLog prints stage timings and streaming stats to stderr.
func (t *Terrain) debugLog(stats debugStats) {
	if !globalDebug {
		return
	}
	total := stats.requestTime + stats.loaderTime + stats.adjustTime +
		stats.extractTime + stats.prepassTime
	_, _ = fmt.Fprintf(os.Stderr,
		"[tundra] requests: %v | loader: %v | adjust: %v | extract: %v | prepass: %v | total: %v\n",
		stats.requestTime, stats.loaderTime, stats.adjustTime,
		stats.extractTime, stats.prepassTime, total)
	_, _ = fmt.Fprintf(os.Stderr,
		"[tundra] uploads: %d | pressure: %d\n", stats.uploads, stats.pressure)
}

// DebugString summarizes the terrain's streaming state for an overlay.
func (t *Terrain) DebugString() string {
	resident := 0
	for i := range t.Atlas.slots {
		if t.Atlas.slots[i].state == slotResident {
			resident++
		}
	}

	s := fmt.Sprintf("frame %d\natlas %d/%d resident, pressure %d",
		t.frame, resident, t.Atlas.Capacity(), t.Atlas.Pressure())

	for i, view := range t.views {
		stats := view.Prepass().Stats()
		s += fmt.Sprintf("\nview %d: %d tiles (%d culled, %d refined)",
			i, stats.Kept, stats.Culled, stats.Refined)
	}
	return s
}

// DrawDebugOverlay prints the streaming summary and the frame rate into
// the top-left corner of dst.
func (t *Terrain) DrawDebugOverlay(dst *ebiten.Image) {
	ebitenutil.DebugPrint(dst, fmt.Sprintf("FPS %.1f TPS %.1f\n%s",
		ebiten.ActualFPS(), ebiten.ActualTPS(), t.DebugString()))
}
