package tundra

import (
	"errors"
	"log"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

// AtlasIndex identifies one slot of the tile atlas.
type AtlasIndex = uint32

// SentinelAtlasIndex marks a tile-tree entry without a resident tile; the
// renderer falls back to the parent LOD when it encounters it.
const SentinelAtlasIndex AtlasIndex = math.MaxUint32

// ErrAtlasExhausted is returned by Request when every slot is referenced.
// Callers treat it as a transient miss and reuse the parent
// LOD until a slot frees up.
var ErrAtlasExhausted = errors.New("tundra: tile atlas exhausted")

type slotState uint8

const (
	slotUnallocated slotState = iota
	slotLoading
	slotResident
)

type atlasSlot struct {
	state      slotState
	refcount   uint32
	lastUsed   uint64
	loading    uint32 // attachments still in flight
	coordinate TileCoordinate
}

// atlasAttachment is the per-attachment storage of the atlas: the CPU copy
// of every resident tile plus the GPU array texture. Ebitengine has no
// array textures, so slices pack into a near-square grid image; see
// sliceRect.
type atlasAttachment struct {
	config  AttachmentConfig
	tiles   []*AttachmentData
	texture *ebiten.Image
	perRow  int
}

type atlasUpload struct {
	index AtlasIndex
	label AttachmentLabel
}

// PendingTile is a tile the atlas has allocated a slot for and now waits on
// the loader to deliver.
type PendingTile struct {
	Coordinate TileCoordinate
	Label      AttachmentLabel
	Index      AtlasIndex
}

// LoadedTile is the loader's delivery for one (coordinate, attachment)
// pair.
type LoadedTile struct {
	Coordinate TileCoordinate
	Label      AttachmentLabel
	Index      AtlasIndex
	Data       *AttachmentData
}

// TileAtlas is the bounded pool of resident tiles shared by all views of a
// terrain. Slots are allocated on request, reference counted by the tile
// trees, and evicted least recently used once their refcount reaches zero.
//
// Atlas state is mutated only by the main thread between frames; the
// loader communicates through the pending queue and TileLoaded delivery.
type TileAtlas struct {
	slots       []atlasSlot
	index       map[TileCoordinate]AtlasIndex
	attachments map[AttachmentLabel]*atlasAttachment
	labels      []AttachmentLabel

	toLoad  []PendingTile
	uploads []atlasUpload

	frame    uint64
	pressure uint64

	// existing marks coordinates present on disk; requests for tiles the
	// terrain config does not list resolve to zero data immediately.
	existing map[TileCoordinate]struct{}
}

// NewTileAtlas creates an atlas with the given slot capacity and one array
// texture per attachment.
func NewTileAtlas(capacity uint32, attachments []AttachmentConfig, tiles []TileCoordinate) (*TileAtlas, error) {
	if capacity == 0 {
		return nil, errors.New("tundra: tile atlas capacity must be positive")
	}
	if len(attachments) == 0 {
		return nil, errors.New("tundra: tile atlas needs at least one attachment")
	}

	atlas := &TileAtlas{
		slots:       make([]atlasSlot, capacity),
		index:       make(map[TileCoordinate]AtlasIndex),
		attachments: make(map[AttachmentLabel]*atlasAttachment),
		existing:    make(map[TileCoordinate]struct{}, len(tiles)),
	}

	for _, config := range attachments {
		if err := config.Validate(); err != nil {
			return nil, err
		}
		if _, ok := atlas.attachments[config.Label]; ok {
			return nil, errors.New("tundra: duplicate attachment " + string(config.Label))
		}
		perRow := sliceGridWidth(capacity)
		rows := (int(capacity) + perRow - 1) / perRow
		atlas.attachments[config.Label] = &atlasAttachment{
			config: config,
			tiles:  make([]*AttachmentData, capacity),
			texture: ebiten.NewImage(
				int(config.TextureSize)*perRow,
				int(config.TextureSize)*rows,
			),
			perRow: perRow,
		}
		atlas.labels = append(atlas.labels, config.Label)
	}

	for _, coordinate := range tiles {
		atlas.existing[coordinate] = struct{}{}
	}

	return atlas, nil
}

// Capacity returns the number of slots.
func (a *TileAtlas) Capacity() uint32 {
	return uint32(len(a.slots))
}

// Labels returns the attachment labels in registration order.
func (a *TileAtlas) Labels() []AttachmentLabel {
	return a.labels
}

// Attachment returns the config of the given attachment.
func (a *TileAtlas) Attachment(label AttachmentLabel) (AttachmentConfig, bool) {
	attachment, ok := a.attachments[label]
	if !ok {
		return AttachmentConfig{}, false
	}
	return attachment.config, true
}

// Texture returns the GPU atlas texture of an attachment.
func (a *TileAtlas) Texture(label AttachmentLabel) *ebiten.Image {
	attachment, ok := a.attachments[label]
	if !ok {
		return nil
	}
	return attachment.texture
}

// SliceOrigin returns the top-left pixel of a slot's slice within the
// attachment texture.
func (a *TileAtlas) SliceOrigin(label AttachmentLabel, index AtlasIndex) (int, int) {
	attachment, ok := a.attachments[label]
	if !ok {
		return 0, 0
	}
	rect := sliceRect(index, int(attachment.config.TextureSize), attachment.perRow)
	return rect.Min.X, rect.Min.Y
}

// BeginFrame advances the atlas frame counter used for LRU bookkeeping.
func (a *TileAtlas) BeginFrame() {
	a.frame++
}

// Pressure returns the number of requests that failed because no slot was
// evictable. A steadily rising value means the atlas is undersized for the
// current view configuration.
func (a *TileAtlas) Pressure() uint64 {
	return a.pressure
}

// Request allocates (or re-references) the slot holding the tile at the
// given coordinate across all attachments. Requesting a coordinate that
// already has a slot returns the same index and increments its refcount.
// The returned slot may still be loading; IsResident tells them apart.
func (a *TileAtlas) Request(coordinate TileCoordinate) (AtlasIndex, error) {
	if index, ok := a.index[coordinate]; ok {
		slot := &a.slots[index]
		slot.refcount++
		slot.lastUsed = a.frame
		return index, nil
	}

	index, err := a.allocate()
	if err != nil {
		a.pressure++
		return SentinelAtlasIndex, err
	}

	slot := &a.slots[index]
	*slot = atlasSlot{
		state:      slotLoading,
		refcount:   1,
		lastUsed:   a.frame,
		coordinate: coordinate,
	}
	a.index[coordinate] = index

	if _, onDisk := a.existing[coordinate]; !onDisk {
		// Not part of the terrain dataset; resolve to zero data without
		// touching the loader.
		for _, label := range a.labels {
			a.TileLoaded(LoadedTile{
				Coordinate: coordinate,
				Label:      label,
				Index:      index,
				Data:       ZeroAttachmentData(a.attachments[label].config),
			})
		}
		return index, nil
	}

	slot.loading = uint32(len(a.labels))
	for _, label := range a.labels {
		a.toLoad = append(a.toLoad, PendingTile{
			Coordinate: coordinate,
			Label:      label,
			Index:      index,
		})
	}

	return index, nil
}

// Release decrements the refcount of a slot. Slots stay resident after
// their last release and remain reusable by a later Request until evicted.
func (a *TileAtlas) Release(index AtlasIndex) {
	if index == SentinelAtlasIndex || index >= uint32(len(a.slots)) {
		return
	}
	slot := &a.slots[index]
	if slot.refcount == 0 {
		if globalDebug {
			log.Printf("tundra: release of unreferenced atlas slot %d", index)
		}
		return
	}
	slot.refcount--
}

// Touch refreshes the LRU stamp of a slot that is still in use this frame.
func (a *TileAtlas) Touch(index AtlasIndex) {
	if index == SentinelAtlasIndex || index >= uint32(len(a.slots)) {
		return
	}
	a.slots[index].lastUsed = a.frame
}

// IsResident reports whether every attachment of the slot has been loaded.
func (a *TileAtlas) IsResident(index AtlasIndex) bool {
	if index == SentinelAtlasIndex || index >= uint32(len(a.slots)) {
		return false
	}
	return a.slots[index].state == slotResident
}

// Coordinate returns the tile coordinate held by a slot.
func (a *TileAtlas) Coordinate(index AtlasIndex) (TileCoordinate, bool) {
	if index == SentinelAtlasIndex || index >= uint32(len(a.slots)) {
		return TileCoordinate{}, false
	}
	slot := &a.slots[index]
	if slot.state == slotUnallocated {
		return TileCoordinate{}, false
	}
	return slot.coordinate, true
}

// Lookup returns the slot holding the given coordinate, if any.
func (a *TileAtlas) Lookup(coordinate TileCoordinate) (AtlasIndex, bool) {
	index, ok := a.index[coordinate]
	return index, ok
}

// TileData returns the CPU copy of a resident tile attachment. Used for
// height sampling under the viewer and for vertex displacement.
func (a *TileAtlas) TileData(index AtlasIndex, label AttachmentLabel) *AttachmentData {
	if index == SentinelAtlasIndex || index >= uint32(len(a.slots)) {
		return nil
	}
	attachment, ok := a.attachments[label]
	if !ok {
		return nil
	}
	return attachment.tiles[index]
}

// NextPending pops the next tile waiting for the loader. Returns false when
// the queue is empty.
func (a *TileAtlas) NextPending() (PendingTile, bool) {
	if len(a.toLoad) == 0 {
		return PendingTile{}, false
	}
	tile := a.toLoad[len(a.toLoad)-1]
	a.toLoad = a.toLoad[:len(a.toLoad)-1]
	return tile, true
}

// TileLoaded stores a delivered tile and schedules its GPU upload. Stale
// deliveries (the slot was evicted or re-used while the load was in
// flight) are dropped; a cancelled request wastes at most the one load.
func (a *TileAtlas) TileLoaded(tile LoadedTile) {
	if tile.Index >= uint32(len(a.slots)) {
		return
	}
	slot := &a.slots[tile.Index]
	if slot.state == slotUnallocated || slot.coordinate != tile.Coordinate {
		return
	}

	attachment, ok := a.attachments[tile.Label]
	if !ok {
		return
	}
	attachment.tiles[tile.Index] = tile.Data
	a.uploads = append(a.uploads, atlasUpload{index: tile.Index, label: tile.Label})

	if slot.state == slotLoading {
		if slot.loading > 0 {
			slot.loading--
		}
		if slot.loading == 0 {
			slot.state = slotResident
		}
	}
}

// PollUploads writes every tile delivered since the last call into the
// attachment textures. Called once per frame from the render phase; the
// batched WritePixels calls are the only GPU-side atlas mutation.
func (a *TileAtlas) PollUploads() int {
	count := len(a.uploads)
	for _, upload := range a.uploads {
		attachment := a.attachments[upload.label]
		data := attachment.tiles[upload.index]
		if data == nil {
			continue
		}

		size := int(attachment.config.TextureSize)
		slice := attachment.texture.SubImage(sliceRect(upload.index, size, attachment.perRow)).(*ebiten.Image)
		slice.WritePixels(expandToRGBA(attachment.config.Format, data.MipLevel(0)))
	}
	a.uploads = a.uploads[:0]
	return count
}

// allocate finds a free slot, evicting the least recently used
// unreferenced slot (resident or still loading) if necessary.
func (a *TileAtlas) allocate() (AtlasIndex, error) {
	for i := range a.slots {
		if a.slots[i].state == slotUnallocated {
			return AtlasIndex(i), nil
		}
	}

	best := SentinelAtlasIndex
	var bestFrame uint64 = math.MaxUint64
	for i := range a.slots {
		slot := &a.slots[i]
		if slot.state != slotUnallocated && slot.refcount == 0 && slot.lastUsed < bestFrame {
			best = AtlasIndex(i)
			bestFrame = slot.lastUsed
		}
	}
	if best == SentinelAtlasIndex {
		return SentinelAtlasIndex, ErrAtlasExhausted
	}

	a.evict(best)
	return best, nil
}

func (a *TileAtlas) evict(index AtlasIndex) {
	slot := &a.slots[index]
	delete(a.index, slot.coordinate)
	for _, attachment := range a.attachments {
		attachment.tiles[index] = nil
	}
	*slot = atlasSlot{}
}
