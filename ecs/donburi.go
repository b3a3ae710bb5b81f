package ecs

import (
	"github.com/phanxgames/tundra"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"
	"github.com/yohamta/donburi/filter"
)

// TerrainData is the component payload of a terrain entity.
type TerrainData struct {
	Terrain *tundra.Terrain

	lastPressure uint64
}

// ViewData is the component payload of a view entity. The cyclic
// terrain/view relation stays index-based: views refer to their terrain
// entity, never the other way around.
type ViewData struct {
	View    *tundra.TerrainView
	Terrain donburi.Entity
}

// Terrain is the Donburi component type of terrain entities.
var Terrain = donburi.NewComponentType[TerrainData]()

// View is the Donburi component type of terrain view entities.
var View = donburi.NewComponentType[ViewData]()

// PressureEvent reports atlas pressure growth on a terrain: requests that
// failed because no slot was evictable since the previous tick.
type PressureEvent struct {
	Terrain donburi.Entity
	// Failed is the number of failed requests since the last tick.
	Failed uint64
}

// PressureEventType publishes PressureEvents. Subscribe to it to react to
// an undersized atlas (larger atlas, shorter load distances, telemetry).
var PressureEventType = events.NewEventType[PressureEvent]()

// SpawnTerrain creates a terrain entity.
func SpawnTerrain(world donburi.World, terrain *tundra.Terrain) *donburi.Entry {
	entry := world.Entry(world.Create(Terrain))
	Terrain.SetValue(entry, TerrainData{Terrain: terrain})
	return entry
}

// SpawnView creates a view entity bound to a terrain entity.
func SpawnView(world donburi.World, terrainEntry *donburi.Entry, view *tundra.TerrainView) *donburi.Entry {
	entry := world.Entry(world.Create(View))
	View.SetValue(entry, ViewData{View: view, Terrain: terrainEntry.Entity()})
	return entry
}

// Update runs the streaming pipeline of every terrain entity and
// publishes pressure deltas. Call once per game tick, after camera
// systems wrote the view poses and before rendering.
func Update(world donburi.World) {
	query := donburi.NewQuery(filter.Contains(Terrain))
	query.Each(world, func(entry *donburi.Entry) {
		data := Terrain.Get(entry)
		data.Terrain.Update()

		if pressure := data.Terrain.Atlas.Pressure(); pressure > data.lastPressure {
			PressureEventType.Publish(world, PressureEvent{
				Terrain: entry.Entity(),
				Failed:  pressure - data.lastPressure,
			})
			data.lastPressure = pressure
		}
	})

	PressureEventType.ProcessEvents(world)
}

// ViewsOf collects the view entities bound to a terrain entity.
func ViewsOf(world donburi.World, terrain donburi.Entity) []*tundra.TerrainView {
	var views []*tundra.TerrainView

	query := donburi.NewQuery(filter.Contains(View))
	query.Each(world, func(entry *donburi.Entry) {
		data := View.Get(entry)
		if data.Terrain == terrain {
			views = append(views, data.View)
		}
	})
	return views
}
