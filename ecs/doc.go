// Package ecs provides ECS adapters for tundra.
//
// Terrains and their views live as [Donburi] entities: [SpawnTerrain] and
// [SpawnView] create them, [Update] drives the streaming pipeline of every
// terrain once per tick, and atlas pressure is published to
// [PressureEventType] so gameplay systems can react to an undersized
// atlas.
//
// Usage:
//
//	world := donburi.NewWorld()
//	terrainEntry := ecs.SpawnTerrain(world, terrain)
//	ecs.SpawnView(world, terrainEntry, view)
//
//	// each tick:
//	ecs.Update(world)
//
// [Donburi]: https://github.com/yohamta/donburi
package ecs
