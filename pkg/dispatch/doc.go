// Package dispatch routes decoded CoT events to downstream consumers
// and maintains a short-term position history per unit.
//
// Classification is type-driven and ordered: GeoChat messages first,
// then waypoint/marker events, everything else as a generic
// position/state event. Server pings are consumed silently.
//
// The position history caps memory growth from high-frequency,
// low-movement feeds: a new sample is recorded only when the unit has
// moved more than a minimum distance or a minimum time has elapsed,
// and each unit's history is trimmed by count and age on every
// update.
package dispatch
