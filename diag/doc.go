// Package diag serves the engine's diagnostic counters over HTTP.
//
// GET /api/stats returns one JSON snapshot. /ws upgrades to a websocket
// that receives a snapshot on connect and then every interval.
package diag
