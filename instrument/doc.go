// Package instrument assembles a complete simulated instrument: the
// command engine, simulated PL and flash, and a front end that carries
// commands to it, either a USBTMC transport on any pipe or a line bridge.
package instrument
