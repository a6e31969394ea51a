// Package sim provides simulated PL and flash peripherals.
//
// The simulators implement [hal.PL] and [hal.Flash] closely enough for the
// command engine's sequencers to be exercised end to end:
//
//   - [Flash] models a SPI NOR part: JEDEC ID, status register with busy
//     and write-enable-latch bits, read, fast read, page program (AND
//     semantics, page wrap), sector, block and chip erase. Program and erase
//     cycles stay busy for a configurable number of status polls.
//   - [PL] accepts command transfers and performs DMA-style pulls that
//     require a 4-byte aligned destination and complete after a configurable
//     number of status polls.
//
// Faults can be injected into the PL with [PL.SetFaults] to drive the
// engine's failure paths.
//
// # Usage
//
//	flash := sim.NewFlash(sim.DefaultFlashConfig())
//	pl := sim.NewPL(sim.PLConfig{PullPolls: 2})
//	eng := tmc.New(buf, transport, pl, flash)
package sim
