// Package hal defines the hardware contracts used by the instrument command
// engine.
//
// The engine never touches registers. It drives two peripherals through
// narrow transactional interfaces:
//
//   - [PL]: the programmable-logic peripheral, which accepts command bytes
//     and can fill a 4-byte aligned buffer through a DMA-style pull
//   - [Flash]: the SPI NOR configuration flash, reached with full-duplex
//     transfers and a bounded busy-wait on the status register
//
// Platform code implements these interfaces on real hardware; package
// [github.com/ardnew/softtmc/hal/sim] provides simulated implementations for
// tests and for the tmcsim tool.
//
// # Flash Bus Ownership
//
// The flash bus is shared between the MCU and the PL. The engine only issues
// flash transfers while [PL.Status] reports [PLInactive].
package hal
