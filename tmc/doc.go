// Package tmc implements the command engine of a USBTMC instrument that
// drives a programmable-logic (PL) peripheral and its configuration flash.
//
// The engine sits between a USBTMC transport and the hardware. The transport
// delivers host messages and reply requests from its own goroutine; the
// application drives the engine from a main loop. Flash transfers, PL
// transmits and pulls only run from the main loop, so arrivals never wait on
// a busy flash or a slow pull. The PL status read and enable behind
// :PL:ACTIVE are the exceptions: they are immediate register accesses made
// while the command is received.
//
// # Transactions
//
// Exactly one transaction is in flight at a time. A command either completes
// synchronously while it is received, or arms the single deferred operation
// slot. Each call to [Engine.Process] runs at most one deferred operation,
// which may arm a successor (a pull completion poll re-arms itself until the
// PL reports ready). A reply is sent exactly once, when the result is ready
// and the host has asked for it, in either order:
//
//	Idle -> Running -> Ready -> Idle
//
// A reply request with nothing pending is answered immediately with an empty
// reply. A command received while another is pending is counted as an
// overrun and still processed.
//
// # Command Set
//
// Keywords are matched case-sensitively as prefixes. Device commands may
// carry a leading ':'. Binary payloads use the "#<n>#<data>" block form.
//
//	*IDN?                        identification string
//	:PL:ACTIVE?                  PL status as an ASCII digit
//	:PL:ACTIVE#<0|1>             disable or enable the PL (no reply)
//	:PL:TX#<n>#<data>            send data to the PL, reply with its response
//	:PL:PULL#<words>#<data>      send data, then pull words*4 bytes from the PL
//	:PL:FLASH:WR#<data>          transceive data on the flash bus
//	:PL:FLASH:RD#<n>#<data>      transceive data plus n read-back bytes
//	:PL:FLASH:WAIT#<bound>       poll flash status, reply with the status byte
//	:PL:FLASH:PROG#<bound>#<data> wait, then write-enable and program data
//	:TEST:ECHO#<n>#<data>        reply with data
//
// PL:FLASH commands are only accepted while the PL is inactive.
//
// # Errors
//
// The engine never returns errors. Malformed commands, empty reads, clipped
// replies and overruns are counted (see [Stats]); hardware failures produce
// an empty reply.
//
// # Usage
//
//	t := usbtmc.NewTransport(pipe, 4096)
//	eng := tmc.New(t.TxData(), t, pl, flash,
//	    tmc.WithIdentity(tmc.Identity{Vendor: "ACME", Product: "PL1"}))
//	t.SetHandler(eng)
//
//	go t.Run(ctx)
//	eng.Run(ctx, time.Millisecond)
package tmc
