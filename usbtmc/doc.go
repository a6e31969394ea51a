// Package usbtmc implements USB Test and Measurement Class bulk framing.
//
// Every bulk transfer starts with a 12-byte header and is padded to a
// multiple of 4 bytes. The host sends commands as DEV_DEP_MSG_OUT messages
// and asks for a response with REQUEST_DEV_DEP_MSG_IN; the device answers
// with a DEV_DEP_MSG_IN transfer carrying the same bTag.
//
// # Device Side
//
// [Transport] reads Bulk-OUT transfers from a [Pipe], reassembles command
// messages and hands them to a [Handler]. Replies are staged in
// [Transport.TxData] and sent with [Transport.Reply], which makes the
// transport a reply primitive for the command engine:
//
//	t := usbtmc.NewTransport(pipe, 4096)
//	eng := tmc.New(t.TxData(), t, pl, flash)
//	t.SetHandler(eng)
//	go t.Run(ctx)
//
// # Host Side
//
// [Client] writes commands and reads responses, cycling bTag through 1-255
// and checking that each response answers the request that asked for it.
//
// # Pipes
//
// [Loopback] connects a client and a transport in memory. Package usbdev
// provides a pipe backed by real USB endpoints, and package fifo one backed
// by named pipes so both sides can run as separate processes.
package usbtmc
