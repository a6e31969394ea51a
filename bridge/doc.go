// Package bridge carries instrument commands over a line-oriented stream.
//
// It lets the command engine be driven from a serial terminal or a pipe
// instead of USB. Each line read is one command message; the bridge asks
// for the reply immediately and writes it back as one line. In text mode
// lines are raw bytes, so replies that contain a newline are ambiguous; hex
// mode encodes both directions as hex digits.
//
//	port, err := bridge.OpenSerial("/dev/ttyUSB0", 115200)
//	b := bridge.New(port, 4096, bridge.ModeHex)
//	eng := tmc.New(b.TxData(), b, pl, flash)
//	b.SetHandler(eng)
//	go eng.Run(ctx, time.Millisecond)
//	err = b.Run(ctx)
package bridge
