// Package fifo carries USBTMC bulk transfers over named pipes.
//
// It lets a simulated instrument and a host run as separate processes on
// one machine without USB hardware. Each instrument creates a unique
// subdirectory under a shared bus directory:
//
//	/tmp/tmc-bus/
//	└── device-{uuid}/
//	    ├── bulk_out    # host → device transfers
//	    └── bulk_in     # device → host transfers
//
// Every transfer is framed as [type, len_lo, len_hi, payload...]. Data
// frames carry bulk transfers. Control frames carry USBTMC class requests:
// the host sends [request, wLength] on bulk_out and the device answers on
// bulk_in with a result byte followed by the data stage. The directory
// exists while the instrument is attached; Close removes it.
//
//	// Instrument process
//	dev, err := fifo.Listen("/tmp/tmc-bus")
//	tr := usbtmc.NewTransport(dev, 4096)
//
//	// Host process
//	host, err := fifo.Dial(ctx, "/tmp/tmc-bus")
//	c := usbtmc.NewClient(host, 4096)
package fifo
