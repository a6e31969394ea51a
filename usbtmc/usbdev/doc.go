// Package usbdev connects the USBTMC client to real instruments through
// libusb (github.com/google/gousb).
//
// [Open] claims the first USBTMC interface (class 0xFE, subclass 0x03) of a
// device and exposes its bulk endpoints as a [usbtmc.Pipe]:
//
//	dev, err := usbdev.Open(0x0957, 0x1755)
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	c := usbtmc.NewClient(dev, 4096)
//	idn, err := c.Query(ctx, []byte("*IDN?"), 0)
//
// [List] enumerates attached USBTMC instruments.
package usbdev
