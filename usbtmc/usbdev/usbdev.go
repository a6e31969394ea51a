package usbdev

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/ardnew/softtmc/pkg"
	"github.com/ardnew/softtmc/pkg/usbid"
	"github.com/ardnew/softtmc/usbtmc"
)

// DefaultTimeout bounds each bulk transfer when the caller's context has no
// deadline.
const DefaultTimeout = 5 * time.Second

// Control request type for USBTMC class requests to the interface.
const requestTypeClassInterfaceIn = gousb.ControlIn | gousb.ControlClass | gousb.ControlInterface

// Device is a USBTMC interface on a real USB device. It implements
// usbtmc.Pipe over the interface's bulk endpoints.
type Device struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	intf  *gousb.Interface
	epIn  *gousb.InEndpoint
	epOut *gousb.OutEndpoint

	ifaceNum   int
	packetSize int
	timeout    time.Duration

	mutex sync.Mutex
}

// Open opens the first device matching vid:pid and claims its USBTMC
// interface.
func Open(vid, pid uint16) (*Device, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("open %04x:%04x: %w", vid, pid, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("device %04x:%04x: %w", vid, pid, pkg.ErrNoDevice)
	}

	// Not supported on every platform.
	if err := dev.SetAutoDetach(true); err != nil {
		pkg.LogDebug(pkg.ComponentTransport, "auto detach unavailable", "error", err)
	}

	d := &Device{
		ctx:     ctx,
		dev:     dev,
		timeout: DefaultTimeout,
	}
	if err := d.claim(); err != nil {
		d.Close()
		return nil, err
	}

	pkg.LogInfo(pkg.ComponentTransport, "USBTMC device opened",
		"vid", fmt.Sprintf("%04x", vid),
		"pid", fmt.Sprintf("%04x", pid),
		"interface", d.ifaceNum,
		"packetSize", d.packetSize)
	return d, nil
}

// claim finds and claims the USBTMC interface and its bulk endpoints.
func (d *Device) claim() error {
	num, ok := FindInterface(d.dev.Desc)
	if !ok {
		return fmt.Errorf("no USBTMC interface: %w", pkg.ErrNoDevice)
	}
	d.ifaceNum = num.Interface

	cfg, err := d.dev.Config(num.Config)
	if err != nil {
		return fmt.Errorf("set config %d: %w", num.Config, err)
	}
	d.cfg = cfg

	intf, err := cfg.Interface(num.Interface, num.Alternate)
	if err != nil {
		return fmt.Errorf("claim interface %d: %w", num.Interface, err)
	}
	d.intf = intf

	var inNum, outNum int
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn {
			inNum = ep.Number
			d.packetSize = ep.MaxPacketSize
		} else {
			outNum = ep.Number
		}
	}
	if inNum == 0 || outNum == 0 {
		return fmt.Errorf("bulk endpoints not found: %w", pkg.ErrInvalidEndpoint)
	}

	if d.epIn, err = intf.InEndpoint(inNum); err != nil {
		return fmt.Errorf("open IN endpoint: %w", err)
	}
	if d.epOut, err = intf.OutEndpoint(outNum); err != nil {
		return fmt.Errorf("open OUT endpoint: %w", err)
	}
	return nil
}

// SetTimeout sets the per-transfer timeout used when the context has no
// deadline.
func (d *Device) SetTimeout(timeout time.Duration) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.timeout = timeout
}

func (d *Device) transferContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	d.mutex.Lock()
	timeout := d.timeout
	d.mutex.Unlock()
	return context.WithTimeout(ctx, timeout)
}

// Read implements usbtmc.Pipe.
func (d *Device) Read(ctx context.Context, buf []byte) (int, error) {
	ctx, cancel := d.transferContext(ctx)
	defer cancel()

	n, err := d.epIn.ReadContext(ctx, buf)
	if err != nil {
		return n, fmt.Errorf("bulk in: %w", err)
	}
	return n, nil
}

// Write implements usbtmc.Pipe.
func (d *Device) Write(ctx context.Context, data []byte) (int, error) {
	ctx, cancel := d.transferContext(ctx)
	defer cancel()

	n, err := d.epOut.WriteContext(ctx, data)
	if err != nil {
		return n, fmt.Errorf("bulk out: %w", err)
	}
	return n, nil
}

// Control implements usbtmc.Controller with a class, interface-recipient,
// device-to-host request. gousb control transfers are not cancellable, so
// ctx is only checked before the transfer.
func (d *Device) Control(ctx context.Context, request uint8, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := d.dev.Control(requestTypeClassInterfaceIn, request, 0, uint16(d.ifaceNum), buf)
	if err != nil {
		return n, fmt.Errorf("control request %d: %w", request, err)
	}
	return n, nil
}

// Close releases USB resources.
func (d *Device) Close() error {
	if d.intf != nil {
		d.intf.Close()
		d.intf = nil
	}
	if d.cfg != nil {
		d.cfg.Close()
		d.cfg = nil
	}
	if d.dev != nil {
		d.dev.Close()
		d.dev = nil
	}
	if d.ctx != nil {
		d.ctx.Close()
		d.ctx = nil
	}
	return nil
}

// InterfaceRef locates a USBTMC interface in a device's descriptors.
type InterfaceRef struct {
	Config    int
	Interface int
	Alternate int
}

// FindInterface returns the first USBTMC interface described by desc,
// searching configurations in ascending order.
func FindInterface(desc *gousb.DeviceDesc) (InterfaceRef, bool) {
	if desc == nil {
		return InterfaceRef{}, false
	}
	best := InterfaceRef{Config: -1}
	for num, cfg := range desc.Configs {
		if best.Config >= 0 && num > best.Config {
			continue
		}
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if IsTMC(alt) {
					best = InterfaceRef{Config: num, Interface: intf.Number, Alternate: alt.Alternate}
					break
				}
			}
			if best.Config == num {
				break
			}
		}
	}
	return best, best.Config >= 0
}

// IsTMC reports whether an interface setting is a USBTMC interface.
func IsTMC(alt gousb.InterfaceSetting) bool {
	return alt.Class == gousb.ClassApplication && alt.SubClass == gousb.Class(usbtmc.SubclassTMC)
}

// Info describes an attached USBTMC instrument.
type Info struct {
	VID       uint16
	PID       uint16
	Bus       int
	Address   int
	Interface int
	Protocol  uint8
	Serial    string
	Name      string
}

// String returns a one-line description.
func (i Info) String() string {
	s := fmt.Sprintf("%03d:%03d %04x:%04x %s", i.Bus, i.Address, i.VID, i.PID, i.Name)
	if i.Serial != "" {
		s += " (" + i.Serial + ")"
	}
	return s
}

// List enumerates attached devices that expose a USBTMC interface. Names
// come from the device strings, falling back to db.
func List(db *usbid.Database) ([]Info, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		_, ok := FindInterface(desc)
		return ok
	})
	// OpenDevices returns the devices it could open along with the first error.
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	infos := make([]Info, 0, len(devs))
	for _, dev := range devs {
		ref, _ := FindInterface(dev.Desc)
		info := describe(dev.Desc, ref, db)
		if serial, err := dev.SerialNumber(); err == nil {
			info.Serial = serial
		}
		manufacturer, _ := dev.Manufacturer()
		product, _ := dev.Product()
		if manufacturer != "" || product != "" {
			info.Name = manufacturer + " " + product
		}
		infos = append(infos, info)
		dev.Close()
	}
	return infos, nil
}

// describe builds Info from descriptors alone.
func describe(desc *gousb.DeviceDesc, ref InterfaceRef, db *usbid.Database) Info {
	info := Info{
		VID:       uint16(desc.Vendor),
		PID:       uint16(desc.Product),
		Bus:       desc.Bus,
		Address:   desc.Address,
		Interface: ref.Interface,
	}
	if cfg, ok := desc.Configs[ref.Config]; ok {
		for _, intf := range cfg.Interfaces {
			if intf.Number != ref.Interface {
				continue
			}
			for _, alt := range intf.AltSettings {
				if alt.Alternate == ref.Alternate {
					info.Protocol = uint8(alt.Protocol)
				}
			}
		}
	}
	if db != nil {
		info.Name = db.Describe(info.VID, info.PID)
	} else {
		info.Name = fmt.Sprintf("%04x:%04x", info.VID, info.PID)
	}
	return info
}

// Compile-time interface checks
var (
	_ usbtmc.Pipe       = (*Device)(nil)
	_ usbtmc.Controller = (*Device)(nil)
)
