package sim

import (
	"fmt"
	"io"
	"sync"

	"github.com/ardnew/softtmc/hal"
	"github.com/ardnew/softtmc/pkg"
)

// misoIdle is the byte read on MISO while the flash is not driving it.
const misoIdle = 0xFF

// FlashConfig describes the geometry and timing of a simulated SPI NOR flash.
type FlashConfig struct {
	Size       int     // Total size in bytes
	PageSize   int     // Program page size
	SectorSize int     // Smallest erase unit
	BlockSize  int     // Large erase unit
	JEDECID    [3]byte // Manufacturer, memory type, capacity

	// ProgramPolls is how many status reads report busy after a page program.
	ProgramPolls uint32

	// ErasePolls is how many status reads report busy after a sector or block
	// erase. Chip erase takes 16 times longer.
	ErasePolls uint32
}

// DefaultFlashConfig returns a 1MB W25Q80-style part.
func DefaultFlashConfig() FlashConfig {
	return FlashConfig{
		Size:         1 << 20,
		PageSize:     256,
		SectorSize:   4096,
		BlockSize:    65536,
		JEDECID:      [3]byte{0xEF, 0x40, 0x14},
		ProgramPolls: 3,
		ErasePolls:   20,
	}
}

// Flash is an in-memory SPI NOR flash implementing hal.Flash.
type Flash struct {
	cfg FlashConfig

	mem       []byte
	status    uint8
	busyPolls uint32

	// Statistics
	transfers int
	programs  int

	mutex sync.Mutex
}

// withDefaults fills zero geometry fields from DefaultFlashConfig. Zero poll
// counts are kept and mean program and erase never report busy.
func (c FlashConfig) withDefaults() FlashConfig {
	def := DefaultFlashConfig()
	if c.Size <= 0 {
		c.Size = def.Size
	}
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	if c.SectorSize <= 0 {
		c.SectorSize = def.SectorSize
	}
	if c.BlockSize <= 0 {
		c.BlockSize = def.BlockSize
	}
	if c.JEDECID == ([3]byte{}) {
		c.JEDECID = def.JEDECID
	}
	return c
}

// Validate reports whether the geometry, after defaults, is one a SPI NOR
// part can have: every size a power of two and the array a whole number of
// pages, sectors and blocks.
func (c FlashConfig) Validate() error {
	c = c.withDefaults()
	units := []struct {
		name string
		n    int
	}{
		{"size", c.Size},
		{"page size", c.PageSize},
		{"sector size", c.SectorSize},
		{"block size", c.BlockSize},
	}
	for _, u := range units {
		if u.n&(u.n-1) != 0 {
			return fmt.Errorf("flash %s %d is not a power of two: %w", u.name, u.n, pkg.ErrInvalidParameter)
		}
		if u.n > c.Size {
			return fmt.Errorf("flash %s %d exceeds size %d: %w", u.name, u.n, c.Size, pkg.ErrInvalidParameter)
		}
	}
	return nil
}

// NewFlash creates an erased flash with the given configuration. Zero
// geometry fields take their values from DefaultFlashConfig; zero poll
// counts mean program and erase complete immediately. Geometry that fails
// Validate is still addressed safely but does not behave like a real part.
func NewFlash(cfg FlashConfig) *Flash {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "irregular flash geometry", "error", err)
	}
	f := &Flash{
		cfg: cfg,
		mem: make([]byte, cfg.Size),
	}
	fill(f.mem, misoIdle)
	return f
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

// Config returns the flash configuration.
func (f *Flash) Config() FlashConfig {
	return f.cfg
}

// Transceive implements hal.Flash.
func (f *Flash) Transceive(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.transfers++
	op := buf[0]

	// Only status and ID reads are accepted while a program or erase runs.
	if f.status&hal.FlashStatusBusy != 0 &&
		op != hal.FlashCmdReadStatus && op != hal.FlashCmdReadID {
		pkg.LogDebug(pkg.ComponentHAL, "flash command ignored while busy", "op", op)
		fill(buf, misoIdle)
		return nil
	}

	switch op {
	case hal.FlashCmdReadStatus:
		buf[0] = misoIdle
		for i := 1; i < len(buf); i++ {
			buf[i] = f.poll()
		}

	case hal.FlashCmdReadID:
		buf[0] = misoIdle
		for i := 1; i < len(buf); i++ {
			if i <= len(f.cfg.JEDECID) {
				buf[i] = f.cfg.JEDECID[i-1]
			} else {
				buf[i] = misoIdle
			}
		}

	case hal.FlashCmdWriteEnable:
		f.status |= hal.FlashStatusWEL
		fill(buf, misoIdle)

	case hal.FlashCmdWriteDisable:
		f.status &^= hal.FlashStatusWEL
		fill(buf, misoIdle)

	case hal.FlashCmdRead:
		f.read(buf, 4)

	case hal.FlashCmdFastRead:
		f.read(buf, 5)

	case hal.FlashCmdPageProgram:
		f.program(buf)

	case hal.FlashCmdSectorErase:
		f.erase(buf, f.cfg.SectorSize, f.cfg.ErasePolls)

	case hal.FlashCmdBlockErase:
		f.erase(buf, f.cfg.BlockSize, f.cfg.ErasePolls)

	case hal.FlashCmdChipErase, hal.FlashCmdChipErase2:
		if f.status&hal.FlashStatusWEL != 0 {
			fill(f.mem, misoIdle)
			f.setBusy(f.cfg.ErasePolls * 16)
		}
		fill(buf, misoIdle)

	default:
		pkg.LogDebug(pkg.ComponentHAL, "unsupported flash opcode", "op", op)
		fill(buf, misoIdle)
	}

	return nil
}

// address decodes the 24-bit address following the opcode.
func (f *Flash) address(buf []byte) (int, bool) {
	if len(buf) < 4 {
		return 0, false
	}
	a := int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3])
	return a % f.cfg.Size, true
}

// read fills buf[header:] from memory, wrapping at the end of the array.
func (f *Flash) read(buf []byte, header int) {
	a, ok := f.address(buf)
	if !ok || len(buf) < header {
		fill(buf, misoIdle)
		return
	}
	fill(buf[:header], misoIdle)
	for i := header; i < len(buf); i++ {
		buf[i] = f.mem[a]
		a = (a + 1) % f.cfg.Size
	}
}

// program ANDs buf[4:] into the addressed page. Data past the end of the
// page wraps to the page start.
func (f *Flash) program(buf []byte) {
	a, ok := f.address(buf)
	if ok && f.status&hal.FlashStatusWEL != 0 {
		page := a - a%f.cfg.PageSize
		off := a - page
		for _, b := range buf[4:] {
			f.mem[(page+off)%f.cfg.Size] &= b
			off = (off + 1) % f.cfg.PageSize
		}
		f.programs++
		f.setBusy(f.cfg.ProgramPolls)
	}
	fill(buf, misoIdle)
}

func (f *Flash) erase(buf []byte, unit int, polls uint32) {
	a, ok := f.address(buf)
	if ok && f.status&hal.FlashStatusWEL != 0 {
		start := a - a%unit
		end := start + unit
		if end > len(f.mem) {
			end = len(f.mem)
		}
		fill(f.mem[start:end], misoIdle)
		f.setBusy(polls)
	}
	fill(buf, misoIdle)
}

// setBusy starts a program or erase cycle. WEL clears when the cycle starts.
func (f *Flash) setBusy(polls uint32) {
	f.status &^= hal.FlashStatusWEL
	if polls == 0 {
		return
	}
	f.status |= hal.FlashStatusBusy
	f.busyPolls = polls
}

// poll returns the status register and advances the busy countdown.
func (f *Flash) poll() uint8 {
	s := f.status
	if f.busyPolls > 0 {
		f.busyPolls--
		if f.busyPolls == 0 {
			f.status &^= hal.FlashStatusBusy
		}
	}
	return s
}

// Wait implements hal.Flash. A bound of zero still reads the status once.
func (f *Flash) Wait(bound uint32) uint8 {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	s := f.poll()
	for i := uint32(1); i < bound && s&hal.FlashStatusBusy != 0; i++ {
		s = f.poll()
	}
	return s
}

// Status returns the status register without advancing the busy countdown.
func (f *Flash) Status() uint8 {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.status
}

// ReadAt implements io.ReaderAt over the flash array.
func (f *Flash) ReadAt(p []byte, off int64) (int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if off < 0 || off >= int64(len(f.mem)) {
		return 0, io.EOF
	}
	n := copy(p, f.mem[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Load replaces the flash contents with an image read from r. Bytes past
// the end of the image are left erased.
func (f *Flash) Load(r io.Reader) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	fill(f.mem, misoIdle)
	n, err := io.ReadFull(r, f.mem)
	switch err {
	case nil:
		// Image fills the array; anything left in r is too much.
		var extra [1]byte
		if m, _ := r.Read(extra[:]); m > 0 {
			return fmt.Errorf("flash image larger than %d bytes: %w", len(f.mem), pkg.ErrBufferTooSmall)
		}
	case io.EOF, io.ErrUnexpectedEOF:
	default:
		return fmt.Errorf("load flash image: %w", err)
	}
	pkg.LogDebug(pkg.ComponentHAL, "flash image loaded", "bytes", n)
	return nil
}

// Save writes the full flash contents to w.
func (f *Flash) Save(w io.Writer) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if _, err := w.Write(f.mem); err != nil {
		return fmt.Errorf("save flash image: %w", err)
	}
	return nil
}

// Transfers returns the number of Transceive calls.
func (f *Flash) Transfers() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.transfers
}

// Programs returns the number of accepted page programs.
func (f *Flash) Programs() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.programs
}

// Compile-time interface check
var _ hal.Flash = (*Flash)(nil)
