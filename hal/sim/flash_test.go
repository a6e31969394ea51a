package sim

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/ardnew/softtmc/hal"
	"github.com/ardnew/softtmc/pkg"
)

func testFlash() *Flash {
	return NewFlash(FlashConfig{
		Size:         8192,
		PageSize:     256,
		SectorSize:   4096,
		BlockSize:    8192,
		ProgramPolls: 2,
		ErasePolls:   4,
	})
}

func writeEnable(t *testing.T, f *Flash) {
	t.Helper()
	if err := f.Transceive([]byte{hal.FlashCmdWriteEnable}); err != nil {
		t.Fatalf("Transceive(WREN) error = %v", err)
	}
	if f.Status()&hal.FlashStatusWEL == 0 {
		t.Fatal("WEL not set after write enable")
	}
}

func TestNewFlashErased(t *testing.T) {
	f := testFlash()
	buf := make([]byte, 16)
	if _, err := f.ReadAt(buf, 100); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	for i, b := range buf {
		if b != 0xFF {
			t.Fatalf("byte %d = %#02x, want 0xFF", i, b)
		}
	}
}

func TestNewFlashDefaults(t *testing.T) {
	want := DefaultFlashConfig()
	want.ProgramPolls, want.ErasePolls = 0, 0
	f := NewFlash(FlashConfig{})
	if f.Config() != want {
		t.Errorf("Config() = %+v, want %+v", f.Config(), want)
	}

	// Zero poll counts mean a program never reports busy.
	writeEnable(t, f)
	f.Transceive([]byte{hal.FlashCmdPageProgram, 0, 0, 0, 0x55})
	if st := f.Wait(1); st&hal.FlashStatusBusy != 0 {
		t.Errorf("status after program = %#02x, want not busy", st)
	}
}

func TestFlashConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     FlashConfig
		wantErr bool
	}{
		{"defaults", FlashConfig{}, false},
		{"small part", FlashConfig{Size: 8192, PageSize: 256, SectorSize: 4096, BlockSize: 8192}, false},
		{"size not power of two", FlashConfig{Size: 1000, PageSize: 256}, true},
		{"page not power of two", FlashConfig{PageSize: 200}, true},
		{"sector not power of two", FlashConfig{SectorSize: 3000}, true},
		{"block not power of two", FlashConfig{BlockSize: 60000}, true},
		{"block larger than size", FlashConfig{Size: 32768}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, pkg.ErrInvalidParameter) {
				t.Errorf("Validate() error = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestFlashIrregularGeometry(t *testing.T) {
	f := NewFlash(FlashConfig{Size: 1000, PageSize: 256, SectorSize: 512, BlockSize: 512})

	// Program the last byte of the array and run past it.
	writeEnable(t, f)
	f.Transceive([]byte{hal.FlashCmdPageProgram, 0x00, 0x03, 0xE7, 0x11, 0x22, 0x33})

	var b [1]byte
	f.ReadAt(b[:], 999)
	if b[0] != 0x11 {
		t.Errorf("byte 999 = %#02x, want 0x11", b[0])
	}

	writeEnable(t, f)
	f.Transceive([]byte{hal.FlashCmdSectorErase, 0x00, 0x03, 0xE7})
	f.ReadAt(b[:], 999)
	if b[0] != 0xFF {
		t.Errorf("byte 999 after erase = %#02x, want 0xFF", b[0])
	}
}

func TestFlashReadID(t *testing.T) {
	f := testFlash()
	buf := []byte{hal.FlashCmdReadID, 0, 0, 0, 0}
	if err := f.Transceive(buf); err != nil {
		t.Fatalf("Transceive() error = %v", err)
	}
	want := []byte{0xFF, 0xEF, 0x40, 0x14, 0xFF}
	if !bytes.Equal(buf, want) {
		t.Errorf("ReadID = % x, want % x", buf, want)
	}
}

func TestFlashProgramAndRead(t *testing.T) {
	f := testFlash()
	writeEnable(t, f)

	prog := []byte{hal.FlashCmdPageProgram, 0x00, 0x01, 0x00, 0xDE, 0xAD, 0xBE, 0xEF}
	if err := f.Transceive(prog); err != nil {
		t.Fatalf("Transceive(PP) error = %v", err)
	}
	if f.Programs() != 1 {
		t.Errorf("Programs() = %d, want 1", f.Programs())
	}

	s := f.Status()
	if s&hal.FlashStatusBusy == 0 {
		t.Error("busy bit not set after program")
	}
	if s&hal.FlashStatusWEL != 0 {
		t.Error("WEL still set after program")
	}

	// ProgramPolls=2: two busy reads, then idle.
	if got := f.Wait(1); got&hal.FlashStatusBusy == 0 {
		t.Errorf("Wait(1) = %#02x, want busy", got)
	}
	if got := f.Wait(10); got != 0 {
		t.Errorf("Wait(10) = %#02x, want 0", got)
	}
	if got := f.Wait(0); got != 0 {
		t.Errorf("Wait(0) = %#02x, want 0", got)
	}

	rd := []byte{hal.FlashCmdRead, 0x00, 0x01, 0x00, 0, 0, 0, 0}
	if err := f.Transceive(rd); err != nil {
		t.Fatalf("Transceive(READ) error = %v", err)
	}
	want := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xDE, 0xAD, 0xBE, 0xEF}
	if !bytes.Equal(rd, want) {
		t.Errorf("READ = % x, want % x", rd, want)
	}

	frd := []byte{hal.FlashCmdFastRead, 0x00, 0x01, 0x01, 0x00, 0, 0}
	if err := f.Transceive(frd); err != nil {
		t.Fatalf("Transceive(FAST_READ) error = %v", err)
	}
	if frd[5] != 0xAD || frd[6] != 0xBE {
		t.Errorf("FAST_READ data = % x, want ad be", frd[5:])
	}
}

func TestFlashProgramRequiresWEL(t *testing.T) {
	f := testFlash()
	prog := []byte{hal.FlashCmdPageProgram, 0, 0, 0, 0x00}
	if err := f.Transceive(prog); err != nil {
		t.Fatalf("Transceive() error = %v", err)
	}
	if f.Programs() != 0 {
		t.Errorf("Programs() = %d, want 0 without write enable", f.Programs())
	}
	var b [1]byte
	f.ReadAt(b[:], 0)
	if b[0] != 0xFF {
		t.Errorf("byte 0 = %#02x, want 0xFF", b[0])
	}
}

func TestFlashProgramPageWrap(t *testing.T) {
	f := testFlash()
	writeEnable(t, f)

	// Start 2 bytes before the end of page 0; the 3rd and 4th bytes wrap.
	prog := []byte{hal.FlashCmdPageProgram, 0x00, 0x00, 0xFE, 1, 2, 3, 4}
	f.Transceive(prog)

	var tail, head [2]byte
	f.ReadAt(tail[:], 0xFE)
	f.ReadAt(head[:], 0x00)
	if tail != [2]byte{1, 2} || head != [2]byte{3, 4} {
		t.Errorf("page wrap: tail=% x head=% x", tail, head)
	}
}

func TestFlashIgnoresCommandsWhileBusy(t *testing.T) {
	f := testFlash()
	writeEnable(t, f)
	f.Transceive([]byte{hal.FlashCmdSectorErase, 0, 0, 0})

	// Write enable during erase is ignored.
	f.Transceive([]byte{hal.FlashCmdWriteEnable})
	if f.Status()&hal.FlashStatusWEL != 0 {
		t.Error("WEL set while busy")
	}

	st := []byte{hal.FlashCmdReadStatus, 0, 0}
	f.Transceive(st)
	if st[1]&hal.FlashStatusBusy == 0 || st[2]&hal.FlashStatusBusy == 0 {
		t.Errorf("status reads = % x, want busy", st[1:])
	}
}

func TestFlashErase(t *testing.T) {
	f := testFlash()
	if err := f.Load(bytes.NewReader(bytes.Repeat([]byte{0x00}, 8192))); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	writeEnable(t, f)
	f.Transceive([]byte{hal.FlashCmdSectorErase, 0x00, 0x10, 0x20})
	f.Wait(100)

	// Address 0x1020 lies in the second sector, bytes 4096-8191.
	var b [2]byte
	f.ReadAt(b[:], 4095)
	if b != [2]byte{0x00, 0xFF} {
		t.Errorf("sector boundary = % x, want 00 ff", b)
	}
	var last [1]byte
	f.ReadAt(last[:], 8191)
	if last[0] != 0xFF {
		t.Errorf("sector end = %#02x, want 0xFF", last[0])
	}
	f.ReadAt(last[:], 0)
	if last[0] != 0x00 {
		t.Errorf("first sector = %#02x, want 0x00", last[0])
	}

	writeEnable(t, f)
	f.Transceive([]byte{hal.FlashCmdChipErase})
	if f.Wait(1000)&hal.FlashStatusBusy != 0 {
		t.Fatal("chip erase did not finish")
	}
	f.ReadAt(b[:], 0)
	if b != [2]byte{0xFF, 0xFF} {
		t.Errorf("after chip erase = % x, want ff ff", b)
	}
}

func TestFlashLoadSave(t *testing.T) {
	f := testFlash()
	img := []byte("bitstream")
	if err := f.Load(bytes.NewReader(img)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var out bytes.Buffer
	if err := f.Save(&out); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if out.Len() != 8192 {
		t.Fatalf("Save() wrote %d bytes, want 8192", out.Len())
	}
	if !bytes.HasPrefix(out.Bytes(), img) || out.Bytes()[len(img)] != 0xFF {
		t.Errorf("saved image = %q...", out.Bytes()[:len(img)+1])
	}

	err := f.Load(bytes.NewReader(make([]byte, 8193)))
	if !errors.Is(err, pkg.ErrBufferTooSmall) {
		t.Errorf("Load(oversized) error = %v, want ErrBufferTooSmall", err)
	}
}

func TestFlashReadAtBounds(t *testing.T) {
	f := testFlash()
	var b [4]byte
	if _, err := f.ReadAt(b[:], 8192); err != io.EOF {
		t.Errorf("ReadAt(end) error = %v, want EOF", err)
	}
	if n, err := f.ReadAt(b[:], 8190); n != 2 || err != io.EOF {
		t.Errorf("ReadAt(tail) = %d, %v, want 2, EOF", n, err)
	}
}
