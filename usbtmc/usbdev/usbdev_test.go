package usbdev

import (
	"strings"
	"testing"

	"github.com/google/gousb"

	"github.com/ardnew/softtmc/pkg/usbid"
)

func setting(num, alt int, class, sub gousb.Class, proto gousb.Protocol) gousb.InterfaceSetting {
	return gousb.InterfaceSetting{
		Number:    num,
		Alternate: alt,
		Class:     class,
		SubClass:  sub,
		Protocol:  proto,
	}
}

func tmcDevice() *gousb.DeviceDesc {
	return &gousb.DeviceDesc{
		Bus:     1,
		Address: 7,
		Vendor:  0x0957,
		Product: 0x1755,
		Configs: map[int]gousb.ConfigDesc{
			1: {
				Number: 1,
				Interfaces: []gousb.InterfaceDesc{
					{Number: 0, AltSettings: []gousb.InterfaceSetting{
						setting(0, 0, gousb.ClassVendorSpec, 0, 0),
					}},
					{Number: 2, AltSettings: []gousb.InterfaceSetting{
						setting(2, 0, gousb.ClassApplication, 0x01, 0),
						setting(2, 1, gousb.ClassApplication, 0x03, 0x01),
					}},
				},
			},
		},
	}
}

func TestIsTMC(t *testing.T) {
	tests := []struct {
		name string
		alt  gousb.InterfaceSetting
		want bool
	}{
		{"usbtmc", setting(0, 0, gousb.ClassApplication, 0x03, 0), true},
		{"usb488", setting(0, 0, gousb.ClassApplication, 0x03, 0x01), true},
		{"dfu", setting(0, 0, gousb.ClassApplication, 0x01, 0), false},
		{"vendor", setting(0, 0, gousb.ClassVendorSpec, 0x03, 0), false},
	}
	for _, tt := range tests {
		if got := IsTMC(tt.alt); got != tt.want {
			t.Errorf("IsTMC(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFindInterface(t *testing.T) {
	ref, ok := FindInterface(tmcDevice())
	if !ok {
		t.Fatal("FindInterface() found nothing")
	}
	want := InterfaceRef{Config: 1, Interface: 2, Alternate: 1}
	if ref != want {
		t.Errorf("FindInterface() = %+v, want %+v", ref, want)
	}

	desc := tmcDevice()
	desc.Configs[2] = gousb.ConfigDesc{
		Number: 2,
		Interfaces: []gousb.InterfaceDesc{
			{Number: 0, AltSettings: []gousb.InterfaceSetting{
				setting(0, 0, gousb.ClassApplication, 0x03, 0),
			}},
		},
	}
	if ref, _ := FindInterface(desc); ref.Config != 1 {
		t.Errorf("FindInterface() config = %d, want lowest (1)", ref.Config)
	}

	if _, ok := FindInterface(&gousb.DeviceDesc{}); ok {
		t.Error("FindInterface(empty) = true")
	}
	if _, ok := FindInterface(nil); ok {
		t.Error("FindInterface(nil) = true")
	}
}

func TestDescribe(t *testing.T) {
	db := usbid.New()
	err := db.Parse(strings.NewReader("0957  Agilent Technologies, Inc.\n\t1755  34461A Digital Multimeter\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	desc := tmcDevice()
	ref, _ := FindInterface(desc)
	info := describe(desc, ref, db)

	want := Info{
		VID:       0x0957,
		PID:       0x1755,
		Bus:       1,
		Address:   7,
		Interface: 2,
		Protocol:  1,
		Name:      "Agilent Technologies, Inc. 34461A Digital Multimeter",
	}
	if info != want {
		t.Errorf("describe() = %+v, want %+v", info, want)
	}

	info.Serial = "MY123"
	const wantStr = "001:007 0957:1755 Agilent Technologies, Inc. 34461A Digital Multimeter (MY123)"
	if info.String() != wantStr {
		t.Errorf("String() = %q, want %q", info.String(), wantStr)
	}

	if got := describe(desc, ref, nil).Name; got != "0957:1755" {
		t.Errorf("describe(nil db).Name = %q, want hex IDs", got)
	}
}
