// Package usbid looks up vendor, product and interface class names in the
// usb.ids database.
//
// The database is the plain-text list maintained by the linux-usb project
// and shipped with usbutils. Vendors start a line with a 4-digit hex ID,
// their products follow indented by one tab. The class section ("C xx")
// names device and interface classes and their subclasses.
//
// # Usage
//
//	db := usbid.New()
//	if err := db.Load(); err != nil {
//	    // names fall back to hex IDs
//	}
//	fmt.Println(db.Describe(0x0957, 0x1755))
//	fmt.Println(db.LookupClass(0xFE, 0x03)) // "Application Specific Interface", "Test and Measurement"
//
// A database can also be parsed from any reader with [Database.Parse].
//
// All methods are safe for concurrent use.
package usbid
