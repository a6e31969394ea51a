package usbid

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/ardnew/softtmc/pkg"
)

// DefaultPaths lists the standard locations for the USB ID database.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// Database holds vendor, product and class names.
type Database struct {
	vendors    map[uint16]string
	products   map[uint32]string // VID<<16 | PID
	classes    map[uint8]string
	subclasses map[uint16]string // class<<8 | subclass
	paths      []string
	loaded     bool
	mutex      sync.RWMutex
}

// New creates an empty database that loads from DefaultPaths.
func New(paths ...string) *Database {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	return &Database{
		vendors:    make(map[uint16]string),
		products:   make(map[uint32]string),
		classes:    make(map[uint8]string),
		subclasses: make(map[uint16]string),
		paths:      paths,
	}
}

// Load parses the first database file found in the search paths. Later
// calls do nothing once a file has been parsed.
func (db *Database) Load() error {
	db.mutex.RLock()
	loaded := db.loaded
	db.mutex.RUnlock()
	if loaded {
		return nil
	}

	for _, path := range db.paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		defer f.Close()
		if err := db.Parse(f); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}
	return fmt.Errorf("usb.ids not found in %v: %w", db.paths, pkg.ErrNotSupported)
}

// section is the part of the file being parsed.
type section uint8

const (
	sectionNone section = iota
	sectionVendor
	sectionClass
)

// Parse reads database entries from r, adding to any already present.
func (db *Database) Parse(r io.Reader) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	var (
		sec   section
		vid   uint16
		class uint8
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		depth := 0
		for depth < len(line) && line[depth] == '\t' {
			depth++
		}
		line = line[depth:]

		switch depth {
		case 0:
			sec = sectionNone
			if strings.HasPrefix(line, "C ") {
				id, name, ok := entry(line[2:], 2)
				if ok {
					class = uint8(id)
					db.classes[class] = name
					sec = sectionClass
				}
				continue
			}
			// Other top-level sections (AT, HID, L, ...) use a keyword and are skipped.
			if id, name, ok := entry(line, 4); ok {
				vid = uint16(id)
				db.vendors[vid] = name
				sec = sectionVendor
			}

		case 1:
			switch sec {
			case sectionVendor:
				if id, name, ok := entry(line, 4); ok {
					db.products[uint32(vid)<<16|uint32(id)] = name
				}
			case sectionClass:
				if id, name, ok := entry(line, 2); ok {
					db.subclasses[uint16(class)<<8|uint16(id)] = name
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	db.loaded = true
	return nil
}

// entry splits "hhhh  name" where the ID has digits hex digits.
func entry(line string, digits int) (uint64, string, bool) {
	if len(line) < digits+2 || line[digits] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(line[:digits], 16, digits*4)
	if err != nil {
		return 0, "", false
	}
	name := strings.TrimLeft(line[digits:], " ")
	if name == "" {
		return 0, "", false
	}
	return id, name, true
}

// LookupVendor returns the vendor name for vid, or "" if unknown.
func (db *Database) LookupVendor(vid uint16) string {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.vendors[vid]
}

// LookupProduct returns the product name for vid:pid, or "" if unknown.
func (db *Database) LookupProduct(vid, pid uint16) string {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.products[uint32(vid)<<16|uint32(pid)]
}

// LookupClass returns the class and subclass names, or "" for each that is
// unknown.
func (db *Database) LookupClass(class, subclass uint8) (string, string) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.classes[class], db.subclasses[uint16(class)<<8|uint16(subclass)]
}

// Describe returns "Vendor Product", falling back to hex IDs for names that
// are unknown.
func (db *Database) Describe(vid, pid uint16) string {
	vendor := db.LookupVendor(vid)
	if vendor == "" {
		vendor = fmt.Sprintf("%04x", vid)
	}
	product := db.LookupProduct(vid, pid)
	if product == "" {
		product = fmt.Sprintf("%04x", pid)
	}
	return vendor + " " + product
}

// Loaded reports whether a database has been parsed.
func (db *Database) Loaded() bool {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.loaded
}

// Counts returns the number of vendors and products known.
func (db *Database) Counts() (vendors, products int) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return len(db.vendors), len(db.products)
}
