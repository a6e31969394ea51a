package usbtmc

// USBTMC interface class codes.
const (
	ClassApplication = 0xFE // Application-specific class
	SubclassTMC      = 0x03 // Test and Measurement
	ProtocolTMC      = 0x00 // USBTMC, no subclass specification
	ProtocolUSB488   = 0x01 // USBTMC USB488 subclass
)

// Bulk message IDs (MsgID field of the bulk header).
const (
	MsgDevDepMsgOut            = 1   // Device-dependent command message
	MsgRequestDevDepMsgIn      = 2   // Request for a device-dependent response
	MsgDevDepMsgIn             = 2   // Device-dependent response message
	MsgVendorSpecificOut       = 126 // Vendor-specific command message
	MsgRequestVendorSpecificIn = 127 // Request for a vendor-specific response
	MsgVendorSpecificIn        = 127 // Vendor-specific response message
)

// Bulk header constants.
const (
	HeaderSize = 12 // Bulk-OUT and Bulk-IN header size in bytes

	AttrEOM             = 0x01 // Last transfer of the message
	AttrTermCharEnabled = 0x02 // REQUEST_DEV_DEP_MSG_IN: stop at TermChar
)

// USBTMC class-specific control requests.
const (
	RequestInitiateAbortBulkOut    = 1
	RequestCheckAbortBulkOutStatus = 2
	RequestInitiateAbortBulkIn     = 3
	RequestCheckAbortBulkInStatus  = 4
	RequestInitiateClear           = 5
	RequestCheckClearStatus        = 6
	RequestGetCapabilities         = 7
	RequestIndicatorPulse          = 64
)

// USBTMC_status values returned by control requests.
const (
	StatusSuccess               = 0x01
	StatusPending               = 0x02
	StatusFailed                = 0x80
	StatusTransferNotInProgress = 0x81
	StatusSplitNotInProgress    = 0x82
	StatusSplitInProgress       = 0x83
)

// BCDUSBTMC is the USBTMC specification release implemented (1.00).
const BCDUSBTMC = 0x0100

// DefaultMaxPacket is the bulk payload size used when none is configured.
const DefaultMaxPacket = 4096
