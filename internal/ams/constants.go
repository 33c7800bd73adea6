package ams

// Wire sizes of the framing headers.
const (
	// TCPHeaderSize is the size of the AMS/TCP header in bytes.
	TCPHeaderSize = 6

	// HeaderSize is the size of the AMS header in bytes.
	HeaderSize = 32

	// MaxFrameSize bounds the declared payload length of a single frame.
	// A length field above this is treated as a malformed frame rather
	// than an allocation request.
	MaxFrameSize = 16 * 1024 * 1024
)

// State flag bits for the StateFlags field in AMS Header.
const (
	// StateFlagResponse indicates a response packet (bit 0).
	// 0 = Request, 1 = Response
	StateFlagResponse uint16 = 0x0001

	// StateFlagADS must be set for ADS commands (bit 2).
	StateFlagADS uint16 = 0x0004

	// StateFlagUDP indicates UDP protocol (bit 7).
	// 0 = TCP, 1 = UDP
	StateFlagUDP uint16 = 0x0080
)

// Predefined state flag combinations for common use cases.
const (
	// StateFlagsTCPRequest represents a TCP request (0x0004).
	StateFlagsTCPRequest = StateFlagADS

	// StateFlagsTCPResponse represents a TCP response (0x0005).
	StateFlagsTCPResponse = StateFlagADS | StateFlagResponse
)

// Common AMS port numbers used by TwinCAT runtime.
const (
	PortLogger        Port = 100   // Logger
	PortEventLogger   Port = 110   // EventLogger
	PortRouter        Port = 1     // AMS Router
	PortSystemService Port = 10000 // System Service
	PortPLCRuntime1   Port = 851   // First PLC runtime
	PortPLCRuntime2   Port = 852   // Second PLC runtime
	PortPLCRuntime3   Port = 853   // Third PLC runtime
	PortPLCRuntime4   Port = 854   // Fourth PLC runtime
)

// DefaultTCPPort is the well-known TCP port an ADS router listens on.
const DefaultTCPPort = 48898
