package domain

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Depth is the number of 8-bit samples per pixel.
type Depth int

const (
	Gray Depth = 1
	RGB  Depth = 3
	RGBA Depth = 4
)

func (d Depth) String() string {
	switch d {
	case Gray:
		return "gray"
	case RGB:
		return "rgb"
	case RGBA:
		return "rgba"
	default:
		return fmt.Sprintf("depth(%d)", int(d))
	}
}

// Image is a decoded pixel grid. Pix holds Height rows of Width*Depth samples in R,G,B(,A) order.
type Image struct {
	Width  int
	Height int
	Depth  Depth
	Pix    []byte
}

// Stride returns the number of bytes per row.
func (i Image) Stride() int {
	return i.Width * int(i.Depth)
}

// Encoded is an image serialized into a container format.
type Encoded struct {
	Format string
	Data   []byte
}

const FingerprintLength = 64

// Fingerprint is the content-derived identity of an Image.
type Fingerprint string

// Valid reports whether f is a well-formed lowercase hex SHA-256 digest.
func (f Fingerprint) Valid() bool {
	if len(f) != FingerprintLength || strings.ToLower(string(f)) != string(f) {
		return false
	}
	_, err := hex.DecodeString(string(f))
	return err == nil
}

func (f Fingerprint) String() string {
	return string(f)
}

type Role string

const (
	Original  Role = "original"
	Processed Role = "processed"
)

// Roles lists every artifact role an image can be stored under.
var Roles = []Role{Original, Processed}

func (r Role) Valid() bool {
	return r == Original || r == Processed
}

// Upload is the result of accepting a new image.
type Upload struct {
	Fingerprint Fingerprint
	Filename    string
	Preview     string
}

// Outcome is the result of processing a stored image.
type Outcome struct {
	RefinedWidth  int
	RefinedHeight int
	Filename      string
	Preview       string
	// DiagnosticImage is a PNG, empty when no visualization was captured.
	DiagnosticImage []byte
}

// DataURI embeds data as a base64 data URI.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
