package lasformat

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Signature is the four-byte file signature every LAS file starts with.
const Signature = "LASF"

// HeaderPrefixSize is the number of leading bytes sufficient to read the
// header of any supported version.
const HeaderPrefixSize = 375

// Public header block byte offsets, identical for versions 1.2 and 1.4.
const (
	offSignature      = 0
	offSourceID       = 4
	offGlobalEncoding = 6
	offProjectID1     = 8
	offProjectID2     = 12
	offProjectID3     = 14
	offProjectID4     = 16
	offVersionMajor   = 24
	offVersionMinor   = 25
	offSystemID       = 26
	offSoftware       = 58
	offCreationDay    = 90
	offCreationYear   = 92
	offHeaderSize     = 94
	offPDROffset      = 96
	offNumberOfVLRs   = 100
	offPDRFormat      = 104
	offPDRLength      = 105
	offPDRNumber      = 107
	offPDRReturns     = 111
	offScale          = 131
	offOffset         = 155
	offBounds         = 179

	identifierLen = 32
	versionEnd    = offVersionMinor + 1
)

type version struct {
	major, minor uint8
}

// headerSizes maps each supported version to its header byte size.
var headerSizes = map[version]int{
	{1, 2}: 227,
	{1, 4}: 375,
}

// HeaderSizeFor returns the header byte size of a LAS version.
func HeaderSizeFor(major, minor uint8) (int, error) {
	size, ok := headerSizes[version{major, minor}]
	if !ok {
		return 0, fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, major, minor)
	}
	return size, nil
}

// Header is the public header block of a LAS file. Only the legacy 32-bit
// point and return counts are carried; the 64-bit counts added in 1.4 are
// neither read nor written.
type Header struct {
	FileSignature      string
	FileSourceID       uint16
	GlobalEncoding     uint16
	ProjectID1         uint32
	ProjectID2         uint16
	ProjectID3         uint16
	ProjectID4         [8]byte
	VersionMajor       uint8
	VersionMinor       uint8
	SystemID           string
	GeneratingSoftware string
	FileCreationDay    uint16
	FileCreationYear   uint16
	HeaderSize         uint16
	PDROffset          uint32
	NumberOfVLRs       uint32
	PDRFormat          uint8
	PDRLength          uint16
	PDRNumber          uint32
	PDRReturns         [5]uint32
	Scale              [3]float64
	Offset             [3]float64
	Max                [3]float64
	Min                [3]float64
}

// NewHeader returns a header for an empty file of the given version and
// point format, with the header size, point data offset and record length
// filled in from the version and catalog.
func NewHeader(major, minor, format uint8) (*Header, error) {
	size, err := HeaderSizeFor(major, minor)
	if err != nil {
		return nil, err
	}
	length, err := PointFormatLength(int(format))
	if err != nil {
		return nil, err
	}
	return &Header{
		FileSignature: Signature,
		VersionMajor:  major,
		VersionMinor:  minor,
		HeaderSize:    uint16(size),
		PDROffset:     uint32(size),
		PDRFormat:     format,
		PDRLength:     uint16(length),
		Scale:         [3]float64{1, 1, 1},
	}, nil
}

// ReadHeader parses a header from the leading bytes of a file. data must hold
// at least the version's header size; HeaderPrefixSize bytes always suffice.
func ReadHeader(data []byte) (*Header, error) {
	if len(data) < len(Signature) || string(data[offSignature:offSignature+len(Signature)]) != Signature {
		return nil, ErrNotRecognizedFormat
	}
	if len(data) < versionEnd {
		return nil, fmt.Errorf("%w: %d bytes, need %d for the version", ErrShortBuffer, len(data), versionEnd)
	}

	major, minor := data[offVersionMajor], data[offVersionMinor]
	size, err := HeaderSizeFor(major, minor)
	if err != nil {
		return nil, err
	}
	if len(data) < size {
		return nil, fmt.Errorf("%w: %d bytes, need %d for a %d.%d header", ErrShortBuffer, len(data), size, major, minor)
	}

	le := binary.LittleEndian
	h := &Header{
		FileSignature:      Signature,
		FileSourceID:       le.Uint16(data[offSourceID:]),
		GlobalEncoding:     le.Uint16(data[offGlobalEncoding:]),
		ProjectID1:         le.Uint32(data[offProjectID1:]),
		ProjectID2:         le.Uint16(data[offProjectID2:]),
		ProjectID3:         le.Uint16(data[offProjectID3:]),
		VersionMajor:       major,
		VersionMinor:       minor,
		SystemID:           readIdentifier(data[offSystemID:]),
		GeneratingSoftware: readIdentifier(data[offSoftware:]),
		FileCreationDay:    le.Uint16(data[offCreationDay:]),
		FileCreationYear:   le.Uint16(data[offCreationYear:]),
		HeaderSize:         le.Uint16(data[offHeaderSize:]),
		PDROffset:          le.Uint32(data[offPDROffset:]),
		NumberOfVLRs:       le.Uint32(data[offNumberOfVLRs:]),
		PDRFormat:          data[offPDRFormat],
		PDRLength:          le.Uint16(data[offPDRLength:]),
		PDRNumber:          le.Uint32(data[offPDRNumber:]),
	}
	copy(h.ProjectID4[:], data[offProjectID4:offProjectID4+8])
	for i := range h.PDRReturns {
		h.PDRReturns[i] = le.Uint32(data[offPDRReturns+4*i:])
	}
	for i := 0; i < 3; i++ {
		h.Scale[i] = float64At(data, offScale+8*i)
		h.Offset[i] = float64At(data, offOffset+8*i)
		// bounds are stored as max/min pairs per axis
		h.Max[i] = float64At(data, offBounds+16*i)
		h.Min[i] = float64At(data, offBounds+16*i+8)
	}
	return h, nil
}

// WriteHeader serializes a header into a block of the version's header size.
// Bytes not covered by a header field are zero. The signature must be
// Signature and HeaderSize must match the version, so that ReadHeader returns
// a header equal to h.
func WriteHeader(h *Header) ([]byte, error) {
	if h.FileSignature != Signature {
		return nil, fmt.Errorf("%w: signature %q", ErrNotRecognizedFormat, h.FileSignature)
	}
	size, err := HeaderSizeFor(h.VersionMajor, h.VersionMinor)
	if err != nil {
		return nil, err
	}
	if int(h.HeaderSize) != size {
		return nil, fmt.Errorf("header size %d does not match %d for a %d.%d header",
			h.HeaderSize, size, h.VersionMajor, h.VersionMinor)
	}
	if len(h.SystemID) > identifierLen {
		return nil, fmt.Errorf("system identifier is %d bytes, max %d", len(h.SystemID), identifierLen)
	}
	if len(h.GeneratingSoftware) > identifierLen {
		return nil, fmt.Errorf("generating software is %d bytes, max %d", len(h.GeneratingSoftware), identifierLen)
	}

	le := binary.LittleEndian
	buf := make([]byte, size)
	copy(buf[offSignature:], Signature)
	le.PutUint16(buf[offSourceID:], h.FileSourceID)
	le.PutUint16(buf[offGlobalEncoding:], h.GlobalEncoding)
	le.PutUint32(buf[offProjectID1:], h.ProjectID1)
	le.PutUint16(buf[offProjectID2:], h.ProjectID2)
	le.PutUint16(buf[offProjectID3:], h.ProjectID3)
	copy(buf[offProjectID4:], h.ProjectID4[:])
	buf[offVersionMajor] = h.VersionMajor
	buf[offVersionMinor] = h.VersionMinor
	copy(buf[offSystemID:], h.SystemID)
	copy(buf[offSoftware:], h.GeneratingSoftware)
	le.PutUint16(buf[offCreationDay:], h.FileCreationDay)
	le.PutUint16(buf[offCreationYear:], h.FileCreationYear)
	le.PutUint16(buf[offHeaderSize:], uint16(size))
	le.PutUint32(buf[offPDROffset:], h.PDROffset)
	le.PutUint32(buf[offNumberOfVLRs:], h.NumberOfVLRs)
	buf[offPDRFormat] = h.PDRFormat
	le.PutUint16(buf[offPDRLength:], h.PDRLength)
	le.PutUint32(buf[offPDRNumber:], h.PDRNumber)
	for i, n := range h.PDRReturns {
		le.PutUint32(buf[offPDRReturns+4*i:], n)
	}
	for i := 0; i < 3; i++ {
		putFloat64(buf, offScale+8*i, h.Scale[i])
		putFloat64(buf, offOffset+8*i, h.Offset[i])
		putFloat64(buf, offBounds+16*i, h.Max[i])
		putFloat64(buf, offBounds+16*i+8, h.Min[i])
	}
	return buf, nil
}

// Validate checks that the header's version and point format are supported.
func (h *Header) Validate() error {
	if _, err := HeaderSizeFor(h.VersionMajor, h.VersionMinor); err != nil {
		return err
	}
	if _, err := SchemaFor(int(h.PDRFormat)); err != nil {
		return err
	}
	return nil
}

// RecordSchema returns the catalog schema of the header's point format.
func (h *Header) RecordSchema() (Schema, error) {
	return SchemaFor(int(h.PDRFormat))
}

// RecordByteOffset returns the file offset of the first point record: the
// stored offset when positive, otherwise the version's header size.
func (h *Header) RecordByteOffset() int64 {
	if h.PDROffset > 0 {
		return int64(h.PDROffset)
	}
	size, err := HeaderSizeFor(h.VersionMajor, h.VersionMinor)
	if err != nil {
		return int64(h.HeaderSize)
	}
	return int64(size)
}

// RecordLength returns the byte length of one point record: the stored length
// when positive, otherwise the catalog length of the point format.
func (h *Header) RecordLength() (int, error) {
	if h.PDRLength > 0 {
		return int(h.PDRLength), nil
	}
	return PointFormatLength(int(h.PDRFormat))
}

// ToSection describes the point record block of the file at location. The
// section's stride is the header's record length, which may include padding
// beyond the catalog layout. A record length shorter than the layout fails
// with ErrRecordLength.
func (h *Header) ToSection(location string) (*Section, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	schema, err := h.RecordSchema()
	if err != nil {
		return nil, err
	}
	stride, err := h.RecordLength()
	if err != nil {
		return nil, err
	}
	need, err := PointFormatLength(int(h.PDRFormat))
	if err != nil {
		return nil, err
	}
	if stride < need {
		return nil, fmt.Errorf("%w: %d bytes, format %d needs %d", ErrRecordLength, stride, h.PDRFormat, need)
	}
	return NewSection(location, h.RecordByteOffset(), int64(h.PDRNumber), stride, binary.LittleEndian, schema)
}

func (h *Header) String() string {
	return fmt.Sprintf("LAS %d.%d format=%d length=%d points=%d offset=%d",
		h.VersionMajor, h.VersionMinor, h.PDRFormat, h.PDRLength, h.PDRNumber, h.PDROffset)
}

func readIdentifier(b []byte) string {
	return strings.TrimRight(string(b[:identifierLen]), "\x00")
}

func float64At(b []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
}

func putFloat64(b []byte, off int, v float64) {
	binary.LittleEndian.PutUint64(b[off:], math.Float64bits(v))
}
