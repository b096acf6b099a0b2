package lasformat

import (
	"encoding/binary"
	"fmt"
)

// FieldSlot locates one field inside a record.
type FieldSlot struct {
	Name   string
	Type   DataType
	Offset int

	decode Decoder
	encode Encoder
}

// Absent reports whether the slot is the sentinel for a field the record does
// not store.
func (s FieldSlot) Absent() bool {
	return s.Offset < 0
}

var absentSlot = FieldSlot{
	Type:   Null,
	Offset: -1,
	decode: func([]byte) any { return nil },
	encode: func([]byte, any) error { return nil },
}

// OffsetTable maps field names to their slots within one record.
type OffsetTable struct {
	slots []FieldSlot
	index map[string]int
}

func newOffsetTable(schema Schema, order binary.ByteOrder) (OffsetTable, int, error) {
	t := OffsetTable{
		slots: make([]FieldSlot, 0, len(schema.Fields)),
		index: make(map[string]int, len(schema.Fields)),
	}
	offset := 0
	for _, f := range schema.Fields {
		if f.Name == IdentityField {
			continue
		}
		if _, dup := t.index[f.Name]; dup {
			return OffsetTable{}, 0, fmt.Errorf("duplicate field %q in schema %s", f.Name, schema.Name)
		}
		dec, err := NewDecoder(f.Type, offset, order)
		if err != nil {
			return OffsetTable{}, 0, fmt.Errorf("field %q: %w", f.Name, err)
		}
		enc, err := NewEncoder(f.Type, offset, order)
		if err != nil {
			return OffsetTable{}, 0, fmt.Errorf("field %q: %w", f.Name, err)
		}
		t.index[f.Name] = len(t.slots)
		t.slots = append(t.slots, FieldSlot{Name: f.Name, Type: f.Type, Offset: offset, decode: dec, encode: enc})
		offset += f.Type.Size()
	}
	return t, offset, nil
}

// Lookup returns the slot of a stored field.
func (t OffsetTable) Lookup(name string) (FieldSlot, bool) {
	i, ok := t.index[name]
	if !ok {
		return FieldSlot{}, false
	}
	return t.slots[i], true
}

// LookupOrDefault returns the slot of a stored field, or the absent sentinel
// (Null type, offset -1) for a name the record does not store.
func (t OffsetTable) LookupOrDefault(name string) FieldSlot {
	if s, ok := t.Lookup(name); ok {
		return s
	}
	s := absentSlot
	s.Name = name
	return s
}

// Slots returns the stored fields in record order.
func (t OffsetTable) Slots() []FieldSlot {
	return append([]FieldSlot(nil), t.slots...)
}

// Section is a contiguous block of fixed-size point records in one file.
//
// A Section is immutable once built except for its starting offset, which its
// owner may re-anchor with SetOffset before handing the section to readers.
// Workers that need a different offset take a Clone.
type Section struct {
	location string
	offset   int64
	count    int64
	stride   int
	length   int
	order    binary.ByteOrder
	schema   Schema
	offsets  OffsetTable
}

// NewSection describes count records of the given schema starting at offset
// in the file at location. A stride of zero defaults to the packed record
// length; a stride shorter than the record length is rejected. A nil order
// means little-endian. The identity field, if present in schema, is synthetic
// and occupies no bytes.
func NewSection(location string, offset, count int64, stride int, order binary.ByteOrder, schema Schema) (*Section, error) {
	if order == nil {
		order = binary.LittleEndian
	}
	if offset < 0 {
		return nil, fmt.Errorf("negative section offset %d", offset)
	}
	if count < 0 {
		return nil, fmt.Errorf("negative record count %d", count)
	}
	offsets, length, err := newOffsetTable(schema, order)
	if err != nil {
		return nil, err
	}
	if stride == 0 {
		stride = length
	}
	if stride < length {
		return nil, fmt.Errorf("%w: stride %d is shorter than record length %d of %s", ErrInvalidStride, stride, length, schema.Name)
	}
	return &Section{
		location: location,
		offset:   offset,
		count:    count,
		stride:   stride,
		length:   length,
		order:    order,
		schema:   schema,
		offsets:  offsets,
	}, nil
}

func (s *Section) Location() string { return s.location }
func (s *Section) Offset() int64 { return s.offset }
func (s *Section) Count() int64 { return s.count }
func (s *Section) Stride() int { return s.stride }
func (s *Section) Length() int { return s.length }
func (s *Section) Order() binary.ByteOrder { return s.order }
func (s *Section) Schema() Schema { return s.schema }
func (s *Section) Offsets() OffsetTable { return s.offsets }

// SetOffset re-anchors the section at a different starting byte offset. It
// must not be called once the section is shared.
func (s *Section) SetOffset(offset int64) {
	s.offset = offset
}

// Clone returns an independent copy whose offset can be changed without
// affecting s.
func (s *Section) Clone() *Section {
	c := *s
	return &c
}

// Size returns the number of bytes the section spans.
func (s *Section) Size() int64 {
	return s.count * int64(s.stride)
}

// RecordStart returns the file offset of record i.
func (s *Section) RecordStart(i int64) int64 {
	return s.offset + i*int64(s.stride)
}

// Record slices record i out of block, a buffer whose first byte is the first
// byte of record 0 of the block.
func (s *Section) Record(block []byte, i int64) ([]byte, error) {
	start := i * int64(s.stride)
	end := start + int64(s.length)
	if i < 0 || end > int64(len(block)) {
		return nil, fmt.Errorf("%w: record %d needs bytes [%d,%d), block has %d", ErrShortBuffer, i, start, end, len(block))
	}
	return block[start:end], nil
}

// ExtractRow decodes every stored field of one record in schema order.
func (s *Section) ExtractRow(record []byte) ([]any, error) {
	if err := s.checkRecord(record); err != nil {
		return nil, err
	}
	values := make([]any, len(s.offsets.slots))
	for i, slot := range s.offsets.slots {
		values[i] = slot.decode(record)
	}
	return values, nil
}

// ExtractColumns decodes the named columns of one record, casting each to its
// type in target. The identity column yields recordID. Columns the section
// does not store yield nil.
func (s *Section) ExtractColumns(target Schema, columns []string, recordID int64, record []byte) ([]any, error) {
	p, err := s.Project(target, columns)
	if err != nil {
		return nil, err
	}
	return p.Extract(recordID, record)
}

// EncodeRecord packs values, one per stored field in schema order, into a
// zero-padded buffer of stride bytes.
func (s *Section) EncodeRecord(values []any) ([]byte, error) {
	if len(values) != len(s.offsets.slots) {
		return nil, fmt.Errorf("got %d values for %d fields", len(values), len(s.offsets.slots))
	}
	buf := make([]byte, s.stride)
	for i, slot := range s.offsets.slots {
		if err := slot.encode(buf, values[i]); err != nil {
			return nil, fmt.Errorf("field %q: %w", slot.Name, err)
		}
	}
	return buf, nil
}

func (s *Section) checkRecord(record []byte) error {
	if len(record) < s.length {
		return fmt.Errorf("%w: record is %d bytes, need %d", ErrShortBuffer, len(record), s.length)
	}
	return nil
}

// Projection is a compiled column request against one section. Compiling once
// per split moves cast validation out of the per-record path.
type Projection struct {
	section *Section
	columns []projectedColumn
}

type projectedColumn struct {
	identity bool
	slot     FieldSlot
	target   DataType
	cast     bool
}

// Project compiles a column request. Each requested column resolves to its
// type in target; a column missing from target keeps its stored type. It
// fails with ErrUnsupportedCast when a stored type cannot be widened to the
// requested type.
func (s *Section) Project(target Schema, columns []string) (*Projection, error) {
	p := &Projection{section: s, columns: make([]projectedColumn, len(columns))}
	for i, name := range columns {
		if name == IdentityField {
			to := Int64
			if f, ok := target.Field(name); ok {
				to = f.Type
			}
			if !CanCast(Int64, to) {
				return nil, fmt.Errorf("column %q: %w", name, &UnsupportedCastError{From: Int64, To: to})
			}
			p.columns[i] = projectedColumn{identity: true, target: to, cast: !to.Equal(Int64)}
			continue
		}

		slot := s.offsets.LookupOrDefault(name)
		col := projectedColumn{slot: slot, target: slot.Type}
		if f, ok := target.Field(name); ok && !slot.Absent() && !f.Type.Equal(slot.Type) {
			if !CanCast(slot.Type, f.Type) {
				return nil, fmt.Errorf("column %q: %w", name, &UnsupportedCastError{From: slot.Type, To: f.Type})
			}
			col.target = f.Type
			col.cast = true
		}
		p.columns[i] = col
	}
	return p, nil
}

// Extract decodes one record through the projection.
func (p *Projection) Extract(recordID int64, record []byte) ([]any, error) {
	if err := p.section.checkRecord(record); err != nil {
		return nil, err
	}
	values := make([]any, len(p.columns))
	for i, col := range p.columns {
		var v any
		if col.identity {
			v = recordID
			if col.cast {
				var err error
				if v, err = Cast(v, Int64, col.target); err != nil {
					return nil, err
				}
			}
			values[i] = v
			continue
		}

		v = col.slot.decode(record)
		if col.cast {
			var err error
			if v, err = Cast(v, col.slot.Type, col.target); err != nil {
				return nil, fmt.Errorf("column %q: %w", col.slot.Name, err)
			}
		}
		values[i] = v
	}
	return values, nil
}

// Types returns the resolved output type of each projected column. Absent
// columns report Null.
func (p *Projection) Types() []DataType {
	types := make([]DataType, len(p.columns))
	for i, col := range p.columns {
		types[i] = col.target
	}
	return types
}
