package lasformat

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Decoder reads one value from a record buffer. The buffer must be at least
// as long as the decoder's offset plus its type size; sections check this once
// per record rather than per field.
type Decoder func(buf []byte) any

// Encoder writes one value into a record buffer.
type Encoder func(buf []byte, v any) error

// NewDecoder returns a decoder for a value of type t stored at offset. Null
// always decodes to nil.
func NewDecoder(t DataType, offset int, order binary.ByteOrder) (Decoder, error) {
	switch t.Kind {
	case KindNull:
		return func([]byte) any { return nil }, nil
	case KindInt8:
		return func(buf []byte) any { return int8(buf[offset]) }, nil
	case KindInt16:
		return func(buf []byte) any { return int16(order.Uint16(buf[offset:])) }, nil
	case KindInt32:
		return func(buf []byte) any { return int32(order.Uint32(buf[offset:])) }, nil
	case KindInt64:
		return func(buf []byte) any { return int64(order.Uint64(buf[offset:])) }, nil
	case KindFloat32:
		return func(buf []byte) any { return math.Float32frombits(order.Uint32(buf[offset:])) }, nil
	case KindFloat64:
		return func(buf []byte) any { return math.Float64frombits(order.Uint64(buf[offset:])) }, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
}

// NewEncoder returns an encoder for a value of type t stored at offset. Any Go
// numeric value is accepted and converted to the stored width. Null writes
// nothing.
func NewEncoder(t DataType, offset int, order binary.ByteOrder) (Encoder, error) {
	switch t.Kind {
	case KindNull:
		return func([]byte, any) error { return nil }, nil
	case KindInt8:
		return func(buf []byte, v any) error {
			n, err := toInt64(v)
			if err != nil {
				return err
			}
			buf[offset] = byte(int8(n))
			return nil
		}, nil
	case KindInt16:
		return func(buf []byte, v any) error {
			n, err := toInt64(v)
			if err != nil {
				return err
			}
			order.PutUint16(buf[offset:], uint16(int16(n)))
			return nil
		}, nil
	case KindInt32:
		return func(buf []byte, v any) error {
			n, err := toInt64(v)
			if err != nil {
				return err
			}
			order.PutUint32(buf[offset:], uint32(int32(n)))
			return nil
		}, nil
	case KindInt64:
		return func(buf []byte, v any) error {
			n, err := toInt64(v)
			if err != nil {
				return err
			}
			order.PutUint64(buf[offset:], uint64(n))
			return nil
		}, nil
	case KindFloat32:
		return func(buf []byte, v any) error {
			f, err := toFloat64(v)
			if err != nil {
				return err
			}
			order.PutUint32(buf[offset:], math.Float32bits(float32(f)))
			return nil
		}, nil
	case KindFloat64:
		return func(buf []byte, v any) error {
			f, err := toFloat64(v)
			if err != nil {
				return err
			}
			order.PutUint64(buf[offset:], math.Float64bits(f))
			return nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
}

func toInt64(v any) (int64, error) {
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		return int64(val), nil
	default:
		return 0, fmt.Errorf("%w: cannot encode %T as integer", ErrUnsupportedType, v)
	}
}

func toFloat64(v any) (float64, error) {
	switch val := v.(type) {
	case float32:
		return float64(val), nil
	case float64:
		return val, nil
	default:
		n, err := toInt64(v)
		if err != nil {
			return 0, fmt.Errorf("%w: cannot encode %T as float", ErrUnsupportedType, v)
		}
		return float64(n), nil
	}
}
