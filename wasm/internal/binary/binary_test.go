package binary

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
)

func TestUnsignedRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		want []byte
		v    uint32
	}{
		{"zero", []byte{0x00}, 0},
		{"one byte max", []byte{0x7f}, 127},
		{"two bytes", []byte{0x80, 0x01}, 128},
		{"624485", []byte{0xe5, 0x8e, 0x26}, 624485},
		{"max", []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, math.MaxUint32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter()
			w.WriteU32(tt.v)
			if !bytes.Equal(w.Bytes(), tt.want) {
				t.Fatalf("WriteU32(%d) = %x, want %x", tt.v, w.Bytes(), tt.want)
			}
			got, err := NewReader(tt.want).ReadU32()
			if err != nil {
				t.Fatalf("ReadU32: %v", err)
			}
			if got != tt.v {
				t.Errorf("ReadU32 = %d, want %d", got, tt.v)
			}
		})
	}
}

func TestSignedRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		want []byte
		v    int64
	}{
		{"zero", []byte{0x00}, 0},
		{"minus one", []byte{0x7f}, -1},
		{"63", []byte{0x3f}, 63},
		{"64", []byte{0xc0, 0x00}, 64},
		{"minus 64", []byte{0x40}, -64},
		{"minus 123456", []byte{0xc0, 0xbb, 0x78}, -123456},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter()
			w.WriteS64(tt.v)
			if !bytes.Equal(w.Bytes(), tt.want) {
				t.Fatalf("WriteS64(%d) = %x, want %x", tt.v, w.Bytes(), tt.want)
			}
			got, err := NewReader(tt.want).ReadS64()
			if err != nil {
				t.Fatalf("ReadS64: %v", err)
			}
			if got != tt.v {
				t.Errorf("ReadS64 = %d, want %d", got, tt.v)
			}
		})
	}
}

func TestSigned32Extremes(t *testing.T) {
	for _, v := range []int32{math.MinInt32, math.MaxInt32, -1, 0} {
		w := NewWriter()
		w.WriteS32(v)
		got, err := NewReader(w.Bytes()).ReadS32()
		if err != nil {
			t.Fatalf("ReadS32(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("ReadS32 = %d, want %d", got, v)
		}
	}
}

func TestReaderOverflow(t *testing.T) {
	_, err := NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01}).ReadU32()
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("six-byte u32: got %v, want ErrOverflow", err)
	}
	_, err = NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x1f}).ReadU32()
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("u32 with high bits: got %v, want ErrOverflow", err)
	}
}

func TestReaderTruncated(t *testing.T) {
	_, err := NewReader([]byte{0x80}).ReadU32()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadU32: got %v, want ErrUnexpectedEOF", err)
	}
	_, err = NewReader([]byte{1, 2}).ReadBytes(3)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadBytes: got %v, want ErrUnexpectedEOF", err)
	}
	if _, err := NewReader(nil).ReadByte(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadByte on empty: got %v, want EOF", err)
	}
}

func TestFloats(t *testing.T) {
	w := NewWriter()
	w.WriteF32(1.5)
	w.WriteF64(-2.25)
	r := NewReader(w.Bytes())
	f32, err := r.ReadF32()
	if err != nil || f32 != 1.5 {
		t.Fatalf("ReadF32 = %v, %v", f32, err)
	}
	f64, err := r.ReadF64()
	if err != nil || f64 != -2.25 {
		t.Fatalf("ReadF64 = %v, %v", f64, err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestNameAndSection(t *testing.T) {
	inner := NewWriter()
	inner.WriteName("add")
	w := NewWriter()
	w.Byte(0xAA)
	w.WriteSection(7, inner.Bytes())

	r := NewReader(w.Bytes())
	if b, _ := r.ReadByte(); b != 0xAA {
		t.Fatalf("first byte = %x", b)
	}
	id, _ := r.ReadByte()
	size, _ := r.ReadU32()
	if id != 7 || size != 4 {
		t.Fatalf("section header = (%d, %d), want (7, 4)", id, size)
	}
	sub, err := r.Sub(int(size))
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if sub.Position() != 3 {
		t.Errorf("sub position = %d, want 3", sub.Position())
	}
	name, err := sub.ReadName()
	if err != nil || name != "add" {
		t.Fatalf("ReadName = %q, %v", name, err)
	}
	if r.Len() != 0 {
		t.Errorf("outer reader not advanced past section")
	}
}

func TestReadNameInvalidUTF8(t *testing.T) {
	_, err := NewReader([]byte{0x02, 0xff, 0xfe}).ReadName()
	if err == nil {
		t.Fatal("expected error for invalid UTF-8")
	}
}
