package device

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
)

type Buffer struct {
	// Associated Device.
	device *Device

	// A name for identifying the buffer.
	name string

	flags MemFlags

	// The backing slice.
	data reflect.Value

	// Allocated size in bytes.
	size int
}

// Get buffer name.
func (b *Buffer) Name() string {
	return b.name
}

// Get buffer size in bytes.
func (b *Buffer) Size() int {
	return b.size
}

// Get the number of stored elements.
func (b *Buffer) Len() int {
	if !b.data.IsValid() {
		return 0
	}
	return b.data.Len()
}

// Get buffer flags.
func (b *Buffer) Flags() MemFlags {
	return b.flags
}

// Get the backing slice. Kernels access buffer contents through it; the
// caller should type-assert it to the slice type used to allocate the
// buffer. Returns nil if the buffer is not allocated.
func (b *Buffer) Data() interface{} {
	if !b.data.IsValid() {
		return nil
	}
	return b.data.Interface()
}

// Allocate a zeroed buffer with the same element type and length as data.
func (b *Buffer) AllocateToFitData(data interface{}, flags MemFlags) error {
	src, err := sliceValue(data)
	if err != nil {
		return b.wrapErr(err)
	}

	b.Release()
	b.data = reflect.MakeSlice(src.Type(), src.Len(), src.Len())
	b.size = sliceSize(src)
	b.flags = flags
	b.device.logger.Debugf("allocated buffer %s (%s, %d bytes)", b.name, flags, b.size)
	return nil
}

// Allocate a buffer with the given flags that is large enough to hold the
// given slice and copy the slice contents into it.
func (b *Buffer) AllocateAndWriteData(data interface{}, flags MemFlags) error {
	src, err := sliceValue(data)
	if err != nil {
		return b.wrapErr(err)
	}

	b.Release()
	b.data = reflect.MakeSlice(src.Type(), src.Len(), src.Len())
	reflect.Copy(b.data, src)
	b.size = sliceSize(src)
	b.flags = flags
	b.device.logger.Debugf("allocated buffer %s (%s, %d bytes)", b.name, flags, b.size)
	return nil
}

// Copy data into the buffer starting at the given element offset.
func (b *Buffer) WriteData(data interface{}, offset int) error {
	if !b.data.IsValid() {
		return b.wrapErr(ErrBufferNotAllocated)
	}
	if b.flags == MemReadOnly {
		return b.wrapErr(ErrReadOnlyBuffer)
	}

	src, err := b.typedSlice(data)
	if err != nil {
		return err
	}

	if offset < 0 || offset+src.Len() > b.data.Len() {
		return fmt.Errorf("device (%s): insufficient buffer space (%d elements) in %s for copying %d elements at offset %d", b.device.Name, b.data.Len(), b.name, src.Len(), offset)
	}

	reflect.Copy(b.data.Slice(offset, offset+src.Len()), src)
	return nil
}

// Read count elements starting at srcOffset into hostBuffer starting at
// dstOffset. If count is <= 0 then ReadData will read as many elements as
// fit into hostBuffer.
func (b *Buffer) ReadData(srcOffset, dstOffset, count int, hostBuffer interface{}) error {
	if !b.data.IsValid() {
		return b.wrapErr(ErrBufferNotAllocated)
	}

	dst, err := b.typedSlice(hostBuffer)
	if err != nil {
		return err
	}

	if count <= 0 {
		count = b.data.Len() - srcOffset
		if room := dst.Len() - dstOffset; room < count {
			count = room
		}
	}
	if count < 0 || srcOffset < 0 || dstOffset < 0 || srcOffset+count > b.data.Len() || dstOffset+count > dst.Len() {
		return fmt.Errorf("device (%s): read of %d elements from %s (offset %d) into host buffer (offset %d) is out of range", b.device.Name, count, b.name, srcOffset, dstOffset)
	}

	reflect.Copy(dst.Slice(dstOffset, dstOffset+count), b.data.Slice(srcOffset, srcOffset+count))
	return nil
}

// Serialize the buffer contents as a packed little-endian byte stream. The
// element type must have a fixed size.
func (b *Buffer) Bytes() ([]byte, error) {
	if !b.data.IsValid() {
		return nil, b.wrapErr(ErrBufferNotAllocated)
	}

	var buf bytes.Buffer
	buf.Grow(b.size)
	if err := binary.Write(&buf, binary.LittleEndian, b.data.Interface()); err != nil {
		return nil, fmt.Errorf("device (%s): could not serialize buffer %s: %w", b.device.Name, b.name, err)
	}
	return buf.Bytes(), nil
}

// Release buffer.
func (b *Buffer) Release() {
	b.data = reflect.Value{}
	b.size = 0
}

func (b *Buffer) typedSlice(data interface{}) (reflect.Value, error) {
	v, err := sliceValue(data)
	if err != nil {
		return v, b.wrapErr(err)
	}
	if v.Type() != b.data.Type() {
		return v, fmt.Errorf("device (%s): buffer %s holds %s; got %s: %w", b.device.Name, b.name, b.data.Type(), v.Type(), ErrTypeMismatch)
	}
	return v, nil
}

func (b *Buffer) wrapErr(err error) error {
	return fmt.Errorf("device (%s): buffer %s: %w", b.device.Name, b.name, err)
}

// Given an interface{} containing a slice return its reflected value.
func sliceValue(data interface{}) (reflect.Value, error) {
	v := reflect.ValueOf(data)
	if v.Kind() != reflect.Slice {
		return v, fmt.Errorf("only slices are supported; got %T: %w", data, ErrTypeMismatch)
	}
	return v, nil
}

func sliceSize(v reflect.Value) int {
	return v.Len() * int(v.Type().Elem().Size())
}
