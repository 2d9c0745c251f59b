package device

import (
	"encoding/binary"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/asset/scene"
	"github.com/fzbRun/Bidirectional-Instant-Radiosity/types"
)

func TestBufferAllocateToFitData(t *testing.T) {
	dev := NewDevice("test", 2)
	defer dev.Close()

	data := make([]float64, 128)

	buf := dev.Buffer("test")
	err := buf.AllocateToFitData(data, MemReadWrite)
	if err != nil {
		t.Fatal(err)
	}

	expSize := len(data) * int(unsafe.Sizeof(data[0]))
	if buf.Size() != expSize {
		t.Fatalf("expected buffer size to be %d; got %d", expSize, buf.Size())
	}
	if dev.Buffer("test") != buf {
		t.Fatal("expected Buffer to return the existing buffer for a known name")
	}
}

func TestBufferReadWrite(t *testing.T) {
	dev := NewDevice("test", 2)
	defer dev.Close()

	data := make([]int32, 16)
	for i := range data {
		data[i] = int32(i)
	}

	buf := dev.Buffer("test")
	if err := buf.AllocateAndWriteData(data, MemReadWrite); err != nil {
		t.Fatal(err)
	}

	// The buffer owns a copy of the data.
	data[0] = 99
	if buf.Data().([]int32)[0] != 0 {
		t.Fatal("expected buffer to copy the host data")
	}

	if err := buf.WriteData([]int32{-1, -2}, 14); err != nil {
		t.Fatal(err)
	}

	out := make([]int32, 4)
	if err := buf.ReadData(13, 1, 3, out); err != nil {
		t.Fatal(err)
	}
	exp := []int32{0, 13, -1, -2}
	for i := range exp {
		if out[i] != exp[i] {
			t.Fatalf("expected out[%d] to be %d; got %d", i, exp[i], out[i])
		}
	}

	specs := []struct {
		name string
		fn   func() error
		exp  error
	}{
		{"type mismatch", func() error { return buf.WriteData([]float32{1}, 0) }, ErrTypeMismatch},
		{"non-slice", func() error { return buf.WriteData(int32(1), 0) }, ErrTypeMismatch},
		{"unallocated", func() error { return dev.Buffer("other").WriteData([]int32{1}, 0) }, ErrBufferNotAllocated},
	}
	for _, spec := range specs {
		if err := spec.fn(); !errors.Is(err, spec.exp) {
			t.Fatalf("[%s] expected error %v; got %v", spec.name, spec.exp, err)
		}
	}

	if err := buf.WriteData([]int32{1, 2}, 15); err == nil {
		t.Fatal("expected out of range write to fail")
	}
	if err := buf.ReadData(20, 0, 0, out); err == nil {
		t.Fatal("expected out of range read to fail")
	}
}

func TestReadOnlyBuffer(t *testing.T) {
	dev := NewDevice("test", 1)
	defer dev.Close()

	buf := dev.Buffer("nodes")
	if err := buf.AllocateAndWriteData([]uint32{1, 2, 3}, MemReadOnly); err != nil {
		t.Fatal(err)
	}
	if err := buf.WriteData([]uint32{7}, 0); !errors.Is(err, ErrReadOnlyBuffer) {
		t.Fatalf("expected ErrReadOnlyBuffer; got %v", err)
	}
	if got := buf.Data().([]uint32)[0]; got != 1 {
		t.Fatalf("expected read-only buffer contents to be unchanged; got %d", got)
	}
}

func TestBufferBytes(t *testing.T) {
	dev := NewDevice("test", 1)
	defer dev.Close()

	node := scene.NewBvhNode(types.AABB{Min: types.Vec3{-1, -2, -3}, Max: types.Vec3{1, 2, 3}})
	node.SetMeshIndex(5)

	buf := dev.Buffer("nodes")
	if err := buf.AllocateAndWriteData([]scene.BvhNode{node}, MemReadOnly); err != nil {
		t.Fatal(err)
	}

	data, err := buf.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 36 {
		t.Fatalf("expected a 36 byte node record; got %d bytes", len(data))
	}

	le := binary.LittleEndian
	if left := int32(le.Uint32(data[0:])); left != -1 {
		t.Fatalf("expected left index -1; got %d", left)
	}
	if minY := math.Float32frombits(le.Uint32(data[12:])); minY != -2 {
		t.Fatalf("expected min.y -2; got %f", minY)
	}
	if mesh := int32(le.Uint32(data[32:])); mesh != 5 {
		t.Fatalf("expected mesh index 5; got %d", mesh)
	}
}

func TestKernelExec1D(t *testing.T) {
	dev := NewDevice("test", 4)
	defer dev.Close()

	specs := []struct {
		offset, global, local int
	}{
		{0, 32, 0},
		{0, 1024, 64},
		{5, 100, 7},
		{0, 0, 16},
	}

	for index, spec := range specs {
		out := make([]int32, spec.offset+spec.global)
		kernel := dev.Kernel("square", func(x, y int) {
			out[x] = int32(x * x)
		})
		if _, err := kernel.Exec1D(spec.offset, spec.global, spec.local); err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}
		for i := spec.offset; i < len(out); i++ {
			if out[i] != int32(i*i) {
				t.Fatalf("[spec %d] expected out[%d] to be %d; got %d", index, i, i*i, out[i])
			}
		}
		for i := 0; i < spec.offset; i++ {
			if out[i] != 0 {
				t.Fatalf("[spec %d] expected items before the offset to be untouched", index)
			}
		}
	}
}

func TestKernelExec2D(t *testing.T) {
	dev := NewDevice("test", 3)
	defer dev.Close()

	const w, h = 37, 19
	var calls int32
	out := make([]int32, w*h)
	kernel := dev.Kernel("index", func(x, y int) {
		atomic.AddInt32(&calls, 1)
		out[y*w+x] = int32(y*w + x)
	})
	if _, err := kernel.Exec2D(0, 0, w, h, 8, 4); err != nil {
		t.Fatal(err)
	}
	if calls != w*h {
		t.Fatalf("expected %d work items; got %d", w*h, calls)
	}
	for i := range out {
		if out[i] != int32(i) {
			t.Fatalf("expected out[%d] to be %d; got %d", i, i, out[i])
		}
	}

	if _, err := kernel.Exec2D(0, 0, w, h, -1, 4); !errors.Is(err, ErrInvalidWorkSize) {
		t.Fatalf("expected ErrInvalidWorkSize; got %v", err)
	}
}

func TestKernelPanic(t *testing.T) {
	dev := NewDevice("test", 2)
	defer dev.Close()

	kernel := dev.Kernel("boom", func(x, y int) {
		if x == 3 {
			panic("boom")
		}
	})
	if _, err := kernel.Exec1D(0, 8, 1); err == nil {
		t.Fatal("expected a panicking kernel to report an error")
	}
}

func TestWorkgroups(t *testing.T) {
	specs := []struct {
		global, local, exp int
	}{
		{1024, 64, 16},
		{1025, 64, 17},
		{0, 64, 0},
		{10, 0, 0},
	}
	for index, spec := range specs {
		if out := Workgroups(spec.global, spec.local); out != spec.exp {
			t.Fatalf("[spec %d] expected %d workgroups; got %d", index, spec.exp, out)
		}
	}
}
