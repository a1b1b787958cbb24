package audio

import (
	"testing"
)

func TestRingBuffer_WriteRead(t *testing.T) {
	rb := NewRingBuffer(16)

	data := []byte{1, 2, 3, 4, 5}
	written := rb.Write(data)
	if written != len(data) {
		t.Fatalf("expected %d bytes written, got %d", len(data), written)
	}

	out := make([]byte, len(data))
	read := rb.Read(out)
	if read != len(data) {
		t.Fatalf("expected %d bytes read, got %d", len(data), read)
	}
	for i := range data {
		if out[i] != data[i] {
			t.Errorf("byte %d: expected %d, got %d", i, data[i], out[i])
		}
	}
}

func TestRingBuffer_Full(t *testing.T) {
	rb := NewRingBuffer(8)

	// Capacity is size-1 due to full/empty disambiguation
	data := make([]byte, 10)
	written := rb.Write(data)
	if written != 7 {
		t.Errorf("expected 7 bytes written into size-8 buffer, got %d", written)
	}

	if rb.Available() != 7 {
		t.Errorf("expected 7 bytes available, got %d", rb.Available())
	}
}

func TestRingBuffer_EmptyRead(t *testing.T) {
	rb := NewRingBuffer(8)

	out := make([]byte, 4)
	read := rb.Read(out)
	if read != 0 {
		t.Errorf("expected 0 bytes read from empty buffer, got %d", read)
	}
	if rb.Available() != 0 {
		t.Errorf("expected empty buffer, got %d available", rb.Available())
	}
}

func TestRingBuffer_WrapAround(t *testing.T) {
	rb := NewRingBuffer(8)

	first := []byte{1, 2, 3, 4, 5}
	rb.Write(first)
	out := make([]byte, 5)
	rb.Read(out)

	// Write past the physical end of the buffer
	second := []byte{6, 7, 8, 9}
	written := rb.Write(second)
	if written != len(second) {
		t.Fatalf("expected %d bytes written, got %d", len(second), written)
	}

	out2 := make([]byte, 4)
	read := rb.Read(out2)
	if read != 4 {
		t.Fatalf("expected 4 bytes read, got %d", read)
	}
	for i := range second {
		if out2[i] != second[i] {
			t.Errorf("byte %d: expected %d, got %d", i, second[i], out2[i])
		}
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer(16)
	rb.Write([]byte{1, 2, 3})
	rb.Clear()

	if rb.Available() != 0 {
		t.Errorf("expected 0 available after Clear, got %d", rb.Available())
	}
}
