package kernel

import (
	"encoding/binary"
	"unsafe"
)

// freeEnd terminates the free list; 0 is a valid block offset.
const freeEnd = ^uint32(0)

// MemPool is a fixed-block allocator over a caller-provided buffer,
// with O(1) get and put. The free list is threaded through the first
// word of each free block; there is no sidecar metadata. Get blocks the caller
// while the pool is exhausted.
type MemPool struct {
	k         *Kernel
	buf       []byte
	freeHead  uint32 // byte offset of the first free block, freeEnd if none
	blockSize uint32
	total     uint32
	free      uint32
	waiters   list
}

// MemInit carves buf into blocks fixed-size blocks and threads the free
// list through them. The block size must hold at least one link word.
func (k *Kernel) MemInit(m *MemPool, buf []byte, blocks, blockSize uint32) Status {
	if m == nil || blocks == 0 || blockSize < 4 || uint64(len(buf)) < uint64(blocks)*uint64(blockSize) {
		return ErrParam
	}
	m.k = k
	m.buf = buf
	m.blockSize = blockSize
	m.total = blocks
	m.free = blocks
	m.waiters.init()

	m.freeHead = 0
	for i := uint32(0); i < blocks; i++ {
		next := freeEnd
		if i+1 < blocks {
			next = (i + 1) * blockSize
		}
		binary.LittleEndian.PutUint32(m.buf[i*blockSize:], next)
	}
	return OK
}

// FreeBlocks returns a snapshot of the number of free blocks.
func (m *MemPool) FreeBlocks() uint32 { return m.free }

// TotalBlocks returns the pool's block count.
func (m *MemPool) TotalBlocks() uint32 { return m.total }

// BlockSize returns the pool's block size in bytes.
func (m *MemPool) BlockSize() uint32 { return m.blockSize }

// Get returns a free block, blocking the caller while the pool is
// empty. From interrupt context it returns nil instead of blocking.
func (m *MemPool) Get() []byte {
	if m == nil || m.k == nil {
		return nil
	}
	k := m.k
	if k.port.InISR() {
		return nil
	}
	k.EnterCritical()
	for m.free == 0 {
		k.blockCurrentOn(&m.waiters)
		k.ExitCritical()
		// Resumed by a put; retest under a fresh critical section.
		k.EnterCritical()
	}
	off := m.freeHead
	m.freeHead = binary.LittleEndian.Uint32(m.buf[off:])
	m.free--
	k.ExitCritical()
	return m.buf[off : off+m.blockSize : off+m.blockSize]
}

// Put returns a block to the pool and wakes one waiting task. The block
// must lie inside the pool on a block boundary.
func (m *MemPool) Put(block []byte) Status {
	if m == nil || m.k == nil || len(block) == 0 {
		return ErrParam
	}
	k := m.k
	k.EnterCritical()

	base := uintptr(unsafe.Pointer(unsafe.SliceData(m.buf)))
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(block)))
	if addr < base || addr >= base+uintptr(m.total*m.blockSize) {
		k.ExitCritical()
		return ErrInvalidAddr
	}
	off := uint32(addr - base)
	if off%m.blockSize != 0 {
		k.ExitCritical()
		return ErrNotAlign
	}

	binary.LittleEndian.PutUint32(m.buf[off:], m.freeHead)
	m.freeHead = off
	m.free++

	if !m.waiters.empty() {
		k.wakeHead(&m.waiters)
	}
	k.ExitCritical()
	return OK
}
