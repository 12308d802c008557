package chain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

var errShortInput = errors.New("scale: unexpected end of input")

// AccountID is a 32 byte Substrate account or authority public key.
type AccountID [32]byte

// AssignedCollators mirrors the orchestrator's collator assignment value.
type AssignedCollators struct {
	OrchestratorChain []AccountID
	ContainerChains   map[uint32][]AccountID
}

// ContainerChainIDs returns the assigned appchain ids in ascending order.
func (a *AssignedCollators) ContainerChainIDs() []uint32 {
	ids := make([]uint32, 0, len(a.ContainerChains))
	for id := range a.ContainerChains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Decoder reads SCALE encoded values from a byte slice.
type Decoder struct {
	buf []byte
	pos int
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

func (d *Decoder) read(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, errShortInput
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) U32() (uint32, error) {
	b, err := d.read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) U64() (uint64, error) {
	b, err := d.read(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Compact decodes a SCALE compact integer of up to 64 bits.
func (d *Decoder) Compact() (uint64, error) {
	first, err := d.read(1)
	if err != nil {
		return 0, err
	}
	switch first[0] & 0b11 {
	case 0b00:
		return uint64(first[0] >> 2), nil
	case 0b01:
		rest, err := d.read(1)
		if err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint16([]byte{first[0], rest[0]}) >> 2), nil
	case 0b10:
		rest, err := d.read(3)
		if err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint32([]byte{first[0], rest[0], rest[1], rest[2]}) >> 2), nil
	default:
		n := int(first[0]>>2) + 4
		if n > 8 {
			return 0, fmt.Errorf("scale: compact integer of %d bytes overflows uint64", n)
		}
		b, err := d.read(n)
		if err != nil {
			return 0, err
		}
		var v uint64
		for i := n - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v, nil
	}
}

func (d *Decoder) length(elemSize int) (int, error) {
	n, err := d.Compact()
	if err != nil {
		return 0, err
	}
	if n > uint64(d.Remaining()/elemSize) {
		return 0, fmt.Errorf("scale: length %d exceeds remaining input", n)
	}
	return int(n), nil
}

func (d *Decoder) AccountIDs() ([]AccountID, error) {
	n, err := d.length(32)
	if err != nil {
		return nil, err
	}
	out := make([]AccountID, n)
	for i := range out {
		b, err := d.read(32)
		if err != nil {
			return nil, err
		}
		copy(out[i][:], b)
	}
	return out, nil
}

func DecodeAssignedCollators(b []byte) (*AssignedCollators, error) {
	d := NewDecoder(b)
	orchestrator, err := d.AccountIDs()
	if err != nil {
		return nil, fmt.Errorf("orchestrator collators: %w", err)
	}
	// each map entry is at least a u32 key and a one byte length
	n, err := d.length(5)
	if err != nil {
		return nil, fmt.Errorf("container chains: %w", err)
	}
	out := &AssignedCollators{
		OrchestratorChain: orchestrator,
		ContainerChains:   make(map[uint32][]AccountID, n),
	}
	for i := 0; i < n; i++ {
		paraID, err := d.U32()
		if err != nil {
			return nil, fmt.Errorf("container chain id: %w", err)
		}
		collators, err := d.AccountIDs()
		if err != nil {
			return nil, fmt.Errorf("container chain %d collators: %w", paraID, err)
		}
		out.ContainerChains[paraID] = collators
	}
	return out, nil
}
