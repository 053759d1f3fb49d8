package archive

import (
	"fmt"
	"math"
)

// DefaultFileSuffix is the extension of zstd-compressed XDR batch objects.
const DefaultFileSuffix = ".xdr.zst"

// Schema describes how ledgers are grouped into archive objects.
type Schema struct {
	// PartitionSize is the number of ledgers covered by one partition directory.
	PartitionSize uint32
	// BatchSize is the number of ledgers stored in one object.
	BatchSize  uint32
	FileSuffix string
}

// DefaultSchema is the layout of the public pubnet archive.
func DefaultSchema() Schema {
	return Schema{PartitionSize: 64000, BatchSize: 1, FileSuffix: DefaultFileSuffix}
}

// ObjectKey addresses one archive object.
type ObjectKey struct {
	PartitionKey string
	BatchKey     string

	// BatchStart and BatchEnd are the ledgers held by the object.
	BatchStart uint32
	BatchEnd   uint32
}

// Path joins the two key levels into the object path below the ledgers root.
func (k ObjectKey) Path() string {
	return k.PartitionKey + "/" + k.BatchKey
}

func (s Schema) Key(seq uint32) ObjectKey {
	key := ComputeKey(seq, s.PartitionSize, s.BatchSize)
	suffix := s.FileSuffix
	if suffix == "" {
		suffix = DefaultFileSuffix
	}
	key.BatchKey += suffix
	return key
}

// ComputeKey maps a ledger sequence to its partition and batch names.
// Names carry a descending hex prefix (0xFFFFFFFF minus the first ledger) so
// that a lexical listing returns the newest objects first. The batch key is
// returned without the file suffix. Zero sizes are treated as 1.
func ComputeKey(seq, partitionSize, batchSize uint32) ObjectKey {
	if partitionSize == 0 {
		partitionSize = 1
	}
	if batchSize == 0 {
		batchSize = 1
	}

	partitionStart, partitionEnd := window(seq, partitionSize)
	batchStart, batchEnd := window(seq, batchSize)

	batchKey := fmt.Sprintf("%s--%d", hexOf(batchStart), batchStart)
	if batchSize > 1 {
		batchKey = fmt.Sprintf("%s-%d", batchKey, batchEnd)
	}

	return ObjectKey{
		PartitionKey: fmt.Sprintf("%s--%d-%d", hexOf(partitionStart), partitionStart, partitionEnd),
		BatchKey:     batchKey,
		BatchStart:   batchStart,
		BatchEnd:     batchEnd,
	}
}

// window returns the aligned [start, end] block of the given size holding seq.
// The last block is clamped at math.MaxUint32.
func window(seq, size uint32) (uint32, uint32) {
	start := (seq / size) * size
	end := uint64(start) + uint64(size) - 1
	if end > math.MaxUint32 {
		end = math.MaxUint32
	}
	return start, uint32(end)
}

func hexOf(x uint32) string {
	return fmt.Sprintf("%08X", math.MaxUint32-x)
}
