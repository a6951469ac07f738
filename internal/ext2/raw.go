// Package ext2 implements a read-only ext2 filesystem (§4.10), grounded
// in qor-core's fs/ext2 module. Unlike the source it was distilled from,
// inode data reads walk the full direct/indirect/double-indirect/
// triple-indirect block pointer chain rather than stopping at the first
// direct pointer — see DESIGN.md.
package ext2

import (
	"encoding/binary"
	"errors"
)

const (
	// rootInodeNumber is ext2's fixed root directory inode.
	rootInodeNumber = 2

	superBlockOffset = 1024
	superBlockSize   = 84
	extendedSize     = 1024 - superBlockSize

	inodeBlockPointerCount = 15
	inodeDirectPointers    = 12
)

// SuperBlock is the fixed 84-byte ext2 superblock prefix (raw.rs
// SuperBlock).
type SuperBlock struct {
	InodeCount          uint32
	BlockCount          uint32
	ReservedBlockCount  uint32
	FreeBlockCount      uint32
	FreeInodeCount      uint32
	FirstDataBlock      uint32
	BlockSizeLog2Less10 uint32
	FragmentSizeLog2    uint32
	BlocksPerGroup      uint32
	FragmentsPerGroup   uint32
	InodesPerGroup      uint32
	MountTime           uint32
	WriteTime           uint32
	MountCount          uint16
	MaxMountCount       uint16
	Signature           uint16
	State               uint16
	ErrorBehavior       uint16
	MinorVersion        uint16
	LastCheckTime       uint32
	CheckInterval       uint32
	CreatorOS           uint32
	MajorVersion        uint32
	ReservedUID         uint16
	ReservedGID         uint16

	Extended *ExtendedSuperblock
}

// ext2Signature is the magic value validating a superblock (raw.rs).
const ext2Signature = 0xEF53

// ErrBadSignature is returned when a block doesn't carry the ext2 magic.
var ErrBadSignature = errors.New("ext2: bad superblock signature")

// ExtendedSuperblock carries the fields only present when MajorVersion
// indicates a dynamic-inode revision (raw.rs ExtendedSuperblock).
type ExtendedSuperblock struct {
	FirstNonReservedInode uint32
	InodeStructureSize    uint16
	BlockGroupNumber      uint16
	CompatibleFeatures    uint32
	IncompatibleFeatures  uint32
	ReadOnlyFeatures      uint32
	FilesystemID          [16]byte
	VolumeName            [16]byte
	LastMountedPath       [64]byte
	CompressionAlgorithm  uint32
}

// ParseSuperBlock decodes a 1024-byte block starting at the filesystem's
// byte offset 1024 (raw.rs SuperBlock::from_bytes).
func ParseSuperBlock(block []byte) (*SuperBlock, error) {
	if len(block) < superBlockSize {
		return nil, errors.New("ext2: truncated superblock")
	}
	le := binary.LittleEndian
	sb := &SuperBlock{
		InodeCount:          le.Uint32(block[0:4]),
		BlockCount:          le.Uint32(block[4:8]),
		ReservedBlockCount:  le.Uint32(block[8:12]),
		FreeBlockCount:      le.Uint32(block[12:16]),
		FreeInodeCount:      le.Uint32(block[16:20]),
		FirstDataBlock:      le.Uint32(block[20:24]),
		BlockSizeLog2Less10: le.Uint32(block[24:28]),
		FragmentSizeLog2:    le.Uint32(block[28:32]),
		BlocksPerGroup:      le.Uint32(block[32:36]),
		FragmentsPerGroup:   le.Uint32(block[36:40]),
		InodesPerGroup:      le.Uint32(block[40:44]),
		MountTime:           le.Uint32(block[44:48]),
		WriteTime:           le.Uint32(block[48:52]),
		MountCount:          le.Uint16(block[52:54]),
		MaxMountCount:       le.Uint16(block[54:56]),
		Signature:           le.Uint16(block[56:58]),
		State:               le.Uint16(block[58:60]),
		ErrorBehavior:       le.Uint16(block[60:62]),
		MinorVersion:        le.Uint16(block[62:64]),
		LastCheckTime:       le.Uint32(block[64:68]),
		CheckInterval:       le.Uint32(block[68:72]),
		CreatorOS:           le.Uint32(block[72:76]),
		MajorVersion:        le.Uint32(block[76:80]),
		ReservedUID:         le.Uint16(block[80:82]),
		ReservedGID:         le.Uint16(block[82:84]),
	}
	if sb.Signature != ext2Signature {
		return nil, ErrBadSignature
	}
	if sb.MajorVersion >= 1 && len(block) >= superBlockSize+extendedSize {
		ext := block[superBlockSize:]
		e := &ExtendedSuperblock{
			FirstNonReservedInode: le.Uint32(ext[0:4]),
			InodeStructureSize:    le.Uint16(ext[4:6]),
			BlockGroupNumber:      le.Uint16(ext[6:8]),
			CompatibleFeatures:    le.Uint32(ext[8:12]),
			IncompatibleFeatures:  le.Uint32(ext[12:16]),
			ReadOnlyFeatures:      le.Uint32(ext[16:20]),
		}
		copy(e.FilesystemID[:], ext[20:36])
		copy(e.VolumeName[:], ext[36:52])
		copy(e.LastMountedPath[:], ext[52:116])
		e.CompressionAlgorithm = le.Uint32(ext[116:120])
		sb.Extended = e
	}
	return sb, nil
}

// BlockSize returns the filesystem's block size in bytes (raw.rs
// SuperBlock::block_size).
func (sb *SuperBlock) BlockSize() uint32 {
	return 1024 << sb.BlockSizeLog2Less10
}

// UseExtendedSizes reports whether inode sizes use the 64-bit
// lower+upper combination (raw.rs SuperBlock::use_64_bit_sizes).
func (sb *SuperBlock) UseExtendedSizes() bool {
	return sb.Extended != nil && sb.Extended.ReadOnlyFeatures&0x2 != 0
}

// BlockGroupCount returns the number of block groups, taking the larger
// of the block-count-derived and inode-count-derived counts (raw.rs
// SuperBlock::block_group_count).
func (sb *SuperBlock) BlockGroupCount() uint32 {
	byBlocks := (sb.BlockCount + sb.BlocksPerGroup - 1) / sb.BlocksPerGroup
	byInodes := (sb.InodeCount + sb.InodesPerGroup - 1) / sb.InodesPerGroup
	if byBlocks > byInodes {
		return byBlocks
	}
	return byInodes
}

// BlockGroupDescriptorTableIndex returns the block index (within the
// filesystem) of the block group descriptor table (raw.rs
// SuperBlock::block_group_descriptor_table_index).
func (sb *SuperBlock) BlockGroupDescriptorTableIndex() uint32 {
	if sb.BlockSizeLog2Less10 == 0 {
		return 2
	}
	return 1
}

// InodeSize returns the on-disk size of one inode record.
func (sb *SuperBlock) InodeSize() uint32 {
	if sb.Extended != nil && sb.Extended.InodeStructureSize != 0 {
		return uint32(sb.Extended.InodeStructureSize)
	}
	return 128
}

// BlockGroupDescriptor describes one block group's allocation bitmaps
// and inode table location (raw.rs BlockGroupDescriptor).
type BlockGroupDescriptor struct {
	BlockUsageBitmap     uint32
	InodeUsageBitmap     uint32
	StartingBlockInode   uint32
	UnallocatedBlocks    uint16
	UnallocatedInodes    uint16
	DirectoryCount       uint16
}

const blockGroupDescriptorSize = 32

// ParseBlockGroupDescriptor decodes one 32-byte descriptor table entry.
func ParseBlockGroupDescriptor(b []byte) BlockGroupDescriptor {
	le := binary.LittleEndian
	return BlockGroupDescriptor{
		BlockUsageBitmap:   le.Uint32(b[0:4]),
		InodeUsageBitmap:   le.Uint32(b[4:8]),
		StartingBlockInode: le.Uint32(b[8:12]),
		UnallocatedBlocks:  le.Uint16(b[12:14]),
		UnallocatedInodes:  le.Uint16(b[14:16]),
		DirectoryCount:     le.Uint16(b[16:18]),
	}
}

// Inode is one ext2 inode record (raw.rs Inode). BlockPointers holds all
// 15 slots — 12 direct, then single/double/triple indirect — even though
// the system this was distilled from only ever consulted slot 0.
type Inode struct {
	Mode            uint16
	UID             uint16
	LowerSize       uint32
	AccessTime      uint32
	CreationTime    uint32
	ModificationTime uint32
	DeletionTime    uint32
	GID             uint16
	HardLinkCount   uint16
	SectorCount     uint32
	Flags           uint32
	OSSpecific1     uint32
	BlockPointers   [inodeBlockPointerCount]uint32
	GenerationNumber uint32
	FileACL         uint32
	UpperSize       uint32
}

// ParseInode decodes an inode record (raw.rs Inode::from_bytes); b may be
// the superblock's full InodeSize, but only the first 128 bytes are
// interpreted.
func ParseInode(b []byte) Inode {
	le := binary.LittleEndian
	var in Inode
	in.Mode = le.Uint16(b[0:2])
	in.UID = le.Uint16(b[2:4])
	in.LowerSize = le.Uint32(b[4:8])
	in.AccessTime = le.Uint32(b[8:12])
	in.CreationTime = le.Uint32(b[12:16])
	in.ModificationTime = le.Uint32(b[16:20])
	in.DeletionTime = le.Uint32(b[20:24])
	in.GID = le.Uint16(b[24:26])
	in.HardLinkCount = le.Uint16(b[26:28])
	in.SectorCount = le.Uint32(b[28:32])
	in.Flags = le.Uint32(b[32:36])
	in.OSSpecific1 = le.Uint32(b[36:40])
	for i := 0; i < inodeBlockPointerCount; i++ {
		off := 40 + i*4
		in.BlockPointers[i] = le.Uint32(b[off : off+4])
	}
	in.GenerationNumber = le.Uint32(b[100:104])
	in.FileACL = le.Uint32(b[104:108])
	in.UpperSize = le.Uint32(b[108:112])
	return in
}

// Size returns the inode's byte size, combining the upper 32 bits when
// useExtended is set (raw.rs Inode::size).
func (in *Inode) Size(useExtended bool) uint64 {
	if useExtended {
		return uint64(in.UpperSize)<<32 | uint64(in.LowerSize)
	}
	return uint64(in.LowerSize)
}

// IsDirectory reports whether the inode's mode bits mark it a directory.
func (in *Inode) IsDirectory() bool {
	const typeMask = 0xF000
	const typeDir = 0x4000
	return in.Mode&typeMask == typeDir
}

// DirectoryEntry is one decoded directory record (raw.rs DirectoryEntry).
type DirectoryEntry struct {
	Inode      uint32
	Name       string
	TypeHint   byte
}

// ParseDirectoryEntries decodes every record packed into a directory
// block, stopping when the remaining bytes no longer hold a full header
// (raw.rs's Vec<DirectoryEntry> loop).
func ParseDirectoryEntries(block []byte) []DirectoryEntry {
	var entries []DirectoryEntry
	le := binary.LittleEndian
	for len(block) >= 8 {
		inode := le.Uint32(block[0:4])
		totalSize := le.Uint16(block[4:6])
		nameLen := block[6]
		typeHint := block[7]
		if totalSize < 8 || int(totalSize) > len(block) {
			break
		}
		name := string(block[8 : 8+int(nameLen)])
		if inode != 0 {
			entries = append(entries, DirectoryEntry{Inode: inode, Name: name, TypeHint: typeHint})
		}
		block = block[totalSize:]
	}
	return entries
}
