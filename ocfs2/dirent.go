package ocfs2

import (
	"encoding/binary"
	"fmt"
)

// DirEntryHeaderSize is the fixed portion of an on-disk dirent preceding
// its variable-length name: inode, rec_len, name_len, file_type.
const DirEntryHeaderSize = 12

// MinDirRecLen is the smallest legal rec_len: a dirent with an empty name
// still occupies the fixed header, 4-byte aligned.
const MinDirRecLen = 12

// DirEntry is one variable-length directory entry, decoded in place within
// a directory block buffer.
type DirEntry struct {
	Inode    uint64
	RecLen   uint16
	NameLen  byte
	FileType byte
	Name     string

	// Offset is this entry's byte offset within its containing block,
	// retained so repairs can be written back in place.
	Offset int
}

// DirRecLen returns the minimum rec_len that can hold a name of the given
// length, 4-byte aligned, mirroring OCFS2_DIR_REC_LEN(name_len).
func DirRecLen(nameLen int) uint16 {
	l := DirEntryHeaderSize + nameLen
	return uint16((l + 3) &^ 3)
}

// ParseDirBlock decodes every dirent in a directory block without applying
// any repair; callers needing repaired output should run the block through
// checker's fix_dirent_lengths/fix_dirent_dots logic first.
func ParseDirBlock(b []byte) ([]DirEntry, error) {
	var entries []DirEntry
	off := 0
	for off+DirEntryHeaderSize <= len(b) {
		recLen := binary.LittleEndian.Uint16(b[off+8 : off+10])
		if recLen < MinDirRecLen || int(recLen) > len(b)-off {
			return entries, fmt.Errorf("ocfs2: dirent at offset %d has invalid rec_len %d", off, recLen)
		}
		nameLen := b[off+10]
		fileType := b[off+11]
		inode := binary.LittleEndian.Uint64(b[off : off+8])

		var name string
		if inode != 0 && int(nameLen) <= int(recLen)-DirEntryHeaderSize {
			name = string(b[off+DirEntryHeaderSize : off+DirEntryHeaderSize+int(nameLen)])
		}

		entries = append(entries, DirEntry{
			Inode:    inode,
			RecLen:   recLen,
			NameLen:  nameLen,
			FileType: fileType,
			Name:     name,
			Offset:   off,
		})
		off += int(recLen)
	}
	return entries, nil
}

// PutDirEntry writes e back into b at e.Offset, preserving e.RecLen (the
// slot's span never changes size outside of the explicit split/merge
// repairs performed by fix_dirent_lengths).
func PutDirEntry(b []byte, e DirEntry) {
	off := e.Offset
	binary.LittleEndian.PutUint64(b[off:], e.Inode)
	binary.LittleEndian.PutUint16(b[off+8:], e.RecLen)
	b[off+10] = e.NameLen
	b[off+11] = e.FileType
	if e.NameLen > 0 {
		copy(b[off+DirEntryHeaderSize:], e.Name)
	}
}
