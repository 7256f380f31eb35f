// Package crc32c computes the Castagnoli CRC-32 variant used to checksum
// on-disk ocfs2 metadata blocks.
package crc32c

import "hash/crc32"

var table = crc32.MakeTable(crc32.Castagnoli)

// Sum extends a running checksum over b, starting from seed. Callers chain
// calls across discontiguous byte ranges (such as an inode's block number
// followed by its generation followed by the rest of the block) the same
// way the on-disk format chains them when the checksum was written.
func Sum(seed uint32, b []byte) uint32 {
	return crc32.Update(seed, table, b)
}
