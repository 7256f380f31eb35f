package ocfs2

import "github.com/ocfs2-tools/ocfs2check/ocfs2/crc32c"

// chainChecksum applies the seed over each part in sequence, the general
// form inodeChecksum specializes for dinodes.
func chainChecksum(seed uint32, parts ...[]byte) uint32 {
	c := seed
	for _, p := range parts {
		c = crc32c.Sum(c, p)
	}
	return c
}
