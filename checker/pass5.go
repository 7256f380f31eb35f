package checker

import (
	"encoding/binary"

	"github.com/ocfs2-tools/ocfs2check/ocfs2"
)

// quotaRecordSize is this repository's on-disk layout for one local quota
// record: id, block count, inode count, all little-endian u64 except the
// id which is u32-padded for alignment.
const quotaRecordSize = 24

// RunPass5 is skipped entirely when neither quota feature is enabled
// (§4.8, §9 of SPEC_FULL.md). When enabled, it rewrites every slot's local
// user/group quota file from the per-id usage Pass 1 tallied while
// checking each inode, rather than merely zeroing it. The global quota
// files are not read or rewritten.
func RunPass5(s *State) error {
	if !s.Super.HasFeatureRWIncompat(ocfs2.FeatureRWIncompatUserQuota) &&
		!s.Super.HasFeatureRWIncompat(ocfs2.FeatureRWIncompatGroupQuota) {
		return nil
	}
	s.Log.Info("pass 5: checking quota files")

	for slot := 0; slot < int(s.Super.MaxSlots); slot++ {
		if s.Super.HasFeatureRWIncompat(ocfs2.FeatureRWIncompatUserQuota) {
			if err := rebuildLocalQuotaFile(s, ocfs2.LocalUserQuotaSystemInode, slot, s.UserQuotaUsage); err != nil {
				return err
			}
		}
		if s.Super.HasFeatureRWIncompat(ocfs2.FeatureRWIncompatGroupQuota) {
			if err := rebuildLocalQuotaFile(s, ocfs2.LocalGroupQuotaSystemInode, slot, s.GroupQuotaUsage); err != nil {
				return err
			}
		}
	}
	return nil
}

func rebuildLocalQuotaFile(s *State, typ ocfs2.SystemInodeType, slot int, usage *OrderedMap[*QuotaUsage]) error {
	ino, err := s.FS.LookupSystemInode(typ, slot)
	if err != nil {
		return nil
	}
	in, err := s.FS.ReadInode(ino)
	if err != nil || !in.IsValid() {
		return nil
	}

	buf := make([]byte, usage.Len()*quotaRecordSize)
	off := 0
	usage.Ascend(func(id uint64, u *QuotaUsage) bool {
		binary.LittleEndian.PutUint64(buf[off:], id)
		binary.LittleEndian.PutUint64(buf[off+8:], u.Blocks)
		binary.LittleEndian.PutUint64(buf[off+16:], u.Inodes)
		off += quotaRecordSize
		return true
	})

	if !s.Prompt(PromptSpec{Kind: PromptDefaultYes}, "Rebuild slot %d's local quota file from observed usage?", slot) {
		return nil
	}

	phys, err := s.FS.ExtentMapGetBlocks(in, 0)
	if err != nil {
		s.Log.WithError(err).Warnf("pass5: slot %d local quota file has no allocated first block, skipping rebuild", slot)
		s.SawError = true
		return nil
	}
	existing, err := s.FS.ReadBlocks(phys, 1)
	if err != nil {
		return newResult(KindIO, "pass5", "reading local quota block", err)
	}
	n := copy(existing, buf)
	for i := n; i < len(existing); i++ {
		existing[i] = 0
	}
	if err := s.FS.WriteBlocks(phys, existing); err != nil {
		return newResult(KindIO, "pass5", "writing rebuilt local quota block", err)
	}
	return nil
}
