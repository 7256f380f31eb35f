package checker

import (
	"time"

	times "gopkg.in/djherbis/times.v1"
)

// ResourceTrack records the wall-clock time (Real) a single pass took, a
// reduced Go analogue of the reference tool's o2fsck_resource_track.
// User/sys CPU time is not measured, and BlocksRW is not filled in.
type ResourceTrack struct {
	Pass      string
	Real      time.Duration
	BlocksRW  uint64
	startedAt time.Time
}

func startResourceTrack(pass string) ResourceTrack {
	return ResourceTrack{Pass: pass, startedAt: time.Now()}
}

func (rt *ResourceTrack) finish() ResourceTrack {
	rt.Real = time.Since(rt.startedAt)
	return *rt
}

// ImageBirthTime best-effort resolves the backing image file's birth time,
// falling back to its modification time. Not every platform/filesystem
// exposes a birth time; the boolean reports whether one was available.
func ImageBirthTime(path string) (time.Time, bool) {
	ts, err := times.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	if bt, ok := ts.(interface{ HasBirthTime() bool }); ok && bt.HasBirthTime() {
		if btv, ok := ts.(interface{ BirthTime() time.Time }); ok {
			return btv.BirthTime(), true
		}
	}
	return ts.ModTime(), false
}
