//go:build linux

package proc

import (
	"os/user"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// statUID resolves a pid's owner from the ownership of its /proc directory,
// which the kernel keeps in sync with the process's effective uid.
func statUID(procRoot string) func(int) (uint32, error) {
	return func(pid int) (uint32, error) {
		var st unix.Stat_t
		if err := unix.Stat(filepath.Join(procRoot, strconv.Itoa(pid)), &st); err != nil {
			return 0, err
		}
		return st.Uid, nil
	}
}

// userCache memoizes uid to name lookups for the lifetime of the collector.
// Unresolvable uids keep their numeric form. The cache is touched only from
// the sampling goroutine, so it carries no lock.
type userCache struct {
	names map[uint32]string
}

func newUserCache() *userCache {
	return &userCache{names: make(map[uint32]string)}
}

func (uc *userCache) name(uid uint32) string {
	if n, ok := uc.names[uid]; ok {
		return n
	}
	id := strconv.FormatUint(uint64(uid), 10)
	n := id
	if u, err := user.LookupId(id); err == nil {
		n = u.Username
	}
	uc.names[uid] = n
	return n
}
