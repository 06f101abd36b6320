// Package verify classifies a file on disk against the before/after hashes
// recorded for it, the single source of truth the apply and rollback
// engines use to decide whether a write is safe.
package verify

import (
	"os"

	"github.com/socket-patch/socket-patch/digest"
)

// Status describes how a file's current contents relate to its recorded
// before and after hashes.
type Status int

const (
	// Missing means the file does not exist on disk at all.
	Missing Status = iota
	// Original means the current contents hash to the before value.
	Original
	// Patched means the current contents hash to the after value.
	Patched
	// Modified means the current contents match neither hash: some other
	// process touched the file, and it is unsafe to overwrite.
	Modified
)

func (s Status) String() string {
	switch s {
	case Missing:
		return "missing"
	case Original:
		return "original"
	case Patched:
		return "patched"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

// Classify hashes the file at path and compares it against before/after,
// returning one of Missing, Original, Patched, or Modified.
func Classify(path string, before, after digest.Digest) (Status, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Missing, nil
		}
		return Missing, err
	}

	current, err := digest.FromFile(path)
	if err != nil {
		return Missing, err
	}

	switch {
	case current.Equal(before):
		return Original, nil
	case current.Equal(after):
		return Patched, nil
	default:
		return Modified, nil
	}
}
