package suspend

import "github.com/pkg/errors"

var (
	// ErrMemoryBudget is returned when free memory cannot hold the page
	// copies plus the reserve kept back for storage I/O.
	ErrMemoryBudget = errors.New("not enough free memory to suspend")
	// ErrStorageBudget is returned when the suspend-target area cannot
	// hold the whole image chain.
	ErrStorageBudget = errors.New("not enough storage space to suspend")
)
