package opkit

import "errors"

// Sentinel errors surfaced by the runtime. Operation-specific failures are
// never wrapped in these; they propagate verbatim through Task and Store.
var (
	// ErrCancelled is returned by a Task whose body never ran because it was
	// cancelled before the first runIfNeeded, or whose in-flight body was
	// interrupted by a Store reset.
	ErrCancelled = errors.New("opkit: task cancelled")

	// ErrDuplicatePath is returned by ClientStore, alongside a duplicate_path
	// diagnostic, when two operations with different state types try to
	// occupy the same Path in a Client registry.
	ErrDuplicatePath = errors.New("opkit: duplicate path registered with a different state type")

	// ErrCircularSchedule is returned by Task.ScheduleAfter when adding the
	// requested dependency edge would create a cycle.
	ErrCircularSchedule = errors.New("opkit: circular task dependency")

	// ErrControllerDeallocated is returned when a Controls handle is used
	// after its owning Store has been dropped.
	ErrControllerDeallocated = errors.New("opkit: controller used after its store was deallocated")

	// ErrUnbackedRun is returned when a SharedState cell without a backing
	// operation is asked to run.
	ErrUnbackedRun = errors.New("opkit: shared state has no backing operation to run")
)
