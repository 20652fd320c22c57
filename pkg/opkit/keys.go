package opkit

// Context keys seeded by the standard modifiers and read by the Store's
// run protocol. User operations may read or override any of these through
// Setup, same as the modifiers themselves do.
var (
	ClockKey   = NewKey[Clock]("opkit.clock", SystemClock{})
	DelayerKey = NewKey[Delayer]("opkit.delayer", SystemDelayer{})

	RetryIndexKey = NewKey[int]("opkit.retryIndex", 0)
	MaxRetriesKey = NewKey[int]("opkit.maxRetries", 0)
	BackoffKey    = NewKey[BackoffFunc]("opkit.backoff", BackoffFunc(NoBackoff))

	TaskConfigKey = NewKey[TaskConfig]("opkit.taskConfig", TaskConfig{})

	// SatisfiedConnectionKey is the minimum ConnStatus the NetworkRunSpec
	// modifier requires before it considers the network "satisfied".
	SatisfiedConnectionKey = NewKey[ConnStatus]("opkit.satisfiedConnection", ConnRequiresConnection)

	// EvictableMemoryPressureKey lists the pressure levels at which the
	// Client is allowed to evict this store when it has no subscribers.
	EvictableMemoryPressureKey = NewKey[[]PressureLevel]("opkit.evictableMemoryPressure", []PressureLevel{PressureCritical})

	// AutoRunEnabledKey controls whether Store.subscribe schedules a run on
	// first non-temporary subscriber when the store is stale.
	AutoRunEnabledKey = NewKey[bool]("opkit.autoRunEnabled", true)

	// DedupEnabledKey controls whether the Store shares a single in-flight
	// Task across concurrent Run/RunTask callers instead of scheduling one
	// per call. Set by Deduplicated.
	DedupEnabledKey = NewKey[bool]("opkit.dedupEnabled", false)
)
