package errors

// Module codes (AA)
const (
	// ModuleCommon is for errors shared by all components.
	ModuleCommon = 0

	// ModuleSink is for log sink and registry errors.
	ModuleSink = 1

	// ModuleFormat is for message formatter errors.
	ModuleFormat = 2

	// ModuleInstrument is for instrumentation engine errors.
	ModuleInstrument = 3

	// ModuleSweep is for cache retention sweeper errors.
	ModuleSweep = 4

	// ModulePool is for worker pool errors.
	ModulePool = 5
)

// Category codes (BB)
const (
	// CategoryRequest indicates invalid arguments.
	CategoryRequest = 1

	// CategoryResource indicates a missing resource.
	CategoryResource = 4

	// CategoryConflict indicates a conflicting state.
	CategoryConflict = 5

	// CategoryInternal indicates internal errors.
	CategoryInternal = 7

	// CategoryIO indicates file system errors.
	CategoryIO = 8

	// CategoryConfig indicates configuration errors.
	CategoryConfig = 12
)

// MakeCode creates an error code from module, category, and sequence.
// Format: AABBCCC where AA=module, BB=category, CCC=sequence
func MakeCode(module, category, sequence int) int {
	return module*100000 + category*1000 + sequence
}

// ParseCode parses an error code into module, category, and sequence.
func ParseCode(code int) (module, category, sequence int) {
	module = code / 100000
	category = (code % 100000) / 1000
	sequence = code % 1000
	return
}
