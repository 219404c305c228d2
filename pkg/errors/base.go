package errors

// ============================================================================
// Common Errors
// ============================================================================

var (
	// ErrInvalidConfig indicates a setting that failed validation.
	ErrInvalidConfig = Register(&Errno{
		Code:    MakeCode(ModuleCommon, CategoryConfig, 0),
		Message: "Invalid configuration",
	})

	// ErrInvalidRootPath indicates the root log path is empty or cannot be created.
	ErrInvalidRootPath = Register(&Errno{
		Code:    MakeCode(ModuleCommon, CategoryConfig, 1),
		Message: "Invalid root log path",
	})
)

// ============================================================================
// Sink Errors
// ============================================================================

var (
	// ErrSinkClosed indicates a write through a sink that has been torn down.
	ErrSinkClosed = Register(&Errno{
		Code:    MakeCode(ModuleSink, CategoryConflict, 0),
		Message: "Sink closed",
	})

	// ErrSinkNotFound indicates a lookup of a sink name that was never created.
	ErrSinkNotFound = Register(&Errno{
		Code:    MakeCode(ModuleSink, CategoryResource, 0),
		Message: "Sink not found",
	})

	// ErrRegistryActive indicates a second registry initialisation in the same process.
	ErrRegistryActive = Register(&Errno{
		Code:    MakeCode(ModuleSink, CategoryConflict, 1),
		Message: "Registry already initialized",
	})

	// ErrRegistryClosed indicates use of a registry after Shutdown.
	ErrRegistryClosed = Register(&Errno{
		Code:    MakeCode(ModuleSink, CategoryConflict, 2),
		Message: "Registry closed",
	})

	// ErrIOFailure indicates a failed file write or delete.
	ErrIOFailure = Register(&Errno{
		Code:    MakeCode(ModuleSink, CategoryIO, 0),
		Message: "I/O failure",
	})
)

// ============================================================================
// Formatter Errors
// ============================================================================

// ErrInvalidFormatOptions indicates negative row, column or width limits.
var ErrInvalidFormatOptions = Register(&Errno{
	Code:    MakeCode(ModuleFormat, CategoryRequest, 0),
	Message: "Invalid format options",
})

// ============================================================================
// Instrumentation Errors
// ============================================================================

var (
	// ErrUnsupportedTargetKind indicates a wrap target that is neither a function nor a method set.
	ErrUnsupportedTargetKind = Register(&Errno{
		Code:    MakeCode(ModuleInstrument, CategoryRequest, 0),
		Message: "Unsupported target kind",
	})

	// ErrMethodNotFound indicates a proxy call to a method the target does not have.
	ErrMethodNotFound = Register(&Errno{
		Code:    MakeCode(ModuleInstrument, CategoryResource, 0),
		Message: "Method not found",
	})

	// ErrBadArguments indicates arguments that do not match a reflected function signature.
	ErrBadArguments = Register(&Errno{
		Code:    MakeCode(ModuleInstrument, CategoryRequest, 1),
		Message: "Bad arguments",
	})
)

// ============================================================================
// Pool Errors
// ============================================================================

var (
	// ErrPoolClosed indicates a submit to a released pool.
	ErrPoolClosed = Register(&Errno{
		Code:    MakeCode(ModulePool, CategoryConflict, 0),
		Message: "Pool closed",
	})

	// ErrPoolOverload indicates a full non-blocking pool.
	ErrPoolOverload = Register(&Errno{
		Code:    MakeCode(ModulePool, CategoryInternal, 0),
		Message: "Pool overloaded",
	})
)
