// Package errors provides standardized error messaging for sharedref
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryMemory     ErrorCategory = "MEMORY"
	CategoryOwnership  ErrorCategory = "OWNERSHIP"
	CategoryBounds     ErrorCategory = "BOUNDS"
	CategoryOverflow   ErrorCategory = "OVERFLOW"
	CategoryValidation ErrorCategory = "VALIDATION"
	CategorySecurity   ErrorCategory = "SECURITY"
)

// Sentinels matched with errors.Is against any StandardError built below.
var (
	ErrOutOfMemory    = stderrors.New("out of memory")
	ErrNoOwner        = stderrors.New("object is not owned by a shared reference")
	ErrConstruction   = stderrors.New("object construction failed")
	ErrInvalidLayout  = stderrors.New("invalid allocation layout")
	ErrPointerLayout  = stderrors.New("layout contains pointers")
	ErrDoubleFree     = stderrors.New("double deallocation")
	ErrLayoutMismatch = stderrors.New("deallocation layout mismatch")
	ErrDeadReference  = stderrors.New("release of a dead control block")
	ErrBadConversion  = stderrors.New("handle conversion not permitted")
	ErrIndexRange     = stderrors.New("index out of range")
)

// StandardError provides a consistent error format
type StandardError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Context  map[string]interface{}
	Caller   string
	Err      error
}

// Error implements the error interface
func (e *StandardError) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

// Unwrap exposes the sentinel (and any cause) to errors.Is and errors.As.
func (e *StandardError) Unwrap() error {
	return e.Err
}

// NewStandardError creates a new standardized error
func NewStandardError(category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	return newStandardError(2, category, code, message, context, nil)
}

func newStandardError(skip int, category ErrorCategory, code, message string, context map[string]interface{}, err error) *StandardError {
	pc, _, _, ok := runtime.Caller(skip)
	caller := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &StandardError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
		Err:      err,
	}
}

// Common error constructors

// OutOfMemory reports that an allocator could not satisfy a request.
func OutOfMemory(size, align, limit uintptr) *StandardError {
	return newStandardError(2, CategoryMemory, "OUT_OF_MEMORY",
		fmt.Sprintf("Cannot allocate %d bytes aligned to %d (limit %d)", size, align, limit),
		map[string]interface{}{"size": size, "align": align, "limit": limit},
		ErrOutOfMemory)
}

// AllocationLimit reports that the live allocation count reached its cap.
func AllocationLimit(live, max int) *StandardError {
	return newStandardError(2, CategoryMemory, "ALLOCATION_LIMIT",
		fmt.Sprintf("Live allocation count %d reached limit %d", live, max),
		map[string]interface{}{"live": live, "max": max},
		ErrOutOfMemory)
}

// InjectedFailure reports a failure produced by fault injection.
func InjectedFailure(after int) *StandardError {
	return newStandardError(2, CategoryMemory, "INJECTED_FAILURE",
		fmt.Sprintf("Allocation failed after %d successful allocations", after),
		map[string]interface{}{"after": after},
		ErrOutOfMemory)
}

// NoOwner reports a self-reference derivation on an object without a live owner.
func NoOwner(operation string) *StandardError {
	return newStandardError(2, CategoryOwnership, "NO_OWNER",
		fmt.Sprintf("No owning shared reference exists in %s", operation),
		map[string]interface{}{"operation": operation},
		ErrNoOwner)
}

// ConstructionFailed wraps an error returned (or panic raised) by an object constructor.
func ConstructionFailed(typeName string, cause error) *StandardError {
	return newStandardError(2, CategoryOwnership, "CONSTRUCTION_FAILED",
		fmt.Sprintf("Constructor for %s failed: %v", typeName, cause),
		map[string]interface{}{"type": typeName},
		stderrors.Join(ErrConstruction, cause))
}

// DeadReference reports a release below zero.
func DeadReference(count int64) *StandardError {
	return newStandardError(2, CategoryOwnership, "DEAD_REFERENCE",
		fmt.Sprintf("Reference count dropped to %d", count),
		map[string]interface{}{"count": count},
		ErrDeadReference)
}

// BadConversion reports an upcast between non-assignable handle types.
func BadConversion(from, to string) *StandardError {
	return newStandardError(2, CategoryOwnership, "BAD_CONVERSION",
		fmt.Sprintf("%s is not assignable to %s", from, to),
		map[string]interface{}{"from": from, "to": to},
		ErrBadConversion)
}

func IndexOutOfBounds(index, length int) *StandardError {
	return newStandardError(2, CategoryBounds, "INDEX_OUT_OF_BOUNDS",
		fmt.Sprintf("Index %d out of bounds for length %d", index, length),
		map[string]interface{}{"index": index, "length": length},
		ErrIndexRange)
}

func IntegerOverflow(operation string, values ...interface{}) *StandardError {
	return newStandardError(2, CategoryOverflow, "INTEGER_OVERFLOW",
		fmt.Sprintf("Integer overflow in %s operation", operation),
		map[string]interface{}{"operation": operation, "values": values},
		ErrInvalidLayout)
}

func InvalidSize(size uintptr, context string) *StandardError {
	return newStandardError(2, CategoryValidation, "INVALID_SIZE",
		fmt.Sprintf("Invalid size %d in %s", size, context),
		map[string]interface{}{"size": size, "context": context},
		ErrInvalidLayout)
}

func InvalidAlignment(align uintptr, context string) *StandardError {
	return newStandardError(2, CategoryValidation, "INVALID_ALIGNMENT",
		fmt.Sprintf("Alignment %d is not a power of two in %s", align, context),
		map[string]interface{}{"align": align, "context": context},
		ErrInvalidLayout)
}

// PointerLayout reports a layout with pointers handed to an allocator whose
// memory is invisible to the garbage collector.
func PointerLayout(typeName string) *StandardError {
	return newStandardError(2, CategorySecurity, "POINTER_LAYOUT",
		fmt.Sprintf("Type %s contains pointers and cannot live in untyped memory", typeName),
		map[string]interface{}{"type": typeName},
		ErrPointerLayout)
}

func DoubleFree(ptr uintptr) *StandardError {
	return newStandardError(2, CategoryMemory, "DOUBLE_FREE",
		fmt.Sprintf("Pointer 0x%x is not a live allocation", ptr),
		map[string]interface{}{"pointer": ptr},
		ErrDoubleFree)
}

func LayoutMismatch(ptr, gotSize, gotAlign, wantSize, wantAlign uintptr) *StandardError {
	return newStandardError(2, CategoryMemory, "LAYOUT_MISMATCH",
		fmt.Sprintf("Pointer 0x%x freed as %d/%d but allocated as %d/%d", ptr, gotSize, gotAlign, wantSize, wantAlign),
		map[string]interface{}{"pointer": ptr, "size": gotSize, "align": gotAlign},
		ErrLayoutMismatch)
}
