// Package xerrors is the domain error taxonomy for the storage engine.
// It replaces the original implementation's exception hierarchy
// (DSSException and its subclasses) with a single error type carrying a
// Kind, so callers can branch with errors.As instead of a class switch.
package xerrors

import "fmt"

// Kind classifies a domain error.
type Kind int

const (
	Internal Kind = iota
	Validation
	HostSnapshotInvalid
	DiskSnapshotStorageInvalid
	StorageLockerNotExist
	StorageLockerRepeatGet
	StorageDirectoryInvalid
	StorageReferenceRepeated
	StorageImageFileNotExist
	TaskIdentDuplicate
	HandleNotExist
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case HostSnapshotInvalid:
		return "host_snapshot_invalid"
	case DiskSnapshotStorageInvalid:
		return "disk_snapshot_storage_invalid"
	case StorageLockerNotExist:
		return "storage_locker_not_exist"
	case StorageLockerRepeatGet:
		return "storage_locker_repeat_get"
	case StorageDirectoryInvalid:
		return "storage_directory_invalid"
	case StorageReferenceRepeated:
		return "storage_reference_repeated"
	case StorageImageFileNotExist:
		return "storage_image_file_not_exist"
	case TaskIdentDuplicate:
		return "task_ident_duplicate"
	case HandleNotExist:
		return "handle_not_exist"
	default:
		return "internal"
	}
}

// Error is the domain error type. Op names the failing operation, Msg
// is safe to surface to a caller, Debug carries developer detail (for a
// wrapped error, its message). Error() includes Debug when it is set.
type Error struct {
	Op    string
	Kind  Kind
	Msg   string
	Debug string
	Err   error
}

func (e *Error) Error() string {
	if e.Debug != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Msg, e.Debug)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a domain error with no wrapped cause.
func New(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// Wrap constructs a domain error around an existing error, attaching
// debug detail from err's message.
func Wrap(op string, kind Kind, msg string, err error) *Error {
	e := &Error{Op: op, Kind: kind, Msg: msg, Err: err}
	if err != nil {
		e.Debug = err.Error()
	}
	return e
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return Internal
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
