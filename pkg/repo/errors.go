package repo

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/odvcencio/notesync/pkg/object"
)

// Error kinds surfaced by reference, tree, merge and diff operations. Match
// them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidSpec       = errors.New("invalid spec")
	ErrAlreadyExists     = errors.New("already exists")
	ErrAmbiguous         = errors.New("ambiguous reference")
	ErrInvalidReference  = errors.New("invalid reference")
	ErrUnknownReference  = errors.New("unknown reference")
	ErrUnableToMerge     = errors.New("unable to merge")
	ErrModifiedElsewhere = errors.New("reference modified elsewhere")
	ErrNotImplemented    = errors.New("not implemented")

	ErrUnmergedIndex   = errors.New("index has unresolved conflicts")
	ErrMergeInProgress = errors.New("merge in progress")
	ErrNoMergeState    = errors.New("no merge in progress")
)

// RefError ties an error kind to the reference or spec it was raised for.
type RefError struct {
	Kind error
	Ref  string
	Err  error
}

func (e *RefError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %q: %v", e.Kind, e.Ref, e.Err)
	}
	return fmt.Sprintf("%s: %q", e.Kind, e.Ref)
}

func (e *RefError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *RefError) Is(target error) bool {
	return e != nil && target == e.Kind
}

func notFound(ref string) error {
	return &RefError{Kind: ErrNotFound, Ref: ref}
}

func invalidSpec(spec string, reason string) error {
	return &RefError{Kind: ErrInvalidSpec, Ref: spec, Err: errors.New(reason)}
}

func modifiedElsewhere(ref string, err error) error {
	return &RefError{Kind: ErrModifiedElsewhere, Ref: ref, Err: err}
}

func isModifiedElsewhere(err error) bool {
	return errors.Is(err, ErrModifiedElsewhere)
}

// UnknownError wraps a backend failure that maps to no other kind.
type UnknownError struct {
	Code        int
	Description string
	Err         error
}

// CodeGeneric is the code of backend failures without a more specific code.
const CodeGeneric = -1

func (e *UnknownError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("unknown error (code %d): %s", e.Code, e.Description)
}

func (e *UnknownError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func classifyObjectError(h object.Hash, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return &RefError{Kind: ErrNotFound, Ref: string(h), Err: err}
	}
	var unknown *UnknownError
	if errors.As(err, &unknown) {
		return err
	}
	return &UnknownError{Code: CodeGeneric, Description: err.Error(), Err: err}
}
