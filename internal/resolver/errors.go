package resolver

import (
	"errors"
	"fmt"

	"github.com/dgallion1/annodoc/internal/syntax"
)

// MissingContextError is returned when a line that contributes to an entity
// appears before any entity has been opened.
type MissingContextError struct {
	Token syntax.Token
}

func (e *MissingContextError) Error() string {
	return fmt.Sprintf("line %d: %s needs an entity context: %q", e.Token.LineNo, e.Token.Kind, e.Token.Text)
}

// ContinuationWithoutSignatureError is returned when a signature
// continuation has no signature to extend.
type ContinuationWithoutSignatureError struct {
	Token syntax.Token
}

func (e *ContinuationWithoutSignatureError) Error() string {
	return fmt.Sprintf("line %d: signature continuation without previous signature: %q", e.Token.LineNo, e.Token.Text)
}

// UnknownTokenError is returned for a token kind the resolver does not handle.
type UnknownTokenError struct {
	Token syntax.Token
}

func (e *UnknownTokenError) Error() string {
	return fmt.Sprintf("line %d: don't know how to handle tokens of kind <%s>", e.Token.LineNo, e.Token.Kind)
}

// UnknownDeclarationError is returned in strict mode for a declaration
// keyword with no kind mapping.
type UnknownDeclarationError struct {
	Token syntax.Token
}

func (e *UnknownDeclarationError) Error() string {
	return fmt.Sprintf("line %d: unknown declaration type %q for %q", e.Token.LineNo, e.Token.Type, e.Token.Text)
}

// Line returns the line number carried by a resolver error anywhere in
// err's chain, or 0 when there is none.
func Line(err error) int {
	var (
		mc *MissingContextError
		cs *ContinuationWithoutSignatureError
		ut *UnknownTokenError
		ud *UnknownDeclarationError
	)
	switch {
	case errors.As(err, &mc):
		return mc.Token.LineNo
	case errors.As(err, &cs):
		return cs.Token.LineNo
	case errors.As(err, &ut):
		return ut.Token.LineNo
	case errors.As(err, &ud):
		return ud.Token.LineNo
	}
	return 0
}

// Reason returns a short label for a resolver error, used for metrics.
func Reason(err error) string {
	var (
		mc *MissingContextError
		cs *ContinuationWithoutSignatureError
		ut *UnknownTokenError
		ud *UnknownDeclarationError
	)
	switch {
	case errors.As(err, &mc):
		return "missing_context"
	case errors.As(err, &cs):
		return "continuation_without_signature"
	case errors.As(err, &ut):
		return "unknown_token"
	case errors.As(err, &ud):
		return "unknown_declaration"
	}
	return "other"
}
