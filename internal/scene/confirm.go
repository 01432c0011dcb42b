package scene

import "github.com/gyaneshwarpardhi/never2/internal/property"

// Confirmer asks the user a yes/no question before a destructive change.
type Confirmer interface {
	Confirm(title, message string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(title, message string) bool

func (f ConfirmFunc) Confirm(title, message string) bool { return f(title, message) }

var (
	// AlwaysConfirm answers yes to every question.
	AlwaysConfirm Confirmer = ConfirmFunc(func(string, string) bool { return true })
	// NeverConfirm answers no to every question.
	NeverConfirm Confirmer = ConfirmFunc(func(string, string) bool { return false })
)

// PropertyEditor lets the user author a property for a freshly created
// property block. A nil definition with a nil error means the user cancelled.
type PropertyEditor interface {
	EditProperty(kind property.Kind, symbol string, variables []string) (property.Definition, error)
}

// PropertyEditorFunc adapts a function to PropertyEditor.
type PropertyEditorFunc func(kind property.Kind, symbol string, variables []string) (property.Definition, error)

func (f PropertyEditorFunc) EditProperty(kind property.Kind, symbol string, variables []string) (property.Definition, error) {
	return f(kind, symbol, variables)
}

type cancelEditor struct{}

func (cancelEditor) EditProperty(property.Kind, string, []string) (property.Definition, error) {
	return nil, nil
}
