package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrFieldAbsent is returned when a field does not exist in
	// the current context.
	ErrFieldAbsent = errors.New("field is absent in this context")
)

// NewFieldLayout creates a new instance of a *FieldLayout with
// the specified initial context. Refer to FieldLayout's documentation
// for more information.
func NewFieldLayout(initialContext string) *FieldLayout {
	return &FieldLayout{
		currentContext:           initialContext,
		contextToFieldsToOffsets: make(map[string]map[string]fieldOffset),
	}
}

// FieldLayout maps the fields of a structure to byte offsets for
// several binary variants. A context is typically the name of a build
// or version of the target program.
//
// Different builds of the same program often reorder or drop fields.
// Rather than hard coding offsets for one build, describe each build
// in its own context and select the context that matches the running
// binary. A field can be marked absent in a context, in which case
// looking it up fails with ErrFieldAbsent instead of yielding a
// bogus offset.
type FieldLayout struct {
	currentContext           string
	contextToFieldsToOffsets map[string]map[string]fieldOffset
}

type fieldOffset struct {
	offset uintptr
	absent bool
}

// SetContext sets the current context to the specified value.
func (o *FieldLayout) SetContext(context string) *FieldLayout {
	o.currentContext = context
	return o
}

// DeleteContext deletes the specified context.
func (o *FieldLayout) DeleteContext(context string) *FieldLayout {
	delete(o.contextToFieldsToOffsets, context)
	return o
}

// AddFieldInContext adds or sets the offset of a field for
// the specified context.
func (o *FieldLayout) AddFieldInContext(fieldName string, offset uintptr, context string) *FieldLayout {
	o.fields(context)[fieldName] = fieldOffset{offset: offset}
	return o
}

// MarkAbsentInContext records that a field does not exist in
// the specified context.
func (o *FieldLayout) MarkAbsentInContext(fieldName string, context string) *FieldLayout {
	o.fields(context)[fieldName] = fieldOffset{absent: true}
	return o
}

// DeleteFieldFromContext deletes a field from the specified context.
func (o *FieldLayout) DeleteFieldFromContext(fieldName string, context string) *FieldLayout {
	fieldsToOffsets, hasIt := o.contextToFieldsToOffsets[context]
	if hasIt {
		delete(fieldsToOffsets, fieldName)
	}
	return o
}

// CurrentContext returns the current context.
func (o *FieldLayout) CurrentContext() string {
	return o.currentContext
}

// Offset returns the offset of the specified field for the currently
// selected context.
func (o *FieldLayout) Offset(fieldName string) (uintptr, error) {
	return o.offsetIn(o.currentContext, fieldName)
}

func (o *FieldLayout) offsetIn(context string, fieldName string) (uintptr, error) {
	fieldsToOffsets, hasIt := o.contextToFieldsToOffsets[context]
	if !hasIt {
		return 0, fmt.Errorf("the context '%s' is not in the layout",
			context)
	}

	field, hasIt := fieldsToOffsets[fieldName]
	if !hasIt {
		return 0, fmt.Errorf("failed to find the field '%s' in the layout for '%s'",
			fieldName, context)
	}

	if field.absent {
		return 0, fmt.Errorf("'%s' in '%s' - %w", fieldName, context, ErrFieldAbsent)
	}

	return field.offset, nil
}

// OffsetOrExit returns the offset of the specified field for the
// currently selected context.
//
// If the context or the field do not exist, then DefaultExitFn is invoked.
func (o *FieldLayout) OffsetOrExit(fieldName string) uintptr {
	offset, err := o.Offset(fieldName)
	if err != nil {
		DefaultExitFn(err)
	}

	return offset
}

// Has returns true if the field exists in the current context.
func (o *FieldLayout) Has(fieldName string) bool {
	_, err := o.Offset(fieldName)
	return err == nil
}

// Bind returns an Object that resolves the layout's fields against
// the instance at base using the current context.
func (o *FieldLayout) Bind(base uintptr) *Object {
	return &Object{
		layout:  o,
		context: o.currentContext,
		base:    base,
	}
}

func (o *FieldLayout) fields(context string) map[string]fieldOffset {
	fieldsToOffsets := o.contextToFieldsToOffsets[context]
	if fieldsToOffsets == nil {
		fieldsToOffsets = make(map[string]fieldOffset)
		o.contextToFieldsToOffsets[context] = fieldsToOffsets
	}

	return fieldsToOffsets
}

// Object is a FieldLayout bound to one instance.
type Object struct {
	layout  *FieldLayout
	context string
	base    uintptr
}

// Base returns the address of the instance.
func (o *Object) Base() uintptr {
	return o.base
}

// Field returns the address of the specified field.
func (o *Object) Field(fieldName string) (uintptr, error) {
	offset, err := o.layout.offsetIn(o.context, fieldName)
	if err != nil {
		return 0, err
	}

	return o.base + offset, nil
}

func (o *Object) FieldOrExit(fieldName string) uintptr {
	addr, err := o.Field(fieldName)
	if err != nil {
		DefaultExitFn(err)
	}

	return addr
}

// Has returns true if the field exists for this instance.
func (o *Object) Has(fieldName string) bool {
	_, err := o.Field(fieldName)
	return err == nil
}
