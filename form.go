package siteauth

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Values is a snapshot of a form's current field values, handed to field
// validators so cross-field checks never reach back into the form.
type Values map[string]string

// FieldValidator validates one field value against the form snapshot.
type FieldValidator func(value string, values Values) CheckResult

// WithCheck adapts a single-value check into a FieldValidator.
func WithCheck(fn func(string) CheckResult) FieldValidator {
	return func(value string, _ Values) CheckResult {
		return fn(value)
	}
}

// ConfirmationOf builds a validator for a password-confirmation field that
// checks it against the named password field.
func ConfirmationOf(passwordField string, policy ValidationPolicy) FieldValidator {
	return func(value string, values Values) CheckResult {
		return policy.CheckPasswordConfirmation(values[passwordField], value)
	}
}

type formField struct {
	value   string
	touched bool
	valid   *bool // nil until the field's validator has run once
	message string
}

// Form binds field values to validators and aggregates submit eligibility.
// Submit is enabled only when every tracked field is valid, and a submission
// in flight blocks further submissions. A field never shows an error before
// it has been touched once.
type Form struct {
	mu         sync.Mutex
	name       string
	order      []string
	fields     map[string]*formField
	validators map[string]FieldValidator
	formValid  bool
	loading    bool

	notifier *Notifier
	logger   *zap.Logger
}

// FormOption configures a Form.
type FormOption func(*Form)

// WithNotifier routes unmapped submission failures to a notifier.
func WithNotifier(n *Notifier) FormOption {
	return func(f *Form) { f.notifier = n }
}

// WithFormLogger sets the form's logger.
func WithFormLogger(logger *zap.Logger) FormOption {
	return func(f *Form) { f.logger = logger }
}

// NewForm creates an empty form.
func NewForm(name string, opts ...FormOption) *Form {
	f := &Form{
		name:       name,
		fields:     make(map[string]*formField),
		validators: make(map[string]FieldValidator),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AddField registers a tracked field. A form with any unevaluated field is
// not submittable.
func (f *Form) AddField(name string, validator FieldValidator) *Form {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.fields[name]; !exists {
		f.order = append(f.order, name)
	}
	f.fields[name] = &formField{}
	f.validators[name] = validator
	f.formValid = false
	return f
}

// SetField updates a field value, marks it touched, runs its validator and
// recomputes form validity. The recompute always happens after the field's
// own validator ran, never against stale flags.
func (f *Form) SetField(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	field, ok := f.fields[name]
	if !ok {
		return
	}
	field.value = value
	field.touched = true

	res := f.validators[name](value, f.valuesLocked())
	v := res.Valid
	field.valid = &v
	field.message = res.Message

	f.recomputeLocked()
}

// SetFieldError attaches an externally-produced error (a mapped backend
// failure) to a field, invalidating it.
func (f *Form) SetFieldError(name, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	field, ok := f.fields[name]
	if !ok {
		return
	}
	field.touched = true
	v := false
	field.valid = &v
	field.message = message
	f.recomputeLocked()
}

// Value returns a field's current value.
func (f *Form) Value(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if field, ok := f.fields[name]; ok {
		return field.value
	}
	return ""
}

// Touched reports whether the field has received at least one change event.
func (f *Form) Touched(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if field, ok := f.fields[name]; ok {
		return field.touched
	}
	return false
}

// FieldError returns the error message to display for a field, or "" when
// the field is valid or has not been touched yet.
func (f *Form) FieldError(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	field, ok := f.fields[name]
	if !ok || !field.touched || field.valid == nil || *field.valid {
		return ""
	}
	return field.message
}

// Valid reports whether every tracked field has been evaluated and is valid.
func (f *Form) Valid() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.formValid
}

// Loading reports whether a submission is in flight.
func (f *Form) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// FieldErrors returns the display errors for every touched invalid field.
func (f *Form) FieldErrors() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string)
	for name, field := range f.fields {
		if field.touched && field.valid != nil && !*field.valid {
			out[name] = field.message
		}
	}
	return out
}

// Submit runs the bound action when the form is valid and no submission is
// in flight; otherwise it is a no-op. Failures are routed back into the
// form: a field-targeted AuthError lands on its field, a recognized backend
// code is mapped first, and anything else surfaces as a generic retry
// notification instead of being swallowed.
func (f *Form) Submit(ctx context.Context, action func(ctx context.Context) error) error {
	f.mu.Lock()
	if f.loading || !f.formValid {
		f.mu.Unlock()
		return nil
	}
	f.loading = true
	f.mu.Unlock()

	err := action(ctx)

	f.mu.Lock()
	f.loading = false
	f.mu.Unlock()

	if err != nil {
		f.routeError(err)
	}
	return err
}

func (f *Form) routeError(err error) {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		authErr = MapBackendError(err, nil)
	}

	switch {
	case authErr != nil && authErr.Field != "":
		f.SetFieldError(authErr.Field, authErr.Message)
	case authErr != nil:
		if f.notifier != nil {
			f.notifier.Show(authErr.Message)
		}
	default:
		f.logger.Warn("unrecognized submission failure",
			zap.String("form", f.name), zap.Error(err))
		if f.notifier != nil {
			f.notifier.Show(MsgGenericFailure)
		}
	}
}

func (f *Form) valuesLocked() Values {
	values := make(Values, len(f.fields))
	for name, field := range f.fields {
		values[name] = field.value
	}
	return values
}

func (f *Form) recomputeLocked() {
	for _, name := range f.order {
		field := f.fields[name]
		if field.valid == nil || !*field.valid {
			f.formValid = false
			return
		}
	}
	f.formValid = true
}
