package domain

import (
	"fmt"
	"time"
)

// Profile is a named set of limit values applied as one batch.
// Values are in each parameter's write unit.
type Profile struct {
	Name      string            `json:"name" yaml:"name" toml:"name"`
	Settings  map[string]uint32 `json:"settings" yaml:"settings" toml:"settings"`
	CreatedAt time.Time         `json:"created_at" yaml:"-" toml:"-"`
	UpdatedAt time.Time         `json:"updated_at" yaml:"-" toml:"-"`
}

// Validate checks the profile name and that every setting names a
// writable parameter.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: empty name", ErrProfileInvalid)
	}
	if len(p.Settings) == 0 {
		return fmt.Errorf("%w: no settings", ErrProfileInvalid)
	}
	for name := range p.Settings {
		param, ok := LookupParameter(name)
		if !ok {
			return fmt.Errorf("%w: unknown parameter %q", ErrProfileInvalid, name)
		}
		if !param.Writable() {
			return fmt.Errorf("%w: parameter %q is not writable", ErrProfileInvalid, name)
		}
	}
	return nil
}

// OrderedNames returns setting names in apply order.
func (p Profile) OrderedNames() []string {
	names := make([]string, 0, len(p.Settings))
	for n := range p.Settings {
		names = append(names, n)
	}
	return ApplyOrder(names)
}

// ApplyRecord is one row of the profile apply history.
type ApplyRecord struct {
	ID          string    `json:"id"`
	Profile     string    `json:"profile"`
	AppliedAt   time.Time `json:"applied_at"`
	Applied     []string  `json:"applied"`
	FailedParam string    `json:"failed_param,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Succeeded reports whether every write in the run went through.
func (r ApplyRecord) Succeeded() bool { return r.Error == "" }
