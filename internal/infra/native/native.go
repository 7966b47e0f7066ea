// Package native is the foreign-function boundary to the RyzenAdj driver.
// The real libryzenadj binding is behind the Library interface, allowing
// clean testing with the simulated driver. Nothing in this package is
// safe for concurrent use; callers serialize access.
package native

import (
	"fmt"

	"github.com/apuctl/apuctl/internal/domain"
)

// Library opens native driver sessions. Implementations must be
// comparable: equal values denote the same device. Use a pointer or an
// empty struct.
type Library interface {
	// Open calls init_ryzenadj. A null token is reported as an error.
	Open() (Session, error)
	Name() string
}

// Session is a live native session token plus the calls that use it.
// Return codes are raw driver integers: 0 success, negative failure.
// Getters have no error channel; failure surfaces as 0 or NaN.
type Session interface {
	Close()
	Family() int
	BiosInterfaceVersion() int

	InitTable() int
	RefreshTable() int
	TableVersion() uint32
	TableSize() int
	// TableValues returns a copy of the driver's float table. The driver's
	// own buffer is only valid until the next refresh or cleanup.
	TableValues() []float32

	Set(fn domain.Setter, value uint32) int
	Get(fn domain.Getter) float32
	GetCore(fn domain.Getter, core uint32) float32
}

// Driver names accepted by Open.
const (
	DriverRyzenAdj  = "ryzenadj"
	DriverSimulated = "simulated"
)

// Open returns the library registered under name.
func Open(name string) (Library, error) {
	switch name {
	case DriverRyzenAdj, "":
		return RyzenAdj(), nil
	case DriverSimulated:
		return NewSimulated(DefaultSimConfig()), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownDriver, name)
	}
}
