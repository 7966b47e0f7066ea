//go:build !ryzenadj || !cgo

package native

import (
	"errors"
	"fmt"

	"github.com/apuctl/apuctl/internal/domain"
)

var errNotBuilt = errors.New("built without ryzenadj support (rebuild with -tags ryzenadj and cgo enabled)")

type ryzenAdj struct{}

// RyzenAdj returns a library whose Open always fails: this binary was
// built without the libryzenadj binding.
func RyzenAdj() Library { return ryzenAdj{} }

func (ryzenAdj) Name() string { return DriverRyzenAdj }

func (ryzenAdj) Open() (Session, error) {
	return nil, &domain.OpError{Op: "init", Err: fmt.Errorf("%w: %w", domain.ErrAcquireFailed, errNotBuilt)}
}
