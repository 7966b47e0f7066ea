package device

import (
	"math"

	"github.com/apuctl/apuctl/internal/domain"
)

// Get reads a non-per-core parameter. The driver's getters have no error
// channel: a failed read comes back as 0 or NaN and is returned as-is.
func (h *Handle) Get(p domain.Parameter) (float64, error) {
	if err := h.live("get"); err != nil {
		return 0, domain.Wrap("get", p.Name, err)
	}
	if !p.Readable() || p.PerCore {
		return 0, &domain.OpError{Op: "get", Param: p.Name, Err: domain.ErrCapabilityMismatch}
	}
	return float64(h.ns.Get(p.Getter)), nil
}

// GetCore reads a per-core parameter. Negative indices are always
// rejected; indices at or above a known core count are rejected locally.
// With an unknown core count the index goes to the driver, which answers
// out-of-range reads with a meaningless value.
func (h *Handle) GetCore(p domain.Parameter, core int) (float64, error) {
	if err := h.live("get"); err != nil {
		return 0, domain.Wrap("get", p.Name, err)
	}
	if !p.Readable() || !p.PerCore {
		return 0, &domain.OpError{Op: "get", Param: p.Name, Err: domain.ErrCapabilityMismatch}
	}
	if core < 0 || uint64(core) > math.MaxUint32 || (h.cores > 0 && core >= h.cores) {
		return 0, &domain.OpError{Op: "get", Param: p.Name, Err: domain.ErrValueOutOfDomain}
	}
	return float64(h.ns.GetCore(p.Getter, uint32(core))), nil
}

// Set writes a parameter. The value must fit the driver's uint32; the
// return code is the only source of truth and nothing is cached.
func (h *Handle) Set(p domain.Parameter, value int64) error {
	if err := h.live("set"); err != nil {
		return domain.Wrap("set", p.Name, err)
	}
	if err := ValidateSet(p, value); err != nil {
		return err
	}
	return domain.Wrap("set", p.Name, domain.FromCode(h.ns.Set(p.Setter, uint32(value))))
}

// ValidateSet performs the local checks Set runs before the native call.
func ValidateSet(p domain.Parameter, value int64) error {
	if !p.Writable() {
		return &domain.OpError{Op: "set", Param: p.Name, Err: domain.ErrCapabilityMismatch}
	}
	if value < 0 || value > math.MaxUint32 {
		return &domain.OpError{Op: "set", Param: p.Name, Err: domain.ErrValueOutOfDomain}
	}
	return nil
}
