//go:build ryzenadj && cgo

// libryzenadj binding. Selected with -tags ryzenadj; the library and
// ryzenadj.h must be on the compiler and loader search paths. Otherwise the
// stub in ryzenadj_stub.go is compiled and Open always fails.
package native

/*
#cgo LDFLAGS: -lryzenadj
#cgo linux LDFLAGS: -lpci
#include <stdint.h>
#include <stdlib.h>
#include <ryzenadj.h>
*/
import "C"

import (
	"unsafe"

	"github.com/apuctl/apuctl/internal/domain"
)

type ryzenAdj struct{}

// RyzenAdj returns the libryzenadj library.
func RyzenAdj() Library { return ryzenAdj{} }

func (ryzenAdj) Name() string { return DriverRyzenAdj }

func (ryzenAdj) Open() (Session, error) {
	ry := C.init_ryzenadj()
	if ry == nil {
		return nil, &domain.OpError{Op: "init", Err: domain.ErrAcquireFailed}
	}
	return &cSession{ry: ry}, nil
}

// cSession owns the native token. The token never leaves this type.
type cSession struct {
	ry C.ryzen_access
}

func (s *cSession) Close() {
	C.cleanup_ryzenadj(s.ry)
	s.ry = nil
}

func (s *cSession) Family() int               { return int(C.get_cpu_family(s.ry)) }
func (s *cSession) BiosInterfaceVersion() int { return int(C.get_bios_if_ver(s.ry)) }
func (s *cSession) InitTable() int            { return int(C.init_table(s.ry)) }
func (s *cSession) RefreshTable() int         { return int(C.refresh_table(s.ry)) }
func (s *cSession) TableVersion() uint32      { return uint32(C.get_table_ver(s.ry)) }
func (s *cSession) TableSize() int            { return int(C.get_table_size(s.ry)) }

func (s *cSession) TableValues() []float32 {
	ptr := C.get_table_values(s.ry)
	n := int(C.get_table_size(s.ry)) / 4
	if ptr == nil || n <= 0 {
		return nil
	}
	src := unsafe.Slice((*float32)(unsafe.Pointer(ptr)), n)
	out := make([]float32, n)
	copy(out, src)
	return out
}

func (s *cSession) Set(fn domain.Setter, value uint32) int {
	v := C.uint32_t(value)
	switch fn {
	case domain.SetStapmLimit:
		return int(C.set_stapm_limit(s.ry, v))
	case domain.SetFastLimit:
		return int(C.set_fast_limit(s.ry, v))
	case domain.SetSlowLimit:
		return int(C.set_slow_limit(s.ry, v))
	case domain.SetSlowTime:
		return int(C.set_slow_time(s.ry, v))
	case domain.SetStapmTime:
		return int(C.set_stapm_time(s.ry, v))
	case domain.SetTctlTemp:
		return int(C.set_tctl_temp(s.ry, v))
	case domain.SetVrmCurrent:
		return int(C.set_vrm_current(s.ry, v))
	case domain.SetVrmSocCurrent:
		return int(C.set_vrmsoc_current(s.ry, v))
	case domain.SetVrmMaxCurrent:
		return int(C.set_vrmmax_current(s.ry, v))
	case domain.SetVrmSocMaxCurrent:
		return int(C.set_vrmsocmax_current(s.ry, v))
	case domain.SetApuSkinTempLimit:
		return int(C.set_apu_skin_temp_limit(s.ry, v))
	case domain.SetDgpuSkinTempLimit:
		return int(C.set_dgpu_skin_temp_limit(s.ry, v))
	}
	return int(domain.ErrOperationUnsupported)
}

func (s *cSession) Get(fn domain.Getter) float32 {
	ry := s.ry
	var v C.float
	switch fn {
	case domain.GetStapmLimit:
		v = C.get_stapm_limit(ry)
	case domain.GetStapmValue:
		v = C.get_stapm_value(ry)
	case domain.GetFastLimit:
		v = C.get_fast_limit(ry)
	case domain.GetFastValue:
		v = C.get_fast_value(ry)
	case domain.GetSlowLimit:
		v = C.get_slow_limit(ry)
	case domain.GetSlowValue:
		v = C.get_slow_value(ry)
	case domain.GetApuSlowLimit:
		v = C.get_apu_slow_limit(ry)
	case domain.GetApuSlowValue:
		v = C.get_apu_slow_value(ry)
	case domain.GetTctlTemp:
		v = C.get_tctl_temp(ry)
	case domain.GetTctlTempValue:
		v = C.get_tctl_temp_value(ry)
	case domain.GetApuSkinTempLimit:
		v = C.get_apu_skin_temp_limit(ry)
	case domain.GetApuSkinTempValue:
		v = C.get_apu_skin_temp_value(ry)
	case domain.GetVrmCurrent:
		v = C.get_vrm_current(ry)
	case domain.GetVrmCurrentValue:
		v = C.get_vrm_current_value(ry)
	case domain.GetVrmSocCurrent:
		v = C.get_vrmsoc_current(ry)
	case domain.GetVrmSocCurrentValue:
		v = C.get_vrmsoc_current_value(ry)
	case domain.GetVrmMaxCurrent:
		v = C.get_vrmmax_current(ry)
	case domain.GetVrmMaxCurrentValue:
		v = C.get_vrmmax_current_value(ry)
	case domain.GetVrmSocMaxCurrent:
		v = C.get_vrmsocmax_current(ry)
	case domain.GetVrmSocMaxCurrentValue:
		v = C.get_vrmsocmax_current_value(ry)
	case domain.GetGfxClk:
		v = C.get_gfx_clk(ry)
	case domain.GetGfxTemp:
		v = C.get_gfx_temp(ry)
	case domain.GetGfxVolt:
		v = C.get_gfx_volt(ry)
	case domain.GetMemClk:
		v = C.get_mem_clk(ry)
	case domain.GetFclk:
		v = C.get_fclk(ry)
	case domain.GetSocPower:
		v = C.get_soc_power(ry)
	case domain.GetSocVolt:
		v = C.get_soc_volt(ry)
	case domain.GetSocketPower:
		v = C.get_socket_power(ry)
	}
	return float32(v)
}

func (s *cSession) GetCore(fn domain.Getter, core uint32) float32 {
	c := C.uint32_t(core)
	var v C.float
	switch fn {
	case domain.GetCoreClk:
		v = C.get_core_clk(s.ry, c)
	case domain.GetCoreVolt:
		v = C.get_core_volt(s.ry, c)
	case domain.GetCorePower:
		v = C.get_core_power(s.ry, c)
	case domain.GetCoreTemp:
		v = C.get_core_temp(s.ry, c)
	}
	return float32(v)
}
