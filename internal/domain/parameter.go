package domain

import "sort"

// ─── Native Accessors ───────────────────────────────────────────────────────
// Identifiers for the driver's getter and setter symbols. Zero means unbound.

// Setter identifies a native set_* function.
type Setter int

const (
	SetNone Setter = iota
	SetStapmLimit
	SetFastLimit
	SetSlowLimit
	SetSlowTime
	SetStapmTime
	SetTctlTemp
	SetVrmCurrent
	SetVrmSocCurrent
	SetVrmMaxCurrent
	SetVrmSocMaxCurrent
	SetApuSkinTempLimit
	SetDgpuSkinTempLimit
)

var setterSymbols = map[Setter]string{
	SetStapmLimit:        "set_stapm_limit",
	SetFastLimit:         "set_fast_limit",
	SetSlowLimit:         "set_slow_limit",
	SetSlowTime:          "set_slow_time",
	SetStapmTime:         "set_stapm_time",
	SetTctlTemp:          "set_tctl_temp",
	SetVrmCurrent:        "set_vrm_current",
	SetVrmSocCurrent:     "set_vrmsoc_current",
	SetVrmMaxCurrent:     "set_vrmmax_current",
	SetVrmSocMaxCurrent:  "set_vrmsocmax_current",
	SetApuSkinTempLimit:  "set_apu_skin_temp_limit",
	SetDgpuSkinTempLimit: "set_dgpu_skin_temp_limit",
}

// String returns the native symbol name.
func (s Setter) String() string {
	if n, ok := setterSymbols[s]; ok {
		return n
	}
	return "unbound"
}

// Getter identifies a native get_* function.
type Getter int

const (
	GetNone Getter = iota
	GetStapmLimit
	GetStapmValue
	GetFastLimit
	GetFastValue
	GetSlowLimit
	GetSlowValue
	GetApuSlowLimit
	GetApuSlowValue
	GetTctlTemp
	GetTctlTempValue
	GetApuSkinTempLimit
	GetApuSkinTempValue
	GetVrmCurrent
	GetVrmCurrentValue
	GetVrmSocCurrent
	GetVrmSocCurrentValue
	GetVrmMaxCurrent
	GetVrmMaxCurrentValue
	GetVrmSocMaxCurrent
	GetVrmSocMaxCurrentValue
	GetCoreClk
	GetCoreVolt
	GetCorePower
	GetCoreTemp
	GetGfxClk
	GetGfxTemp
	GetGfxVolt
	GetMemClk
	GetFclk
	GetSocPower
	GetSocVolt
	GetSocketPower
)

var getterSymbols = map[Getter]string{
	GetStapmLimit:            "get_stapm_limit",
	GetStapmValue:            "get_stapm_value",
	GetFastLimit:             "get_fast_limit",
	GetFastValue:             "get_fast_value",
	GetSlowLimit:             "get_slow_limit",
	GetSlowValue:             "get_slow_value",
	GetApuSlowLimit:          "get_apu_slow_limit",
	GetApuSlowValue:          "get_apu_slow_value",
	GetTctlTemp:              "get_tctl_temp",
	GetTctlTempValue:         "get_tctl_temp_value",
	GetApuSkinTempLimit:      "get_apu_skin_temp_limit",
	GetApuSkinTempValue:      "get_apu_skin_temp_value",
	GetVrmCurrent:            "get_vrm_current",
	GetVrmCurrentValue:       "get_vrm_current_value",
	GetVrmSocCurrent:         "get_vrmsoc_current",
	GetVrmSocCurrentValue:    "get_vrmsoc_current_value",
	GetVrmMaxCurrent:         "get_vrmmax_current",
	GetVrmMaxCurrentValue:    "get_vrmmax_current_value",
	GetVrmSocMaxCurrent:      "get_vrmsocmax_current",
	GetVrmSocMaxCurrentValue: "get_vrmsocmax_current_value",
	GetCoreClk:               "get_core_clk",
	GetCoreVolt:              "get_core_volt",
	GetCorePower:             "get_core_power",
	GetCoreTemp:              "get_core_temp",
	GetGfxClk:                "get_gfx_clk",
	GetGfxTemp:               "get_gfx_temp",
	GetGfxVolt:               "get_gfx_volt",
	GetMemClk:                "get_mem_clk",
	GetFclk:                  "get_fclk",
	GetSocPower:              "get_soc_power",
	GetSocVolt:               "get_soc_volt",
	GetSocketPower:           "get_socket_power",
}

// String returns the native symbol name.
func (g Getter) String() string {
	if n, ok := getterSymbols[g]; ok {
		return n
	}
	return "unbound"
}

// ─── Parameter Model ────────────────────────────────────────────────────────

// Access describes which directions a parameter supports.
type Access int

const (
	AccessRead Access = iota + 1
	AccessWrite
	AccessReadWrite
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessReadWrite:
		return "read-write"
	default:
		return "none"
	}
}

// Unit is the physical unit of a reading or written value.
type Unit string

const (
	UnitNone      Unit = ""
	UnitMilliwatt Unit = "mW"
	UnitWatt      Unit = "W"
	UnitMilliamp  Unit = "mA"
	UnitAmp       Unit = "A"
	UnitCelsius   Unit = "°C"
	UnitSecond    Unit = "s"
	UnitMegahertz Unit = "MHz"
	UnitVolt      Unit = "V"
)

// Group orders writes when a profile is applied. The firmware may reject
// a setting unless the ones in earlier groups are already in effect.
type Group int

const (
	GroupPower Group = iota
	GroupTime
	GroupTemperature
	GroupCurrent
	GroupTelemetry
)

func (g Group) String() string {
	switch g {
	case GroupPower:
		return "power"
	case GroupTime:
		return "time"
	case GroupTemperature:
		return "temperature"
	case GroupCurrent:
		return "current"
	case GroupTelemetry:
		return "telemetry"
	default:
		return "unknown"
	}
}

// Parameter binds a logical quantity to its native accessors.
type Parameter struct {
	Name        string  `json:"name"`
	Access      Access  `json:"-"`
	Group       Group   `json:"-"`
	Getter      Getter  `json:"-"`
	Setter      Setter  `json:"-"`
	PerCore     bool    `json:"per_core"`
	ReadUnit    Unit    `json:"read_unit,omitempty"`
	WriteUnit   Unit    `json:"write_unit,omitempty"`
	ReadScale   float64 `json:"read_scale,omitempty"` // reading * ReadScale = write units
	Description string  `json:"description"`
}

// Readable reports whether the parameter has a bound getter.
func (p Parameter) Readable() bool {
	return (p.Access == AccessRead || p.Access == AccessReadWrite) && p.Getter != GetNone
}

// Writable reports whether the parameter has a bound setter.
func (p Parameter) Writable() bool {
	return (p.Access == AccessWrite || p.Access == AccessReadWrite) && p.Setter != SetNone
}

// ToWriteUnit converts a reading into the unit the setter expects.
// Returns the reading unchanged for parameters without a scale.
func (p Parameter) ToWriteUnit(reading float64) float64 {
	if p.ReadScale == 0 {
		return reading
	}
	return reading * p.ReadScale
}

func rw(name string, group Group, g Getter, s Setter, readUnit, writeUnit Unit, scale float64, desc string) Parameter {
	return Parameter{Name: name, Access: AccessReadWrite, Group: group, Getter: g, Setter: s,
		ReadUnit: readUnit, WriteUnit: writeUnit, ReadScale: scale, Description: desc}
}

func wo(name string, group Group, s Setter, unit Unit, desc string) Parameter {
	return Parameter{Name: name, Access: AccessWrite, Group: group, Setter: s, WriteUnit: unit, Description: desc}
}

func ro(name string, g Getter, unit Unit, desc string) Parameter {
	return Parameter{Name: name, Access: AccessRead, Group: GroupTelemetry, Getter: g, ReadUnit: unit, Description: desc}
}

func core(name string, g Getter, unit Unit, desc string) Parameter {
	p := ro(name, g, unit, desc)
	p.PerCore = true
	return p
}

// registry is the static parameter table. Order within a group is the
// order in which profile writes are issued.
var registry = []Parameter{
	// Power limits
	rw("stapm_limit", GroupPower, GetStapmLimit, SetStapmLimit, UnitWatt, UnitMilliwatt, 1000, "Sustained power limit (STAPM)"),
	rw("fast_limit", GroupPower, GetFastLimit, SetFastLimit, UnitWatt, UnitMilliwatt, 1000, "Actual power limit (PPT fast)"),
	rw("slow_limit", GroupPower, GetSlowLimit, SetSlowLimit, UnitWatt, UnitMilliwatt, 1000, "Average power limit (PPT slow)"),

	// Time windows
	wo("stapm_time", GroupTime, SetStapmTime, UnitSecond, "STAPM constant time"),
	wo("slow_time", GroupTime, SetSlowTime, UnitSecond, "Slow PPT constant time"),

	// Temperature limits
	rw("tctl_temp", GroupTemperature, GetTctlTemp, SetTctlTemp, UnitCelsius, UnitCelsius, 1, "Tctl temperature limit"),
	rw("apu_skin_temp_limit", GroupTemperature, GetApuSkinTempLimit, SetApuSkinTempLimit, UnitCelsius, UnitCelsius, 1, "APU skin temperature limit (STT)"),
	wo("dgpu_skin_temp_limit", GroupTemperature, SetDgpuSkinTempLimit, UnitCelsius, "dGPU skin temperature limit (STT)"),

	// Current limits
	rw("vrm_current", GroupCurrent, GetVrmCurrent, SetVrmCurrent, UnitAmp, UnitMilliamp, 1000, "VRM current limit (TDC VDD)"),
	rw("vrmsoc_current", GroupCurrent, GetVrmSocCurrent, SetVrmSocCurrent, UnitAmp, UnitMilliamp, 1000, "VRM SoC current limit (TDC SoC)"),
	rw("vrmmax_current", GroupCurrent, GetVrmMaxCurrent, SetVrmMaxCurrent, UnitAmp, UnitMilliamp, 1000, "VRM maximum current limit (EDC VDD)"),
	rw("vrmsocmax_current", GroupCurrent, GetVrmSocMaxCurrent, SetVrmSocMaxCurrent, UnitAmp, UnitMilliamp, 1000, "VRM SoC maximum current limit (EDC SoC)"),

	// Measured counterparts
	ro("stapm_value", GetStapmValue, UnitWatt, "Sustained power draw"),
	ro("fast_value", GetFastValue, UnitWatt, "Actual power draw"),
	ro("slow_value", GetSlowValue, UnitWatt, "Average power draw"),
	ro("apu_slow_limit", GetApuSlowLimit, UnitWatt, "APU slow power limit"),
	ro("apu_slow_value", GetApuSlowValue, UnitWatt, "APU slow power draw"),
	ro("tctl_temp_value", GetTctlTempValue, UnitCelsius, "Tctl temperature"),
	ro("apu_skin_temp_value", GetApuSkinTempValue, UnitCelsius, "APU skin temperature"),
	ro("vrm_current_value", GetVrmCurrentValue, UnitAmp, "VRM current"),
	ro("vrmsoc_current_value", GetVrmSocCurrentValue, UnitAmp, "VRM SoC current"),
	ro("vrmmax_current_value", GetVrmMaxCurrentValue, UnitAmp, "VRM peak current"),
	ro("vrmsocmax_current_value", GetVrmSocMaxCurrentValue, UnitAmp, "VRM SoC peak current"),

	// Clocks, voltages, power
	ro("gfx_clk", GetGfxClk, UnitMegahertz, "Graphics clock"),
	ro("gfx_temp", GetGfxTemp, UnitCelsius, "Graphics temperature"),
	ro("gfx_volt", GetGfxVolt, UnitVolt, "Graphics voltage"),
	ro("mem_clk", GetMemClk, UnitMegahertz, "Memory clock"),
	ro("fclk", GetFclk, UnitMegahertz, "Fabric clock"),
	ro("soc_power", GetSocPower, UnitWatt, "SoC power"),
	ro("soc_volt", GetSocVolt, UnitVolt, "SoC voltage"),
	ro("socket_power", GetSocketPower, UnitWatt, "Socket power"),

	// Per-core
	core("core_clk", GetCoreClk, UnitMegahertz, "Core clock"),
	core("core_volt", GetCoreVolt, UnitVolt, "Core voltage"),
	core("core_power", GetCorePower, UnitWatt, "Core power"),
	core("core_temp", GetCoreTemp, UnitCelsius, "Core temperature"),
}

var registryIndex = func() map[string]int {
	m := make(map[string]int, len(registry))
	for i, p := range registry {
		m[p.Name] = i
	}
	return m
}()

// Parameters returns a copy of the registry in declaration order.
func Parameters() []Parameter {
	out := make([]Parameter, len(registry))
	copy(out, registry)
	return out
}

// LookupParameter finds a parameter by logical name.
func LookupParameter(name string) (Parameter, bool) {
	i, ok := registryIndex[name]
	if !ok {
		return Parameter{}, false
	}
	return registry[i], true
}

// MustParameter is LookupParameter for names known at compile time.
func MustParameter(name string) Parameter {
	p, ok := LookupParameter(name)
	if !ok {
		panic("domain: unknown parameter " + name)
	}
	return p
}

// ApplyOrder sorts writable parameter names into the fixed write order:
// power limits, time windows, temperature limits, current limits, then
// registry order within each group. Unknown names sort last by name.
func ApplyOrder(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := registryIndex[out[i]]
		b, bok := registryIndex[out[j]]
		switch {
		case aok && bok:
			ga, gb := registry[a].Group, registry[b].Group
			if ga != gb {
				return ga < gb
			}
			return a < b
		case aok != bok:
			return aok
		default:
			return out[i] < out[j]
		}
	})
	return out
}
