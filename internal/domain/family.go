package domain

// Family identifies the APU generation reported by the driver.
// The negative values are sentinels and never name a real part.
type Family int

const (
	FamilyWaitForLoad  Family = -2 // Detection has not run yet
	FamilyUnknown      Family = -1 // Unsupported or undetectable
	FamilyRaven        Family = 0
	FamilyPicasso      Family = 1
	FamilyRenoir       Family = 2
	FamilyCezanne      Family = 3
	FamilyDali         Family = 4
	FamilyLucienne     Family = 5
	FamilyVanGogh      Family = 6
	FamilyRembrandt    Family = 7
	FamilyMendocino    Family = 8
	FamilyPhoenix      Family = 9
	FamilyHawkPoint    Family = 10
	FamilyKrackanPoint Family = 11
	FamilyStrixPoint   Family = 12
	FamilyStrixHalo    Family = 13
)

// AllFamilies returns every Family value in native order, sentinels first.
func AllFamilies() []Family {
	return []Family{
		FamilyWaitForLoad, FamilyUnknown,
		FamilyRaven, FamilyPicasso, FamilyRenoir, FamilyCezanne,
		FamilyDali, FamilyLucienne, FamilyVanGogh, FamilyRembrandt,
		FamilyMendocino, FamilyPhoenix, FamilyHawkPoint,
		FamilyKrackanPoint, FamilyStrixPoint, FamilyStrixHalo,
	}
}

// FamilyFromNative converts the driver's numeric family. Anything outside
// the known set becomes FamilyUnknown.
func FamilyFromNative(v int) Family {
	f := Family(v)
	if _, ok := f.name(); !ok {
		return FamilyUnknown
	}
	return f
}

// Supported reports whether f is a real generation usable for feature gating.
func (f Family) Supported() bool {
	switch f {
	case FamilyWaitForLoad, FamilyUnknown:
		return false
	case FamilyRaven, FamilyPicasso, FamilyRenoir, FamilyCezanne,
		FamilyDali, FamilyLucienne, FamilyVanGogh, FamilyRembrandt,
		FamilyMendocino, FamilyPhoenix, FamilyHawkPoint,
		FamilyKrackanPoint, FamilyStrixPoint, FamilyStrixHalo:
		return true
	}
	return false
}

// String returns the display name. Total over all values.
func (f Family) String() string {
	if n, ok := f.name(); ok {
		return n
	}
	return "Unrecognized"
}

// FamilyName is the catalogue lookup used by the CLI and API.
func FamilyName(f Family) string { return f.String() }

func (f Family) name() (string, bool) {
	switch f {
	case FamilyWaitForLoad:
		return "Awaiting detection", true
	case FamilyUnknown:
		return "Unknown", true
	case FamilyRaven:
		return "Raven Ridge", true
	case FamilyPicasso:
		return "Picasso", true
	case FamilyRenoir:
		return "Renoir", true
	case FamilyCezanne:
		return "Cezanne", true
	case FamilyDali:
		return "Dali", true
	case FamilyLucienne:
		return "Lucienne", true
	case FamilyVanGogh:
		return "Van Gogh", true
	case FamilyRembrandt:
		return "Rembrandt", true
	case FamilyMendocino:
		return "Mendocino", true
	case FamilyPhoenix:
		return "Phoenix", true
	case FamilyHawkPoint:
		return "Hawk Point", true
	case FamilyKrackanPoint:
		return "Krackan Point", true
	case FamilyStrixPoint:
		return "Strix Point", true
	case FamilyStrixHalo:
		return "Strix Halo", true
	}
	return "", false
}
