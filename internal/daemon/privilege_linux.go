//go:build linux

package daemon

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// smuDriverArgs is the ryzen_smu kernel module interface. libryzenadj
// uses it when present, which lets non-root users with write access in.
const smuDriverArgs = "/sys/kernel/ryzen_smu_drv/smu_args"

// checkPrivilege reports whether this process can reach the SMU. The
// native library needs root for PCI config space and /dev/mem access
// unless the ryzen_smu module grants it.
func checkPrivilege() error {
	if unix.Geteuid() == 0 {
		return nil
	}
	if unix.Access(smuDriverArgs, unix.W_OK) == nil {
		return nil
	}
	return fmt.Errorf("%w: running as uid %d without write access to %s",
		errInsufficientPrivilege, unix.Geteuid(), smuDriverArgs)
}
