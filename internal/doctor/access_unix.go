//go:build unix

package doctor

import "golang.org/x/sys/unix"

func checkAccess(dir string) error {
	return unix.Access(dir, unix.W_OK|unix.X_OK)
}
