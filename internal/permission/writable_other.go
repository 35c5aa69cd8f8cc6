//go:build !unix

package permission

import "os"

func writable(dir string) bool {
	f, err := os.CreateTemp(dir, ".camplay-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}
