//go:build !unix

package filekv

import "os"

// Without flock the file is only safe for a single writing process.
func lockFile(*os.File, bool) error { return nil }

func unlockFile(*os.File) error { return nil }
