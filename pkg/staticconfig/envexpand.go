package staticconfig

import "os"

// ExpandEnv expands ${VAR} and $VAR references in YAML content using the
// standard library.
// Missing variables expand to the empty string; validation is responsible
// for catching required fields left empty by that expansion.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
