package secrets

import "os"

// EnvLoader returns a Loader reading the current key from currentVar and the
// previous key from previousVar. fallback is used when currentVar is unset,
// which lets a YAML-configured secret act as the initial key.
func EnvLoader(currentVar, previousVar, fallback string) Loader {
	return func() (Keys, error) {
		keys := Keys{Current: fallback, Previous: os.Getenv(previousVar)}
		if v := os.Getenv(currentVar); v != "" {
			keys.Current = v
		}
		return keys, nil
	}
}
