package fetch

import "os"

// CredentialSource resolves a provider credential by name.
type CredentialSource interface {
	Lookup(name string) (string, bool)
}

// EnvCredentials reads credentials from the process environment.
type EnvCredentials struct{}

func (EnvCredentials) Lookup(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	v, ok := os.LookupEnv(name)
	return v, ok && v != ""
}

// StaticCredentials is an in-memory CredentialSource.
type StaticCredentials map[string]string

func (s StaticCredentials) Lookup(name string) (string, bool) {
	v, ok := s[name]
	return v, ok && v != ""
}
