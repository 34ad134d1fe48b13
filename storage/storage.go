// Package storage provides the key-value string stores that persist session records.
package storage

// Storage is a synchronous string key-value store, the server-side stand-in for browser
// localStorage/sessionStorage. Get reports ok=false for a missing key.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}
