package redis

import "novaled/internal/core/domain"

const (
	keyPrefix     = "novaled:"
	changeChannel = keyPrefix + "changes"
)

// docKey holds the fields of the document at path as a hash.
func docKey(path string) string {
	return keyPrefix + "doc:" + path
}

// childrenKey is the set of child keys written under a collection path.
func childrenKey(path string) string {
	return keyPrefix + "col:" + path
}

func lockKey(key string) string {
	return keyPrefix + "lock:" + key
}

func parentOf(path string) (string, string) {
	return domain.SplitPath(path)
}
