package aiengine

import "strings"

// CredentialPool is an immutable ordered set of API keys with a current position.
// Rotate returns a new pool and leaves the receiver untouched.
type CredentialPool struct {
	keys  []string
	index int
}

func NewCredentialPool(keys []string) CredentialPool {
	out := make([]string, 0, len(keys))
	seen := map[string]bool{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return CredentialPool{keys: out}
}

func (p CredentialPool) Len() int { return len(p.keys) }

func (p CredentialPool) Index() int { return p.index }

func (p CredentialPool) Current() (string, bool) {
	if len(p.keys) == 0 {
		return "", false
	}
	return p.keys[p.index], true
}

func (p CredentialPool) Rotate() CredentialPool {
	if len(p.keys) == 0 {
		return p
	}
	return CredentialPool{keys: p.keys, index: (p.index + 1) % len(p.keys)}
}
