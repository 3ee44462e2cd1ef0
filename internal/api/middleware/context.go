package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const (
	keyPrefixKey contextKey = "key_prefix"
	keyNameKey   contextKey = "key_name"
	scopesKey    contextKey = "api_key_scopes"
)

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

func setKeyName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyNameKey, name)
}

// KeyName returns the authenticated API key's name. Status transitions use
// it as the default actor when the request does not name one.
func KeyName(r *http.Request) (string, bool) {
	name, ok := r.Context().Value(keyNameKey).(string)
	return name, ok
}

func setScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, scopesKey, scopes)
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(scopesKey).([]string)
	return scopes
}

// ExportedKeyPrefixKey returns the context key for key_prefix (for testing).
func ExportedKeyPrefixKey() contextKey {
	return keyPrefixKey
}
