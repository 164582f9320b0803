// Package context holds request-scoped values shared by transport and logging.
package context

type contextKey string
