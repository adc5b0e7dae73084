package grant

import "context"

type callerKey struct{}

// WithCaller returns a context carrying the already-authenticated caller
// identity. Every state-changing operation reads its caller from here.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the caller stored by WithCaller.
func CallerFrom(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(callerKey{}).(string)
	return caller, ok && caller != ""
}

func requireCaller(ctx context.Context) (string, error) {
	caller, ok := CallerFrom(ctx)
	if !ok {
		return "", ErrUnauthorized
	}
	return caller, nil
}
