package httpd

import "context"

// HTTPd is the interface for lyra to provide the management HTTP daemon.
type HTTPd interface {
	Serve(ctx context.Context, addr string) error
}
