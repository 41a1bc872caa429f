package googledrive

import (
	"context"

	"google.golang.org/api/option"

	"github.com/havenportal/drivesync/internal/auth"
	"github.com/havenportal/drivesync/internal/remote"
)

// Provider builds Drive clients on demand, pulling a valid token from the
// auth manager each time so refresh happens transparently.
type Provider struct {
	auth       *auth.Manager
	opts       []option.ClientOption
	clientOpts []Option
}

// NewProvider creates a Provider. Extra options are forwarded to every
// client it builds.
func NewProvider(authManager *auth.Manager, opts []option.ClientOption, clientOpts ...Option) *Provider {
	return &Provider{auth: authManager, opts: opts, clientOpts: clientOpts}
}

// Storage returns a Drive-backed remote.Storage authenticated with a valid
// token. Fails with the auth package's errors when the portal is not
// connected or the refresh is rejected.
func (p *Provider) Storage(ctx context.Context) (remote.Storage, error) {
	client, err := p.auth.Client(ctx)
	if err != nil {
		return nil, err
	}
	return New(ctx, client, p.opts, p.clientOpts...)
}
