// Package authz defines the authorization oracle consulted before exposing
// version history, listings or download streams. Rule evaluation (email and
// domain matching) is an external concern; this core only holds the contract.
package authz

import (
	"context"

	"github.com/havenportal/drivesync/internal/model"
)

// Oracle decides whether an identity may access a project's files.
type Oracle interface {
	Allowed(ctx context.Context, identity string, project *model.Project) bool
}

// OwnerOracle grants the project owner and treats the general pool (nil
// project) as staff-only content gated upstream. It stands in for the
// portal's full rule engine.
type OwnerOracle struct{}

func (OwnerOracle) Allowed(ctx context.Context, identity string, project *model.Project) bool {
	if project == nil {
		return identity != ""
	}
	return identity != "" && (project.OwnerID == "" || project.OwnerID == identity)
}

// AllowAll is used by tests.
type AllowAll struct{}

func (AllowAll) Allowed(context.Context, string, *model.Project) bool { return true }

// DenyAll is used by tests.
type DenyAll struct{}

func (DenyAll) Allowed(context.Context, string, *model.Project) bool { return false }
