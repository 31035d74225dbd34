// Package authz is the authorization gate. Role permissions live in a casbin
// RBAC policy (admin inherits user, user inherits anonymous); ownership of a
// recipe is resolved here before the policy is consulted, so "update" becomes
// "update:own" for the author and "update:any" for everyone else.
package authz

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"

	"github.com/tbourn/go-recipe-backend/internal/auth"
	"github.com/tbourn/go-recipe-backend/internal/domain"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// ErrForbidden is returned when the actor may not perform the action.
var ErrForbidden = errors.New("forbidden")

// Objects guarded by the policy.
const (
	ObjRecipe    = "recipe"
	ObjCategory  = "category"
	ObjDashboard = "dashboard"
	ObjUser      = "user"
	ObjMedia     = "media"
)

// Action is an operation on a recipe.
type Action string

const (
	ActionRead          Action = "read"
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionRate          Action = "rate"
	ActionModerate      Action = "moderate"
	ActionListAnyStatus Action = "list:any-status"
)

// Actions on the non-recipe objects.
const (
	ActRead   = "read"
	ActManage = "manage"
	ActView   = "view"
	ActUpload = "upload"
)

// Gate answers authorization questions. It is safe for concurrent use.
type Gate struct {
	enforcer *casbin.SyncedEnforcer
}

// NewGate builds a Gate from the embedded model and policy.
func NewGate() (*Gate, error) {
	return newGate(embeddedPolicy)
}

// MustGate is NewGate for wiring code; it panics on a broken embedded policy.
func MustGate() *Gate {
	g, err := NewGate()
	if err != nil {
		panic(err)
	}
	return g
}

// newGate builds a Gate from the embedded model and the given policy text in
// casbin CSV form.
func newGate(policy string) (*Gate, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("load authz model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m, stringadapter.NewAdapter(policy))
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	return &Gate{enforcer: e}, nil
}

// Can reports whether the actor's role grants act on obj.
func (g *Gate) Can(a auth.Actor, obj, act string) bool {
	ok, err := g.enforcer.Enforce(string(a.RoleName()), obj, act)
	return err == nil && ok
}

// Authorize decides whether the actor may perform action on r, returning nil
// or ErrForbidden. For read, update and delete the recipe must be non-nil;
// the other actions do not depend on the target.
func (g *Gate) Authorize(a auth.Actor, action Action, r *domain.Recipe) error {
	act := string(action)
	switch action {
	case ActionRead:
		switch {
		case r == nil:
			return ErrForbidden
		case r.Status == domain.StatusPublished:
			act = "read:published"
		case r.OwnedBy(a.UserID) && !a.IsAnonymous():
			act = "read:own"
		default:
			act = "read:any"
		}
	case ActionUpdate, ActionDelete:
		if r == nil {
			return ErrForbidden
		}
		if r.OwnedBy(a.UserID) && !a.IsAnonymous() {
			act += ":own"
		} else {
			act += ":any"
		}
	}
	if !g.Can(a, ObjRecipe, act) {
		return ErrForbidden
	}
	return nil
}
