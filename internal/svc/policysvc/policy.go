// Package policysvc decides which identity may change which record.
//
// Rules are expr-lang expressions evaluated against this environment:
//
//	user     map with id, username, email, firstName, lastName; nil when logged out
//	isAdmin  bool
//	record   map with the record's fields (id, source, username, ...); empty when
//	         the action has no target
package policysvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/mkrupp/storefront/internal/domain"
	"github.com/mkrupp/storefront/internal/infra/logging"
)

// Action names a guarded operation.
type Action string

const (
	CartAdd       Action = "cart.add"
	ProductCreate Action = "product.create"
	ProductUpdate Action = "product.update"
	ProductDelete Action = "product.delete"
	ClientUpdate  Action = "client.update"
	ClientDelete  Action = "client.delete"
	ClientsView   Action = "clients.view"
	AdminView     Action = "admin.view"
)

// ErrUnknownAction is returned when no rule is compiled for an action.
var ErrUnknownAction = errors.New("unknown policy action")

// PolicyConfig holds the rule expressions. Strings use single quotes so
// defaults stay readable inside struct tags.
type PolicyConfig struct {
	CartAdd       string `env:"CART_ADD" envDefault:"user != nil"`
	ProductCreate string `env:"PRODUCT_CREATE" envDefault:"user != nil"`
	ProductUpdate string `env:"PRODUCT_UPDATE" envDefault:"isAdmin && record.source == 'local'"`
	ProductDelete string `env:"PRODUCT_DELETE" envDefault:"isAdmin && record.source == 'local'"`
	ClientUpdate  string `env:"CLIENT_UPDATE" envDefault:"isAdmin || record.source == 'local' || (user != nil && record.username == user.username)"` //nolint:lll
	ClientDelete  string `env:"CLIENT_DELETE" envDefault:"isAdmin || record.source == 'local'"`
	ClientsView   string `env:"CLIENTS_VIEW" envDefault:"user != nil"`
	AdminView     string `env:"ADMIN_VIEW" envDefault:"isAdmin"`
}

func (cfg PolicyConfig) rules() map[Action]string {
	return map[Action]string{
		CartAdd:       cfg.CartAdd,
		ProductCreate: cfg.ProductCreate,
		ProductUpdate: cfg.ProductUpdate,
		ProductDelete: cfg.ProductDelete,
		ClientUpdate:  cfg.ClientUpdate,
		ClientDelete:  cfg.ClientDelete,
		ClientsView:   cfg.ClientsView,
		AdminView:     cfg.AdminView,
	}
}

//nolint:gochecknoglobals
var notices = map[Action]string{
	CartAdd:       "Log in to add items to the cart.",
	ProductCreate: "Log in to add products.",
	ProductUpdate: "Only an administrator can edit local products.",
	ProductDelete: "Only an administrator can delete local products.",
	ClientUpdate:  "You can only edit local clients or your own record.",
	ClientDelete:  "Only an administrator can delete catalog clients.",
	ClientsView:   "Log in to see the clients.",
	AdminView:     "Administrators only.",
}

// DeniedError carries the notice shown to the user. It is joined with
// domain.ErrForbidden, and with domain.ErrNotAuthenticated when nobody is
// logged in.
type DeniedError struct {
	Action Action
	Notice string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s denied", e.Action)
}

// Policy holds the compiled rules.
type Policy struct {
	programs map[Action]*vm.Program
	log      logging.Logger
}

// NewPolicy compiles every rule in cfg. An invalid expression fails startup.
func NewPolicy(cfg PolicyConfig) (*Policy, error) {
	policy := &Policy{
		programs: make(map[Action]*vm.Program),
		log:      logging.GetLogger("svc.policysvc"),
	}

	for action, rule := range cfg.rules() {
		program, err := expr.Compile(rule,
			expr.Env(map[string]any{}),
			expr.AllowUndefinedVariables(),
			expr.AsBool(),
		)
		if err != nil {
			return nil, fmt.Errorf("compile rule %s: %w", action, err)
		}

		policy.programs[action] = program
	}

	return policy, nil
}

// Check returns nil when user may perform action on record. A rule that
// fails to evaluate denies.
func (p *Policy) Check(ctx context.Context, action Action, user *domain.User, record map[string]any) error {
	program, ok := p.programs[action]
	if !ok {
		return fmt.Errorf("check %s: %w", action, ErrUnknownAction)
	}

	if record == nil {
		record = map[string]any{}
	}

	env := map[string]any{
		"user":    userEnv(user),
		"isAdmin": user.IsAdmin(),
		"record":  record,
	}

	out, err := expr.Run(program, env)
	if err != nil {
		p.log.ErrorContext(ctx, "policy evaluation failed", "action", action, "error", err)

		return p.deny(action, user, fmt.Errorf("evaluate %s: %w", action, err))
	}

	if allowed, _ := out.(bool); !allowed {
		p.log.DebugContext(ctx, "policy denied", "action", action, "record", record["id"])

		return p.deny(action, user, nil)
	}

	return nil
}

// Allowed is Check as a boolean.
func (p *Policy) Allowed(ctx context.Context, action Action, user *domain.User, record map[string]any) bool {
	return p.Check(ctx, action, user, record) == nil
}

func (p *Policy) deny(action Action, user *domain.User, cause error) error {
	errs := []error{domain.ErrForbidden, &DeniedError{Action: action, Notice: notices[action]}}

	if user == nil {
		errs = append(errs, domain.ErrNotAuthenticated)
	}

	if cause != nil {
		errs = append(errs, cause)
	}

	return errors.Join(errs...)
}

// Notice extracts the user-facing message from a denial.
func Notice(err error) (string, bool) {
	var denied *DeniedError
	if !errors.As(err, &denied) {
		return "", false
	}

	return denied.Notice, true
}

func userEnv(user *domain.User) any {
	if user == nil {
		return nil
	}

	return map[string]any{
		"id":        user.ID,
		"username":  user.Username,
		"email":     user.Email,
		"firstName": user.FirstName,
		"lastName":  user.LastName,
	}
}

// ProductRecord exposes a product to the rules.
func ProductRecord(it domain.ProductItem) map[string]any {
	return map[string]any{
		"id":       it.ID,
		"source":   string(it.Source),
		"title":    it.Title,
		"category": it.Category,
		"price":    it.Price,
	}
}

// ClientRecord exposes a client to the rules.
func ClientRecord(c domain.Client) map[string]any {
	return map[string]any{
		"id":       c.ID,
		"source":   string(c.Source),
		"username": c.Username,
		"email":    c.Email,
	}
}
