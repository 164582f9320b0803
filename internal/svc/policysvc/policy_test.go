package policysvc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/storefront/internal/domain"
	"github.com/mkrupp/storefront/internal/svc/policysvc"
)

func defaultConfig() policysvc.PolicyConfig {
	return policysvc.PolicyConfig{
		CartAdd:       "user != nil",
		ProductCreate: "user != nil",
		ProductUpdate: "isAdmin && record.source == 'local'",
		ProductDelete: "isAdmin && record.source == 'local'",
		ClientUpdate:  "isAdmin || record.source == 'local' || (user != nil && record.username == user.username)",
		ClientDelete:  "isAdmin || record.source == 'local'",
		ClientsView:   "user != nil",
		AdminView:     "isAdmin",
	}
}

func newPolicy(t *testing.T) *policysvc.Policy {
	t.Helper()

	policy, err := policysvc.NewPolicy(defaultConfig())
	require.NoError(t, err)

	return policy
}

func TestPolicyRules(t *testing.T) {
	t.Parallel()

	admin := &domain.User{ID: 1, Username: "johnd"}
	user := &domain.User{ID: 4, Username: "donero"}

	localProduct := policysvc.ProductRecord(domain.ProductItem{Product: domain.Product{ID: 1001}, Source: domain.SourceLocal})
	apiProduct := policysvc.ProductRecord(domain.ProductItem{Product: domain.Product{ID: 3}, Source: domain.SourceAPI})

	localClient := policysvc.ClientRecord(domain.Client{ID: 1001, Username: "ana", Source: domain.SourceLocal})
	apiClient := policysvc.ClientRecord(domain.Client{ID: 7, Username: "someone", Source: domain.SourceAPI})
	ownClient := policysvc.ClientRecord(domain.Client{ID: 4, Username: "donero", Source: domain.SourceAPI})

	tests := []struct {
		name   string
		action policysvc.Action
		user   *domain.User
		record map[string]any
		want   bool
	}{
		{name: "guest cannot add to cart", action: policysvc.CartAdd, want: false},
		{name: "user adds to cart", action: policysvc.CartAdd, user: user, want: true},
		{name: "guest cannot create products", action: policysvc.ProductCreate, want: false},
		{name: "user creates products", action: policysvc.ProductCreate, user: user, want: true},
		{name: "admin edits local product", action: policysvc.ProductUpdate, user: admin, record: localProduct, want: true},
		{name: "admin cannot edit catalog product", action: policysvc.ProductUpdate, user: admin, record: apiProduct, want: false},
		{name: "user cannot edit local product", action: policysvc.ProductUpdate, user: user, record: localProduct, want: false},
		{name: "admin deletes local product", action: policysvc.ProductDelete, user: admin, record: localProduct, want: true},
		{name: "guest cannot delete", action: policysvc.ProductDelete, record: localProduct, want: false},
		{name: "anyone edits local client", action: policysvc.ClientUpdate, user: user, record: localClient, want: true},
		{name: "user edits own record", action: policysvc.ClientUpdate, user: user, record: ownClient, want: true},
		{name: "user cannot edit other catalog client", action: policysvc.ClientUpdate, user: user, record: apiClient, want: false},
		{name: "guest cannot edit catalog client", action: policysvc.ClientUpdate, record: apiClient, want: false},
		{name: "admin edits catalog client", action: policysvc.ClientUpdate, user: admin, record: apiClient, want: true},
		{name: "user cannot delete catalog client", action: policysvc.ClientDelete, user: user, record: ownClient, want: false},
		{name: "user deletes local client", action: policysvc.ClientDelete, user: user, record: localClient, want: true},
		{name: "guest cannot view clients", action: policysvc.ClientsView, want: false},
		{name: "user views clients", action: policysvc.ClientsView, user: user, want: true},
		{name: "user cannot view admin", action: policysvc.AdminView, user: user, want: false},
		{name: "admin views admin", action: policysvc.AdminView, user: admin, want: true},
	}

	policy := newPolicy(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := policy.Check(context.Background(), tt.action, tt.user, tt.record)
			if tt.want {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, domain.ErrForbidden)

			notice, ok := policysvc.Notice(err)
			assert.True(t, ok)
			assert.NotEmpty(t, notice)

			if tt.user == nil {
				assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
			} else {
				assert.NotErrorIs(t, err, domain.ErrNotAuthenticated)
			}
		})
	}
}

func TestPolicyCustomRule(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.ProductCreate = "user != nil && user.username startsWith 'a'"

	policy, err := policysvc.NewPolicy(cfg)
	require.NoError(t, err)

	ctx := context.Background()

	assert.True(t, policy.Allowed(ctx, policysvc.ProductCreate, &domain.User{ID: 2, Username: "ana"}, nil))
	assert.False(t, policy.Allowed(ctx, policysvc.ProductCreate, &domain.User{ID: 3, Username: "bia"}, nil))
}

func TestPolicyInvalidRule(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.AdminView = "isAdmin &&"

	_, err := policysvc.NewPolicy(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin.view")
}

func TestPolicyEvaluationErrorDenies(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.ClientsView = "user.username == 'x'"

	policy, err := policysvc.NewPolicy(cfg)
	require.NoError(t, err)

	err = policy.Check(context.Background(), policysvc.ClientsView, nil, nil)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestPolicyUnknownAction(t *testing.T) {
	t.Parallel()

	err := newPolicy(t).Check(context.Background(), policysvc.Action("cart.steal"), nil, nil)
	require.ErrorIs(t, err, policysvc.ErrUnknownAction)
}
