// Package clientsvc keeps the customer list shown on the clients view.
package clientsvc

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/mkrupp/storefront/internal/domain"
	"github.com/mkrupp/storefront/internal/infra/logging"
	"github.com/mkrupp/storefront/internal/repo/kv"
	"github.com/mkrupp/storefront/internal/svc/catalogclient"
)

// LoadFailedMessage is the user-facing error set when Init fails.
const LoadFailedMessage = "failed to load clients"

// ClientService merges catalog users with locally created clients.
// Any record may be edited, but only local ones are written to
// domain.KeyClientsExtra; edits to catalog records live in memory only.
type ClientService struct {
	repo    kv.Repository
	catalog catalogclient.CatalogClient
	log     logging.Logger

	mu         sync.Mutex
	items      []domain.Client
	loading    bool
	loadErr    string
	generation uint64
}

// NewClientService creates an empty ClientService. Call Init to load it.
func NewClientService(repo kv.Repository, catalog catalogclient.CatalogClient) *ClientService {
	return &ClientService{
		repo:    repo,
		catalog: catalog,
		log:     logging.GetLogger("svc.clientsvc"),
		items:   []domain.Client{},
	}
}

// Init loads catalog users and stored local clients, local first.
// On failure the previous items are kept and State reports LoadFailedMessage.
func (s *ClientService) Init(ctx context.Context) (err error) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.loading = true
	s.loadErr = ""
	s.mu.Unlock()

	defer func() {
		if err != nil {
			s.log.ErrorContext(ctx, "clients init failed", "error", err)
		}
	}()

	users, fetchErr := s.catalog.Users(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return nil
	}

	s.loading = false

	if fetchErr != nil {
		s.loadErr = LoadFailedMessage

		return fmt.Errorf("fetch users: %w", fetchErr)
	}

	decoded := kv.Load[[]domain.Client](ctx, s.repo, domain.KeyClientsExtra, s.log)

	items := make([]domain.Client, 0, len(decoded.Value)+len(users))
	for _, c := range decoded.Value {
		c.Source = domain.SourceLocal
		items = append(items, c)
	}

	for _, u := range users {
		items = append(items, u.AsClient())
	}

	s.items = items

	s.log.InfoContext(ctx, "clients loaded", "local", len(decoded.Value), "api", len(users))

	return nil
}

// State returns a snapshot of items and load status.
func (s *ClientService) State() domain.ClientsState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.ClientsState{
		Items:   slices.Clone(s.items),
		Loading: s.loading,
		Error:   s.loadErr,
	}
}

// Search matches query against first name, last name, email and username,
// ignoring case and surrounding whitespace.
func (s *ClientService) Search(query string) []domain.Client {
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.Lock()
	defer s.mu.Unlock()

	if query == "" {
		return slices.Clone(s.items)
	}

	matches := []domain.Client{}

	for _, c := range s.items {
		if c.Matches(query) {
			matches = append(matches, c)
		}
	}

	return matches
}

// Find returns the first client with the given id.
func (s *ClientService) Find(id int64) (domain.Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.index(id)
	if idx < 0 {
		return domain.Client{}, false
	}

	return s.items[idx], true
}

// Create stores c as a new local client at the front of the list.
func (s *ClientService) Create(ctx context.Context, c domain.Client) (domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	highest := domain.LocalIDBase
	for _, it := range s.items {
		highest = max(highest, it.ID)
	}

	c.ID = highest + 1
	c.Source = domain.SourceLocal
	s.items = slices.Insert(s.items, 0, c)

	return c, s.persist(ctx)
}

// Update replaces the client with c.ID. The record keeps its source.
func (s *ClientService) Update(ctx context.Context, c domain.Client) (domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.index(c.ID)
	if idx < 0 {
		return domain.Client{}, fmt.Errorf("update client %d: %w", c.ID, domain.ErrClientNotFound)
	}

	c.Source = s.items[idx].Source
	s.items[idx] = c

	if !c.IsLocal() {
		return c, nil
	}

	return c, s.persist(ctx)
}

// Delete removes the client with the given id.
func (s *ClientService) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.index(id)
	if idx < 0 {
		return fmt.Errorf("delete client %d: %w", id, domain.ErrClientNotFound)
	}

	local := s.items[idx].IsLocal()
	s.items = slices.Delete(s.items, idx, idx+1)

	if !local {
		return nil
	}

	return s.persist(ctx)
}

func (s *ClientService) index(id int64) int {
	return slices.IndexFunc(s.items, func(c domain.Client) bool { return c.ID == id })
}

func (s *ClientService) persist(ctx context.Context) error {
	local := []domain.Client{}

	for _, c := range s.items {
		if c.IsLocal() {
			local = append(local, c)
		}
	}

	if err := kv.Save(ctx, s.repo, domain.KeyClientsExtra, local); err != nil {
		s.log.ErrorContext(ctx, "persist local clients failed", "error", err)

		return fmt.Errorf("persist local clients: %w", err)
	}

	return nil
}
