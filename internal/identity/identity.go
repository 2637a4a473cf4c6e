// Package identity maps API keys to callers and their tiers.
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/mitdave95/luma-interview/pkg/models"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// KeyPrefixLen is the number of leading key characters stored in clear for lookup.
const KeyPrefixLen = 8

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrDisabled   = errors.New("api key disabled")
)

// Resolver authenticates a raw API key.
type Resolver interface {
	Resolve(ctx context.Context, rawKey string) (models.Identity, error)
}

// Directory is an in-process Resolver. Identities are indexed by key prefix and
// the raw key is checked against the bcrypt hash of each candidate.
type Directory struct {
	mu       sync.RWMutex
	byPrefix map[string][]models.Identity
	byID     map[string]models.Identity
	cost     int
}

type Option func(*Directory)

// WithCost sets the bcrypt cost used by Add.
func WithCost(cost int) Option {
	return func(d *Directory) { d.cost = cost }
}

func NewDirectory(opts ...Option) *Directory {
	d := &Directory{
		byPrefix: make(map[string][]models.Identity),
		byID:     make(map[string]models.Identity),
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Prefix returns the lookup prefix of a raw key.
func Prefix(rawKey string) (string, error) {
	if len(rawKey) < KeyPrefixLen {
		return "", fmt.Errorf("%w: key must be at least %d characters", ErrInvalidKey, KeyPrefixLen)
	}
	return rawKey[:KeyPrefixLen], nil
}

// HashKey returns the prefix and bcrypt hash to store for rawKey.
func HashKey(rawKey string, cost int) (prefix, hash string, err error) {
	prefix, err = Prefix(rawKey)
	if err != nil {
		return "", "", err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(rawKey), cost)
	if err != nil {
		return "", "", fmt.Errorf("hash api key: %w", err)
	}
	return prefix, string(h), nil
}

// Add hashes rawKey and registers the identity under it.
func (d *Directory) Add(id models.Identity, rawKey string) error {
	prefix, hash, err := HashKey(rawKey, d.cost)
	if err != nil {
		return err
	}
	id.KeyPrefix = prefix
	id.KeyHash = hash
	return d.Register(id)
}

// Register stores an identity whose key is already hashed.
func (d *Directory) Register(id models.Identity) error {
	if id.ID == "" {
		return errors.New("identity id is required")
	}
	if !id.Tier.Valid() {
		return fmt.Errorf("identity %s: unknown tier %q", id.ID, id.Tier)
	}
	if len(id.KeyPrefix) != KeyPrefixLen || id.KeyHash == "" {
		return fmt.Errorf("identity %s: key_prefix (%d chars) and key_hash are required", id.ID, KeyPrefixLen)
	}
	if id.CreatedAt.IsZero() {
		id.CreatedAt = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[id.ID]; ok {
		return fmt.Errorf("identity %s already registered", id.ID)
	}
	d.byID[id.ID] = id
	d.byPrefix[id.KeyPrefix] = append(d.byPrefix[id.KeyPrefix], id)
	return nil
}

func (d *Directory) Resolve(_ context.Context, rawKey string) (models.Identity, error) {
	prefix, err := Prefix(rawKey)
	if err != nil {
		return models.Identity{}, err
	}

	d.mu.RLock()
	candidates := d.byPrefix[prefix]
	d.mu.RUnlock()

	for _, id := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(id.KeyHash), []byte(rawKey)) != nil {
			continue
		}
		if id.Disabled {
			return models.Identity{}, ErrDisabled
		}
		return id, nil
	}
	return models.Identity{}, ErrInvalidKey
}

// Get returns an identity by id.
func (d *Directory) Get(userID string) (models.Identity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byID[userID]
	return id, ok
}

// List returns all identities sorted by id.
func (d *Directory) List() []models.Identity {
	d.mu.RLock()
	out := make([]models.Identity, 0, len(d.byID))
	for _, id := range d.byID {
		out = append(out, id)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered identities.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

type fileFormat struct {
	Identities []models.Identity `yaml:"identities"`
}

// LoadFile registers every identity listed in a YAML file of the form
//
//	identities:
//	  - id: user_acme
//	    email: ops@acme.test
//	    tier: pro
//	    key_prefix: lk_live_
//	    key_hash: $2a$10$...
func (d *Directory) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read identities file: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse identities file %s: %w", path, err)
	}
	for _, id := range f.Identities {
		if err := d.Register(id); err != nil {
			return fmt.Errorf("identities file %s: %w", path, err)
		}
	}
	return nil
}

// DevKey is a well-known key registered for local development.
type DevKey struct {
	Key      string
	Identity models.Identity
}

// DevKeys returns one test identity per tier.
func DevKeys() []DevKey {
	return []DevKey{
		{Key: "free_test_key", Identity: models.Identity{ID: "user_free_001", Email: "free@example.com", Tier: models.TierFree}},
		{Key: "dev_test_key", Identity: models.Identity{ID: "user_dev_001", Email: "dev@example.com", Tier: models.TierDeveloper}},
		{Key: "pro_test_key", Identity: models.Identity{ID: "user_pro_001", Email: "pro@example.com", Tier: models.TierPro}},
		{Key: "enterprise_test_key", Identity: models.Identity{ID: "user_ent_001", Email: "enterprise@example.com", Tier: models.TierEnterprise}},
	}
}

// SeedDev registers DevKeys.
func (d *Directory) SeedDev() error {
	for _, k := range DevKeys() {
		if err := d.Add(k.Identity, k.Key); err != nil {
			return fmt.Errorf("seed %s: %w", k.Identity.ID, err)
		}
	}
	return nil
}
