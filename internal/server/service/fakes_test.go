package service

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stash/internal/server/config"
	"stash/internal/server/database"
)

// In-memory store implementations backing the service tests.

func testConfig() *config.Config {
	return &config.Config{
		Port:              "8080",
		BaseURL:           "http://localhost:8080",
		SiteTitle:         "Stash",
		MaxFileSize:       100 * 1024 * 1024,
		NameLength:        32,
		DeleteKeyLength:   32,
		CodeLength:        7,
		TokenSecretLength: 48,
		GenerateRetries:   5,
		BulkWorkers:       4,
		ImageTypes:        map[string]bool{"image/png": true, "image/jpeg": true},
		TextTypes:         map[string]bool{"text/plain": true},
	}
}

// normalizedTags mirrors the repo's NOT NULL tags columns: nil is stored as
// an empty set, never as NULL.
func normalizedTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func strPtr(s string) *string { return &s }

func testUser(id uuid.UUID, streamer bool) *database.User {
	now := time.Now().UTC()
	return &database.User{
		ID:           id,
		Username:     "tester",
		Email:        "tester@example.com",
		StreamerMode: streamer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

type memUploadStore struct {
	mu      sync.Mutex
	uploads map[string]*database.Upload // keyed by stored name

	failCreate bool // force ErrDuplicate on every Create
}

func newMemUploadStore() *memUploadStore {
	return &memUploadStore{uploads: make(map[string]*database.Upload)}
}

func (m *memUploadStore) Create(_ context.Context, u *database.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return database.ErrDuplicate
	}
	if _, ok := m.uploads[u.StoredName]; ok {
		return database.ErrDuplicate
	}
	for _, other := range m.uploads {
		if other.DeleteKey == u.DeleteKey {
			return database.ErrDuplicate
		}
	}
	cp := *u
	cp.Tags = normalizedTags(u.Tags)
	m.uploads[u.StoredName] = &cp
	return nil
}

func (m *memUploadStore) GetByName(_ context.Context, storedName string) (*database.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[storedName]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUploadStore) GetOwned(_ context.Context, owner uuid.UUID, storedName string) (*database.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[storedName]
	if !ok || u.Owner != owner {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUploadStore) GetByDeleteKey(_ context.Context, key string) (*database.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.uploads {
		if u.DeleteKey == key {
			cp := *u
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memUploadStore) ListByOwner(_ context.Context, owner uuid.UUID) ([]*database.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*database.Upload
	for _, u := range m.uploads {
		if u.Owner == owner {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoredName < out[j].StoredName })
	return out, nil
}

func (m *memUploadStore) ListPage(ctx context.Context, owner uuid.UUID, search string, asc bool, limit, offset int) ([]*database.Upload, error) {
	all, _ := m.ListByOwner(ctx, owner)
	var filtered []*database.Upload
	for _, u := range all {
		if search != "" {
			name := ""
			if u.DisplayName != nil {
				name = *u.DisplayName
			}
			if !strings.Contains(strings.ToLower(name), strings.ToLower(search)) {
				continue
			}
		}
		filtered = append(filtered, u)
	}
	if offset >= len(filtered) {
		return nil, nil
	}
	filtered = filtered[offset:]
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// UpdateMeta writes both columns as given, like the pgx repo does.
func (m *memUploadStore) UpdateMeta(_ context.Context, owner uuid.UUID, storedName string, displayName *string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[storedName]
	if !ok || u.Owner != owner {
		return database.ErrNotFound
	}
	u.DisplayName = displayName
	u.Tags = normalizedTags(tags)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUploadStore) Delete(_ context.Context, storedName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.uploads[storedName]; !ok {
		return database.ErrNotFound
	}
	delete(m.uploads, storedName)
	return nil
}

func (m *memUploadStore) SizesByOwner(_ context.Context, owner uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, u := range m.uploads {
		if u.Owner == owner {
			out = append(out, u.Size)
		}
	}
	return out, nil
}

type memLinkStore struct {
	mu    sync.Mutex
	links map[string]*database.Link // keyed by code

	failCreate bool
}

func newMemLinkStore() *memLinkStore {
	return &memLinkStore{links: make(map[string]*database.Link)}
}

func (m *memLinkStore) Create(_ context.Context, l *database.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return database.ErrDuplicate
	}
	if _, ok := m.links[l.Code]; ok {
		return database.ErrDuplicate
	}
	cp := *l
	cp.Tags = normalizedTags(l.Tags)
	m.links[l.Code] = &cp
	return nil
}

func (m *memLinkStore) GetByCode(_ context.Context, code string) (*database.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[code]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memLinkStore) GetOwned(_ context.Context, owner uuid.UUID, code string) (*database.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[code]
	if !ok || l.Owner != owner {
		return nil, database.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memLinkStore) GetByDeleteKey(_ context.Context, key string) (*database.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.DeleteKey == key {
			cp := *l
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memLinkStore) ListByOwner(_ context.Context, owner uuid.UUID) ([]*database.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*database.Link
	for _, l := range m.links {
		if l.Owner == owner {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// Resolve mirrors the conditional UPDATE: the counter moves only when the
// link is below its limit and unexpired, atomically.
func (m *memLinkStore) Resolve(_ context.Context, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[code]
	if !ok {
		return "", database.ErrNotFound
	}
	if l.ClickLimit != nil && l.Clicks >= *l.ClickLimit {
		return "", database.ErrNotFound
	}
	if l.ExpiresAt != nil && !l.ExpiresAt.After(time.Now()) {
		return "", database.ErrNotFound
	}
	l.Clicks++
	return l.URL, nil
}

func (m *memLinkStore) Update(_ context.Context, in *database.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[in.Code]
	if !ok {
		return database.ErrNotFound
	}
	l.URL = in.URL
	l.Tags = normalizedTags(in.Tags)
	l.ClickLimit = in.ClickLimit
	l.ExpiresAt = in.ExpiresAt
	l.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memLinkStore) Delete(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[code]; !ok {
		return database.ErrNotFound
	}
	delete(m.links, code)
	return nil
}

func (m *memLinkStore) DeleteByOwner(_ context.Context, owner uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for code, l := range m.links {
		if l.Owner == owner {
			delete(m.links, code)
			n++
		}
	}
	return n, nil
}

func (m *memLinkStore) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var n int64
	for code, l := range m.links {
		if l.ExpiresAt != nil && l.ExpiresAt.Before(now) {
			delete(m.links, code)
			n++
		}
	}
	return n, nil
}

type memTokenStore struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*database.Token
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{tokens: make(map[uuid.UUID]*database.Token)}
}

func (m *memTokenStore) Create(_ context.Context, t *database.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

func (m *memTokenStore) GetByID(_ context.Context, id uuid.UUID) (*database.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTokenStore) ListByOwner(_ context.Context, owner uuid.UUID) ([]*database.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*database.Token
	for _, t := range m.tokens {
		if t.Owner == owner {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTokenStore) Delete(_ context.Context, owner, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok || t.Owner != owner {
		return database.ErrNotFound
	}
	delete(m.tokens, id)
	return nil
}

func (m *memTokenStore) DeleteByOwner(_ context.Context, owner uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if t.Owner == owner {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

type memUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*database.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[uuid.UUID]*database.User)}
}

func (m *memUserStore) add(u *database.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
}

func (m *memUserStore) Create(_ context.Context, u *database.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return database.ErrDuplicate
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUserStore) GetByID(_ context.Context, id uuid.UUID) (*database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserStore) SetStreamerMode(_ context.Context, id uuid.UUID, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return database.ErrNotFound
	}
	u.StreamerMode = on
	return nil
}

func (m *memUserStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

// memArtifactStore is an in-memory storage.Store.
type memArtifactStore struct {
	mu    sync.Mutex
	blobs map[string][]byte

	failPlace bool
}

func newMemArtifactStore() *memArtifactStore {
	return &memArtifactStore{blobs: make(map[string][]byte)}
}

func (m *memArtifactStore) Place(src io.Reader, storedName, extension string) (int64, error) {
	if m.failPlace {
		return 0, io.ErrUnexpectedEOF
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[storedName+extension] = data
	return int64(len(data)), nil
}

func (m *memArtifactStore) Open(storedName, extension string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[storedName+extension]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memArtifactStore) Remove(storedName, extension string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, storedName+extension)
	return nil
}

func (m *memArtifactStore) Exists(storedName, extension string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[storedName+extension]
	return ok, nil
}

func (m *memArtifactStore) Ensure() error { return nil }

func (m *memArtifactStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}
