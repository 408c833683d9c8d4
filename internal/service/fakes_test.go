package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sakif/petadopt/internal/apperror"
	"github.com/sakif/petadopt/internal/auth"
	"github.com/sakif/petadopt/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository that enforces the
// same UNIQUE constraints as the real schema. It is safe for concurrent use.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int

	// hideUsernames makes UsernameTaken always report false, so a duplicate
	// is only caught by the constraint in Create.
	hideUsernames bool
	// beforeCreate runs (unlocked) at the start of every Create.
	beforeCreate func()
	// beforeComplete runs (unlocked) at the start of every CompleteProfile.
	beforeComplete func()
	getErr       error
	creates      int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User), nextID: 1}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	if f.beforeCreate != nil {
		f.beforeCreate()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++

	if err := f.uniqueLocked(user, ""); err != nil {
		return err
	}
	if user.AvatarURL == "" {
		user.AvatarURL = model.DefaultAvatar
	}
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	f.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	copied := *user
	f.users[user.ID] = &copied
	return nil
}

// uniqueLocked checks columns in schema order: email, google_id,
// facebook_id, username.
func (f *fakeUserRepo) uniqueLocked(u *model.User, exceptID string) error {
	for _, other := range f.users {
		if other.ID == exceptID {
			continue
		}
		switch {
		case other.Email == u.Email:
			return apperror.Conflict("email", "Email already registered")
		case u.GoogleID != "" && other.GoogleID == u.GoogleID:
			return apperror.Conflict("google_id", "Google account already linked to another user")
		case u.FacebookID != "" && other.FacebookID == u.FacebookID:
			return apperror.Conflict("facebook_id", "Facebook account already linked to another user")
		case u.Username != "" && other.Username == u.Username:
			return apperror.Conflict("username", "Username already taken")
		}
	}
	return nil
}

func (f *fakeUserRepo) find(match func(*model.User) bool, what string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.users {
		if match(u) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", what)
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ID == id }, id)
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Email == email }, email)
}

func (f *fakeUserRepo) GetByProviderID(ctx context.Context, p model.Provider, id string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ProviderID(p) == id }, id)
}

func (f *fakeUserRepo) LinkProvider(ctx context.Context, userID string, p model.Provider, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	probe := &model.User{}
	probe.SetProviderID(p, id)
	if err := f.uniqueLocked(probe, userID); err != nil {
		return err
	}
	u.SetProviderID(p, id)
	return nil
}

func (f *fakeUserRepo) UsernameTaken(ctx context.Context, username, exceptID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hideUsernames {
		return false, nil
	}
	for _, u := range f.users {
		if u.Username == username && u.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) CompleteProfile(ctx context.Context, userID, username, avatarURL string) (*model.User, error) {
	if f.beforeComplete != nil {
		f.beforeComplete()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return nil, apperror.NotFound("user", userID)
	}
	if err := f.uniqueLocked(&model.User{Username: username}, userID); err != nil {
		return nil, err
	}
	u.Username = username
	u.AvatarURL = avatarURL
	u.ProfileSetupCompleted = true
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// seed inserts u directly, bypassing the service.
func (f *fakeUserRepo) seed(t *testing.T, u *model.User) *model.User {
	t.Helper()
	if err := f.Create(context.Background(), u); err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return u
}

// fakeAvatarStore records what it was asked to store.
type fakeAvatarStore struct {
	mu    sync.Mutex
	names   []string
	types   []string
	deleted []string
	err     error
}

func (s *fakeAvatarStore) Store(ctx context.Context, name, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.names = append(s.names, name)
	s.types = append(s.types, contentType)
	return "/uploads/avatars/" + name, nil
}

func (s *fakeAvatarStore) Delete(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, url)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestResolver wires a resolver with bcrypt.MinCost so tests stay fast.
func newTestResolver(repo *fakeUserRepo, store *fakeAvatarStore) *IdentityResolver {
	return NewIdentityResolver(repo, auth.NewPasswordService(4), store, discardLogger())
}

// fixedSuffixes makes generated usernames deterministic. After the list is
// exhausted the last value repeats.
func fixedSuffixes(vals ...int) func() int {
	var mu sync.Mutex
	i := 0
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		v := vals[min(i, len(vals)-1)]
		i++
		return v
	}
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
