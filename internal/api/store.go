package api

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/birbparty/nestlink/sdk"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Store errors
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
)

type userRecord struct {
	user         sdk.User
	passwordHash []byte
}

type tokenRecord struct {
	userID    string
	expiresAt time.Time
}

type fileRecord struct {
	info    sdk.FileInfo
	ownerID string
	key     string
}

type analyticsRecord struct {
	views    int
	visitors map[string]struct{}
	events   map[string]int
	projects map[string]int
}

// Store is the in-memory state of the development backend. All methods are
// safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	users   map[string]*userRecord
	byEmail map[string]string

	access  map[string]tokenRecord
	refresh map[string]tokenRecord

	portfolios map[string]*sdk.Portfolio
	projects   map[string]*sdk.Project
	files      map[string]*fileRecord
	analytics  map[string]*analyticsRecord

	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewStore creates an empty store
func NewStore(accessTTL, refreshTTL time.Duration) *Store {
	return &Store{
		users:      make(map[string]*userRecord),
		byEmail:    make(map[string]string),
		access:     make(map[string]tokenRecord),
		refresh:    make(map[string]tokenRecord),
		portfolios: make(map[string]*sdk.Portfolio),
		projects:   make(map[string]*sdk.Project),
		files:      make(map[string]*fileRecord),
		analytics:  make(map[string]*analyticsRecord),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Register creates a user and returns a session for it
func (s *Store) Register(r sdk.Registration) (*sdk.Session, error) {
	email := normalizeEmail(r.Email)
	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return nil, ErrConflict
	}

	rec := &userRecord{
		user: sdk.User{
			ID:        uuid.NewString(),
			Email:     email,
			Name:      strings.TrimSpace(r.Name),
			CreatedAt: s.now().UTC(),
		},
		passwordHash: hash,
	}
	s.users[rec.user.ID] = rec
	s.byEmail[email] = rec.user.ID

	return s.issueLocked(rec.user), nil
}

// Login verifies credentials and returns a new session
func (s *Store) Login(email, password string) (*sdk.Session, error) {
	s.mu.RLock()
	id, ok := s.byEmail[normalizeEmail(email)]
	var rec *userRecord
	if ok {
		rec = s.users[id]
	}
	s.mu.RUnlock()

	if rec == nil || bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(rec.user), nil
}

// Refresh rotates a refresh token into a new session
func (s *Store) Refresh(token string) (*sdk.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.refresh[token]
	if !ok || !s.now().Before(rec.expiresAt) {
		delete(s.refresh, token)
		return nil, ErrInvalidCredentials
	}
	delete(s.refresh, token)

	user, ok := s.users[rec.userID]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return s.issueLocked(user.user), nil
}

// Logout revokes an access token and every refresh token of its user
func (s *Store) Logout(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.access[accessToken]
	if !ok {
		return
	}
	delete(s.access, accessToken)
	for tok, r := range s.refresh {
		if r.userID == rec.userID {
			delete(s.refresh, tok)
		}
	}
}

// Authenticate resolves an access token to its user
func (s *Store) Authenticate(accessToken string) (sdk.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.access[accessToken]
	if !ok || !s.now().Before(rec.expiresAt) {
		return sdk.User{}, ErrInvalidCredentials
	}
	user, ok := s.users[rec.userID]
	if !ok {
		return sdk.User{}, ErrInvalidCredentials
	}
	return user.user, nil
}

func (s *Store) issueLocked(user sdk.User) *sdk.Session {
	now := s.now()
	access := uuid.NewString()
	refresh := uuid.NewString()
	s.access[access] = tokenRecord{userID: user.ID, expiresAt: now.Add(s.accessTTL)}
	s.refresh[refresh] = tokenRecord{userID: user.ID, expiresAt: now.Add(s.refreshTTL)}

	u := user
	return &sdk.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.accessTTL.Seconds()),
		User:         &u,
	}
}

// ListPortfolios returns the owner's portfolios, oldest first
func (s *Store) ListPortfolios(ownerID string) []sdk.Portfolio {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]sdk.Portfolio, 0)
	for _, p := range s.portfolios {
		if p.OwnerID == ownerID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GetPortfolio returns a portfolio visible to viewerID: its own or a public one
func (s *Store) GetPortfolio(viewerID, id string) (sdk.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.portfolios[id]
	if !ok {
		return sdk.Portfolio{}, ErrNotFound
	}
	if p.OwnerID != viewerID && !p.Public {
		return sdk.Portfolio{}, ErrNotFound
	}
	return *p, nil
}

// CreatePortfolio adds a portfolio owned by ownerID
func (s *Store) CreatePortfolio(ownerID string, in sdk.PortfolioInput) sdk.Portfolio {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	p := &sdk.Portfolio{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Public:      in.Public,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.portfolios[p.ID] = p
	return *p
}

// UpdatePortfolio replaces a portfolio's fields
func (s *Store) UpdatePortfolio(ownerID, id string, in sdk.PortfolioInput) (sdk.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.ownedPortfolioLocked(ownerID, id)
	if err != nil {
		return sdk.Portfolio{}, err
	}
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Public = in.Public
	p.UpdatedAt = s.now().UTC()
	return *p, nil
}

// DeletePortfolio removes a portfolio, its projects and its analytics
func (s *Store) DeletePortfolio(ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ownedPortfolioLocked(ownerID, id); err != nil {
		return err
	}
	delete(s.portfolios, id)
	delete(s.analytics, id)
	for pid, p := range s.projects {
		if p.PortfolioID == id {
			delete(s.projects, pid)
		}
	}
	return nil
}

func (s *Store) ownedPortfolioLocked(ownerID, id string) (*sdk.Portfolio, error) {
	p, ok := s.portfolios[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.OwnerID != ownerID {
		if p.Public {
			return nil, ErrForbidden
		}
		return nil, ErrNotFound
	}
	return p, nil
}

// ListProjects returns a portfolio's projects, oldest first
func (s *Store) ListProjects(viewerID, portfolioID string) ([]sdk.Project, error) {
	if _, err := s.GetPortfolio(viewerID, portfolioID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]sdk.Project, 0)
	for _, p := range s.projects {
		if p.PortfolioID == portfolioID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// GetProject returns a project whose portfolio is visible to viewerID
func (s *Store) GetProject(viewerID, id string) (sdk.Project, error) {
	s.mu.RLock()
	p, ok := s.projects[id]
	s.mu.RUnlock()
	if !ok {
		return sdk.Project{}, ErrNotFound
	}
	if _, err := s.GetPortfolio(viewerID, p.PortfolioID); err != nil {
		return sdk.Project{}, err
	}
	return *p, nil
}

// CreateProject adds a project to an owned portfolio
func (s *Store) CreateProject(ownerID, portfolioID string, in sdk.ProjectInput) (sdk.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ownedPortfolioLocked(ownerID, portfolioID); err != nil {
		return sdk.Project{}, err
	}

	now := s.now().UTC()
	p := &sdk.Project{
		ID:          uuid.NewString(),
		PortfolioID: portfolioID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		URL:         in.URL,
		Tags:        append([]string(nil), in.Tags...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.projects[p.ID] = p
	return *p, nil
}

// UpdateProject replaces a project's fields
func (s *Store) UpdateProject(ownerID, id string, in sdk.ProjectInput) (sdk.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return sdk.Project{}, ErrNotFound
	}
	if _, err := s.ownedPortfolioLocked(ownerID, p.PortfolioID); err != nil {
		return sdk.Project{}, err
	}
	p.Title = strings.TrimSpace(in.Title)
	p.Description = in.Description
	p.URL = in.URL
	p.Tags = append([]string(nil), in.Tags...)
	p.UpdatedAt = s.now().UTC()
	return *p, nil
}

// DeleteProject removes a project
func (s *Store) DeleteProject(ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return ErrNotFound
	}
	if _, err := s.ownedPortfolioLocked(ownerID, p.PortfolioID); err != nil {
		return err
	}
	delete(s.projects, id)
	return nil
}

// AddFile records an uploaded file
func (s *Store) AddFile(ownerID, key string, info sdk.FileInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[info.ID] = &fileRecord{info: info, ownerID: ownerID, key: key}
}

// ListFiles returns the owner's files, oldest first
func (s *Store) ListFiles(ownerID string) []sdk.FileInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]sdk.FileInfo, 0)
	for _, f := range s.files {
		if f.ownerID == ownerID {
			out = append(out, f.info)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out
}

// RemoveFile deletes a file record and returns its storage key
func (s *Store) RemoveFile(ownerID, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok || f.ownerID != ownerID {
		return "", ErrNotFound
	}
	delete(s.files, id)
	return f.key, nil
}

// RecordEvent folds an analytics event into its portfolio's totals. visitor
// identifies the user or client that produced it.
func (s *Store) RecordEvent(visitor string, e sdk.AnalyticsEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.analytics[e.PortfolioID]
	if !ok {
		rec = &analyticsRecord{
			visitors: make(map[string]struct{}),
			events:   make(map[string]int),
			projects: make(map[string]int),
		}
		s.analytics[e.PortfolioID] = rec
	}

	rec.events[e.Type]++
	if e.Type == "view" {
		rec.views++
		if visitor != "" {
			rec.visitors[visitor] = struct{}{}
		}
		if e.ProjectID != "" {
			rec.projects[e.ProjectID]++
		}
	}
}

// Summary returns the analytics totals of an owned portfolio
func (s *Store) Summary(ownerID, portfolioID, period string) (sdk.AnalyticsSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.ownedPortfolioLocked(ownerID, portfolioID); err != nil {
		return sdk.AnalyticsSummary{}, err
	}

	summary := sdk.AnalyticsSummary{
		PortfolioID: portfolioID,
		Period:      period,
		Events:      make(map[string]int),
	}
	rec, ok := s.analytics[portfolioID]
	if !ok {
		return summary, nil
	}

	summary.Views = rec.views
	summary.Visitors = len(rec.visitors)
	for k, v := range rec.events {
		summary.Events[k] = v
	}
	for id, views := range rec.projects {
		summary.TopProjects = append(summary.TopProjects, sdk.ProjectStat{ProjectID: id, Views: views})
	}
	sort.Slice(summary.TopProjects, func(i, j int) bool {
		a, b := summary.TopProjects[i], summary.TopProjects[j]
		if a.Views == b.Views {
			return a.ProjectID < b.ProjectID
		}
		return a.Views > b.Views
	})
	return summary, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PurgeExpired drops expired access and refresh tokens and returns how many
// of each were removed
func (s *Store) PurgeExpired() (access, refresh int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for tok, rec := range s.access {
		if !now.Before(rec.expiresAt) {
			delete(s.access, tok)
			access++
		}
	}
	for tok, rec := range s.refresh {
		if !now.Before(rec.expiresAt) {
			delete(s.refresh, tok)
			refresh++
		}
	}
	return access, refresh
}
