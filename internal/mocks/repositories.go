package mocks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/crowd-labeling-api/internal/models"
	"github.com/crowd-labeling-api/internal/repository"
)

// Store is an in-memory entity store. Its repositories follow the
// PostgreSQL implementations: not-found reads return nil, nil and unique
// violations return repository.ErrConflict. WithTx restores the previous
// state when the function fails.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	Users     map[int64]*models.User
	Locations map[int64]*models.Location
	Answers   map[int64]*models.Answer

	nextUserID     int64
	nextLocationID int64
	nextAnswerID   int64

	answerCreateErr   error
	answerCreatesLeft int

	// TxCalls counts started transactions
	TxCalls int
}

// Verify interface compliance
var (
	_ repository.Transactor         = (*Store)(nil)
	_ repository.UserRepository     = (*MockUserRepository)(nil)
	_ repository.LocationRepository = (*MockLocationRepository)(nil)
	_ repository.AnswerRepository   = (*MockAnswerRepository)(nil)
)

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		Users:     make(map[int64]*models.User),
		Locations: make(map[int64]*models.Location),
		Answers:   make(map[int64]*models.Answer),
	}
}

// Repos returns repositories backed by the store
func (s *Store) Repos() *repository.Repositories {
	return &repository.Repositories{
		User:     &MockUserRepository{s: s},
		Location: &MockLocationRepository{s: s},
		Answer:   &MockAnswerRepository{s: s},
		Tx:       s,
	}
}

// WithTx runs fn with transaction-scoped repositories, one transaction at a time
func (s *Store) WithTx(ctx context.Context, opts *sql.TxOptions, fn repository.TxFunc) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.TxCalls++
	snap := s.snapshot()
	s.mu.Unlock()

	repos := s.Repos()
	repos.Tx = repository.Nested(repos)

	if err := fn(repos); err != nil {
		s.mu.Lock()
		s.restore(snap)
		s.mu.Unlock()
		return err
	}
	return nil
}

type snapshot struct {
	users     map[int64]models.User
	locations map[int64]models.Location
	answers   map[int64]models.Answer
	ids       [3]int64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		users:     make(map[int64]models.User, len(s.Users)),
		locations: make(map[int64]models.Location, len(s.Locations)),
		answers:   make(map[int64]models.Answer, len(s.Answers)),
		ids:       [3]int64{s.nextUserID, s.nextLocationID, s.nextAnswerID},
	}
	for id, u := range s.Users {
		snap.users[id] = *u
	}
	for id, l := range s.Locations {
		c := *l
		if l.DoneAt != nil {
			t := *l.DoneAt
			c.DoneAt = &t
		}
		snap.locations[id] = c
	}
	for id, a := range s.Answers {
		snap.answers[id] = *a
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.Users = make(map[int64]*models.User, len(snap.users))
	for id, u := range snap.users {
		u := u
		s.Users[id] = &u
	}
	s.Locations = make(map[int64]*models.Location, len(snap.locations))
	for id, l := range snap.locations {
		l := l
		s.Locations[id] = &l
	}
	s.Answers = make(map[int64]*models.Answer, len(snap.answers))
	for id, a := range snap.answers {
		a := a
		s.Answers[id] = &a
	}
	s.nextUserID, s.nextLocationID, s.nextAnswerID = snap.ids[0], snap.ids[1], snap.ids[2]
}

// AddUser seeds a user
func (s *Store) AddUser(clientID string, clientType models.ClientType) *models.User {
	u := &models.User{ClientID: clientID, ClientType: clientType}
	if err := (&MockUserRepository{s: s}).Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

// AddLocation seeds a location
func (s *Store) AddLocation(factoryID string) *models.Location {
	l := &models.Location{FactoryID: factoryID}
	if err := (&MockLocationRepository{s: s}).Create(context.Background(), l); err != nil {
		panic(err)
	}
	return l
}

// AddGoldStandard seeds a gold standard answer authored by userID
func (s *Store) AddGoldStandard(userID, locationID int64, landUsage models.LandUsage, expansion models.Expansion) *models.Answer {
	a := &models.Answer{
		UserID:             userID,
		LocationID:         locationID,
		LandUsage:          landUsage,
		Expansion:          expansion,
		GoldStandardStatus: models.GoldStandard,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertAnswer(a); err != nil {
		panic(err)
	}
	return a
}

// FailAnswerCreates lets the next after answer inserts succeed and fails the one following them with err
func (s *Store) FailAnswerCreates(after int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answerCreateErr = err
	s.answerCreatesLeft = after
}

// AnswerCount returns the number of stored answers
func (s *Store) AnswerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Answers)
}

// Location returns a copy of a stored location, or nil
func (s *Store) Location(id int64) *models.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.Locations[id]
	if !ok {
		return nil
	}
	c := *l
	return &c
}

// AnswersOf returns the stored answers of a user ordered by ID
func (s *Store) AnswersOf(userID int64) []*models.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Answer
	for _, a := range s.Answers {
		if a.UserID == userID {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) insertAnswer(a *models.Answer) error {
	if _, ok := s.Locations[a.LocationID]; !ok {
		return fmt.Errorf("answers_location_id_fkey: location %d does not exist", a.LocationID)
	}
	if _, ok := s.Users[a.UserID]; !ok {
		return fmt.Errorf("answers_user_id_fkey: user %d does not exist", a.UserID)
	}
	if a.GoldStandardStatus == models.GoldStandard && s.goldOf(a.LocationID) != nil {
		return fmt.Errorf("%w: uq_answers_gold_location", repository.ErrConflict)
	}
	s.nextAnswerID++
	a.ID = s.nextAnswerID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	c := *a
	s.Answers[a.ID] = &c
	return nil
}

func (s *Store) goldOf(locationID int64) *models.Answer {
	var gold *models.Answer
	for _, a := range s.Answers {
		if a.LocationID == locationID && a.GoldStandardStatus == models.GoldStandard {
			if gold == nil || a.ID < gold.ID {
				gold = a
			}
		}
	}
	return gold
}

// MockUserRepository is the in-memory UserRepository
type MockUserRepository struct {
	s *Store
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.Users {
		if u.ClientID == user.ClientID {
			return fmt.Errorf("%w: users_client_id_key", repository.ErrConflict)
		}
	}
	m.s.nextUserID++
	user.ID = m.s.nextUserID
	user.CreatedAt = time.Now()
	c := *user
	m.s.Users[user.ID] = &c
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u, ok := m.s.Users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (m *MockUserRepository) GetByClientID(ctx context.Context, clientID string) (*models.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.Users {
		if u.ClientID == clientID {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MockUserRepository) List(ctx context.Context) ([]*models.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	users := make([]*models.User, 0, len(m.s.Users))
	for _, u := range m.s.Users {
		c := *u
		users = append(users, &c)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *MockUserRepository) UpdateClientType(ctx context.Context, id int64, clientType models.ClientType) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.Users[id]
	if !ok {
		return false, nil
	}
	u.ClientType = clientType
	return true, nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id int64) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.Users[id]; !ok {
		return false, nil
	}
	delete(m.s.Users, id)
	for aid, a := range m.s.Answers {
		if a.UserID == id {
			delete(m.s.Answers, aid)
		}
	}
	return true, nil
}

func (m *MockUserRepository) Count(ctx context.Context) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return len(m.s.Users), nil
}

// MockLocationRepository is the in-memory LocationRepository
type MockLocationRepository struct {
	s *Store
}

func (m *MockLocationRepository) Create(ctx context.Context, location *models.Location) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.insert(location)
}

func (m *MockLocationRepository) insert(location *models.Location) error {
	for _, l := range m.s.Locations {
		if l.FactoryID == location.FactoryID {
			return fmt.Errorf("%w: locations_factory_id_key", repository.ErrConflict)
		}
	}
	m.s.nextLocationID++
	location.ID = m.s.nextLocationID
	location.CreatedAt = time.Now()
	c := *location
	m.s.Locations[location.ID] = &c
	return nil
}

func (m *MockLocationRepository) BatchInsert(ctx context.Context, locations []*models.Location) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, l := range locations {
		if err := m.insert(l); err != nil {
			return 0, err
		}
	}
	return len(locations), nil
}

func (m *MockLocationRepository) GetByID(ctx context.Context, id int64) (*models.Location, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if l, ok := m.s.Locations[id]; ok {
		c := *l
		return &c, nil
	}
	return nil, nil
}

func (m *MockLocationRepository) GetByFactoryID(ctx context.Context, factoryID string) (*models.Location, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, l := range m.s.Locations {
		if l.FactoryID == factoryID {
			c := *l
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MockLocationRepository) GetAllFactoryIDs(ctx context.Context) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ids := make([]string, 0, len(m.s.Locations))
	for _, l := range m.s.Locations {
		ids = append(ids, l.FactoryID)
	}
	return ids, nil
}

func (m *MockLocationRepository) SetDoneAt(ctx context.Context, id int64, doneAt *time.Time) (*models.Location, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	l, ok := m.s.Locations[id]
	if !ok {
		return nil, nil
	}
	switch {
	case doneAt == nil:
		l.DoneAt = nil
	case l.DoneAt == nil:
		t := *doneAt
		l.DoneAt = &t
	}
	c := *l
	return &c, nil
}

func (m *MockLocationRepository) DoneIDs(ctx context.Context) ([]int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ids := []int64{}
	for id, l := range m.s.Locations {
		if l.DoneAt != nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MockLocationRepository) RandomSample(ctx context.Context, filter models.LocationFilter, limit int) ([]*models.Location, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	out := []*models.Location{}
	if limit <= 0 {
		return out, nil
	}

	var allowed map[int64]bool
	if filter.IDs != nil {
		allowed = make(map[int64]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			allowed[id] = true
		}
	}
	excluded := make(map[int64]bool, len(filter.ExcludeIDs))
	for _, id := range filter.ExcludeIDs {
		excluded[id] = true
	}

	for id, l := range m.s.Locations {
		if allowed != nil && !allowed[id] {
			continue
		}
		if excluded[id] || (filter.OnlyOpen && l.DoneAt != nil) {
			continue
		}
		c := *l
		out = append(out, &c)
	}

	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockLocationRepository) Delete(ctx context.Context, id int64) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.Locations[id]; !ok {
		return false, nil
	}
	delete(m.s.Locations, id)
	for aid, a := range m.s.Answers {
		if a.LocationID == id {
			delete(m.s.Answers, aid)
		}
	}
	return true, nil
}

func (m *MockLocationRepository) Count(ctx context.Context) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return len(m.s.Locations), nil
}

func (m *MockLocationRepository) CountDone(ctx context.Context) (int, error) {
	ids, _ := m.DoneIDs(ctx)
	return len(ids), nil
}

func (m *MockLocationRepository) StreamAll(ctx context.Context, callback func(*models.LocationSummary) error) error {
	m.s.mu.Lock()
	summaries := make([]*models.LocationSummary, 0, len(m.s.Locations))
	for _, l := range m.s.Locations {
		sum := &models.LocationSummary{Location: *l}
		for _, a := range m.s.Answers {
			if a.LocationID == l.ID {
				sum.AnswerCount++
			}
		}
		summaries = append(summaries, sum)
	}
	m.s.mu.Unlock()

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	for _, sum := range summaries {
		if err := callback(sum); err != nil {
			return err
		}
	}
	return nil
}

// MockAnswerRepository is the in-memory AnswerRepository
type MockAnswerRepository struct {
	s *Store
}

func (m *MockAnswerRepository) Create(ctx context.Context, answer *models.Answer) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.answerCreateErr != nil {
		if m.s.answerCreatesLeft == 0 {
			err := m.s.answerCreateErr
			m.s.answerCreateErr = nil
			return err
		}
		m.s.answerCreatesLeft--
	}
	return m.s.insertAnswer(answer)
}

func (m *MockAnswerRepository) GetByID(ctx context.Context, id int64) (*models.Answer, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if a, ok := m.s.Answers[id]; ok {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (m *MockAnswerRepository) filter(keep func(*models.Answer) bool) []*models.Answer {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []*models.Answer{}
	for _, a := range m.s.Answers {
		if keep(a) {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockAnswerRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Answer, error) {
	return m.filter(func(a *models.Answer) bool { return a.UserID == userID }), nil
}

func (m *MockAnswerRepository) ListByLocation(ctx context.Context, locationID int64) ([]*models.Answer, error) {
	return m.filter(func(a *models.Answer) bool { return a.LocationID == locationID }), nil
}

func (m *MockAnswerRepository) ListByUserAndLocation(ctx context.Context, userID, locationID int64) ([]*models.Answer, error) {
	return m.filter(func(a *models.Answer) bool { return a.UserID == userID && a.LocationID == locationID }), nil
}

func (m *MockAnswerRepository) GoldByLocation(ctx context.Context, locationID int64) (*models.Answer, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if gold := m.s.goldOf(locationID); gold != nil {
		c := *gold
		return &c, nil
	}
	return nil, nil
}

func distinctLocations(answers []*models.Answer) []int64 {
	seen := make(map[int64]bool)
	ids := []int64{}
	for _, a := range answers {
		if !seen[a.LocationID] {
			seen[a.LocationID] = true
			ids = append(ids, a.LocationID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *MockAnswerRepository) GoldLocationIDs(ctx context.Context) ([]int64, error) {
	return distinctLocations(m.filter(func(a *models.Answer) bool {
		return a.GoldStandardStatus == models.GoldStandard
	})), nil
}

func (m *MockAnswerRepository) LocationIDsByUser(ctx context.Context, userID int64) ([]int64, error) {
	return distinctLocations(m.filter(func(a *models.Answer) bool { return a.UserID == userID })), nil
}

func (m *MockAnswerRepository) ExistsMatching(ctx context.Context, match models.AnswerMatch) (bool, error) {
	found := m.filter(func(a *models.Answer) bool {
		return a.LocationID == match.LocationID &&
			a.GoldStandardStatus == match.Status &&
			a.LandUsage == match.LandUsage &&
			a.Expansion == match.Expansion &&
			(match.ExcludeUserID == 0 || a.UserID != match.ExcludeUserID)
	})
	return len(found) > 0, nil
}

func (m *MockAnswerRepository) UpdateGoldStandardStatus(ctx context.Context, id int64, status models.GoldStandardStatus) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.Answers[id]
	if !ok {
		return false, nil
	}
	if status == models.GoldStandard {
		if gold := m.s.goldOf(a.LocationID); gold != nil && gold.ID != id {
			return false, fmt.Errorf("%w: uq_answers_gold_location", repository.ErrConflict)
		}
	}
	a.GoldStandardStatus = status
	return true, nil
}

func (m *MockAnswerRepository) Delete(ctx context.Context, id int64) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.Answers[id]; !ok {
		return false, nil
	}
	delete(m.s.Answers, id)
	return true, nil
}

func (m *MockAnswerRepository) CountNonGold(ctx context.Context) (int, error) {
	return len(m.filter(func(a *models.Answer) bool { return a.GoldStandardStatus != models.GoldStandard })), nil
}

func (m *MockAnswerRepository) CountPassedLocationsByUser(ctx context.Context, userID int64) (int, error) {
	return len(distinctLocations(m.filter(func(a *models.Answer) bool {
		return a.UserID == userID && a.GoldStandardStatus == models.GoldPassed
	}))), nil
}

func (m *MockAnswerRepository) StreamAll(ctx context.Context, callback func(*models.AnswerExport) error) error {
	answers := m.filter(func(*models.Answer) bool { return true })
	sort.SliceStable(answers, func(i, j int) bool { return answers[i].UserID < answers[j].UserID })

	for _, a := range answers {
		m.s.mu.Lock()
		e := &models.AnswerExport{Answer: *a}
		if u, ok := m.s.Users[a.UserID]; ok {
			e.ClientID = u.ClientID
		}
		if l, ok := m.s.Locations[a.LocationID]; ok {
			e.FactoryID = l.FactoryID
		}
		m.s.mu.Unlock()

		if err := callback(e); err != nil {
			return err
		}
	}
	return nil
}

// ErrInjected is a ready-made failure for tests
var ErrInjected = errors.New("injected failure")
