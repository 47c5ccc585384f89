package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/IshaanNene/pubharvest/internal/types"
)

type satelliteKey struct {
	category      types.Category
	publicationID uint
}

type linkKey struct {
	authorID      uint
	publicationID uint
}

type yearlyKey struct {
	publicationID uint
	year          int
	source        string
}

// memState is everything the memory repository holds. The publication-side tables
// are copied on Transaction so a failed fn can be rolled back.
type memState struct {
	seq          uint
	departments  map[string]Department
	authors      map[uint]Author
	metrics      map[uint]map[string]AuthorMetric
	venues       map[string]Venue
	publications map[uint]Publication
	satellites   map[satelliteKey]Satellite
	links        map[linkKey]AuthorPublication
	yearly       map[yearlyKey]YearlyCitation
	roster       map[uint]RosterRow
	runs         map[string]ScrapeRun
}

func newMemState() *memState {
	return &memState{
		departments:  make(map[string]Department),
		authors:      make(map[uint]Author),
		metrics:      make(map[uint]map[string]AuthorMetric),
		venues:       make(map[string]Venue),
		publications: make(map[uint]Publication),
		satellites:   make(map[satelliteKey]Satellite),
		links:        make(map[linkKey]AuthorPublication),
		yearly:       make(map[yearlyKey]YearlyCitation),
		roster:       make(map[uint]RosterRow),
		runs:         make(map[string]ScrapeRun),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.seq = s.seq
	for k, v := range s.departments {
		c.departments[k] = v
	}
	for k, v := range s.authors {
		c.authors[k] = v
	}
	for k, v := range s.metrics {
		inner := make(map[string]AuthorMetric, len(v))
		for src, m := range v {
			inner[src] = m
		}
		c.metrics[k] = inner
	}
	for k, v := range s.venues {
		c.venues[k] = v
	}
	for k, v := range s.publications {
		c.publications[k] = v
	}
	for k, v := range s.satellites {
		c.satellites[k] = v
	}
	for k, v := range s.links {
		c.links[k] = v
	}
	for k, v := range s.yearly {
		c.yearly[k] = v
	}
	for k, v := range s.roster {
		c.roster[k] = v
	}
	for k, v := range s.runs {
		c.runs[k] = v
	}
	return c
}

func (s *memState) nextID() uint {
	s.seq++
	return s.seq
}

// MemoryRepository is an in-process Repository for dry runs and tests.
// Transactions are serialized. A rollback restores the tables a transaction
// writes; roster rows, runs and the id sequence are written outside
// transactions and keep their current values.
type MemoryRepository struct {
	txMu     sync.Mutex
	mu       sync.Mutex
	state    *memState
	failures map[string]error
	once     map[string]error
	now      func() time.Time
}

// NewMemoryRepository creates an empty memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state:    newMemState(),
		failures: make(map[string]error),
		once:     make(map[string]error),
		now:      time.Now,
	}
}

// FailOn makes every later call of the named operation return err. A nil err clears it.
func (m *MemoryRepository) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// FailOnce makes the next call of the named operation return err.
func (m *MemoryRepository) FailOnce(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.once[op] = err
}

// lock acquires the state lock unless a failure is injected for op.
func (m *MemoryRepository) lock(op string) error {
	m.mu.Lock()
	if err, ok := m.once[op]; ok {
		delete(m.once, op)
		m.mu.Unlock()
		return err
	}
	if err := m.failures[op]; err != nil {
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *MemoryRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.state.clone()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		snapshot.seq = m.state.seq
		snapshot.roster = m.state.roster
		snapshot.runs = m.state.runs
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *MemoryRepository) Migrate(ctx context.Context) error { return nil }

func (m *MemoryRepository) Close() error { return nil }

func (m *MemoryRepository) FindOrCreateDepartment(ctx context.Context, name, key string) (uint, error) {
	if err := m.lock("department"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	if d, ok := m.state.departments[key]; ok {
		return d.ID, nil
	}
	d := Department{ID: m.state.nextID(), Name: name, NameKey: key, CreatedAt: m.now()}
	m.state.departments[key] = d
	return d.ID, nil
}

func (m *MemoryRepository) UpsertAuthor(ctx context.Context, a *Author) error {
	if err := m.lock("author"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	for id, existing := range m.state.authors {
		if existing.ExternalID == a.ExternalID && existing.Source == a.Source {
			existing.Name = a.Name
			existing.DepartmentID = a.DepartmentID
			existing.ProfileURL = a.ProfileURL
			existing.DownloadedAt = a.DownloadedAt
			existing.UpdatedAt = m.now()
			m.state.authors[id] = existing
			a.ID = id
			return nil
		}
	}
	a.ID = m.state.nextID()
	a.CreatedAt = m.now()
	a.UpdatedAt = a.CreatedAt
	m.state.authors[a.ID] = *a
	return nil
}

func (m *MemoryRepository) UpsertAuthorMetric(ctx context.Context, metric *AuthorMetric) error {
	if err := m.lock("author_metric"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	bySource := m.state.metrics[metric.AuthorID]
	if bySource == nil {
		bySource = make(map[string]AuthorMetric)
		m.state.metrics[metric.AuthorID] = bySource
	}
	if existing, ok := bySource[metric.Source]; ok {
		metric.ID = existing.ID
	} else {
		metric.ID = m.state.nextID()
	}
	metric.UpdatedAt = m.now()
	bySource[metric.Source] = *metric
	return nil
}

func (m *MemoryRepository) FindAuthor(ctx context.Context, externalID, source string) (*Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.state.authors {
		if a.ExternalID == externalID && a.Source == source {
			found := a
			return &found, nil
		}
	}
	return nil, types.ErrNotFound
}

func (m *MemoryRepository) FindOrCreateVenue(ctx context.Context, name, key string) (uint, error) {
	if err := m.lock("venue"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	if v, ok := m.state.venues[key]; ok {
		return v.ID, nil
	}
	v := Venue{ID: m.state.nextID(), Name: name, NameKey: key, CreatedAt: m.now()}
	m.state.venues[key] = v
	return v.ID, nil
}

func (m *MemoryRepository) FindPublication(ctx context.Context, titleHash string, category types.Category, year int, titleOnly bool) (*Publication, error) {
	if err := m.lock("find_publication"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	var found *Publication
	for _, p := range m.state.publications {
		if p.TitleHash != titleHash {
			continue
		}
		if !titleOnly && (p.Category != string(category) || p.Year != year) {
			continue
		}
		if found == nil || p.ID < found.ID {
			match := p
			found = &match
		}
	}
	if found == nil {
		return nil, types.ErrNotFound
	}
	return found, nil
}

func (m *MemoryRepository) CreatePublication(ctx context.Context, p *Publication) error {
	if err := m.lock("create_publication"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	for _, existing := range m.state.publications {
		if existing.TitleHash == p.TitleHash && existing.Category == p.Category && existing.Year == p.Year {
			return errDuplicate("uq_publications_identity")
		}
	}
	p.ID = m.state.nextID()
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	m.state.publications[p.ID] = *p
	return nil
}

func (m *MemoryRepository) RaiseCitations(ctx context.Context, publicationID uint, count int) (bool, error) {
	if err := m.lock("raise_citations"); err != nil {
		return false, err
	}
	defer m.mu.Unlock()
	p, ok := m.state.publications[publicationID]
	if !ok || p.CitationCount >= count {
		return false, nil
	}
	p.CitationCount = count
	p.UpdatedAt = m.now()
	m.state.publications[publicationID] = p
	return true, nil
}

func (m *MemoryRepository) SaveSatellite(ctx context.Context, publicationID uint, sat Satellite) error {
	if err := m.lock("satellite"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	key := satelliteKey{category: sat.Category, publicationID: publicationID}
	existing, ok := m.state.satellites[key]
	if !ok {
		m.state.satellites[key] = sat
		return nil
	}
	for name, v := range satelliteColumns(sat) {
		switch name {
		case "venue_id":
			existing.VenueID = v.(uint)
		case "volume":
			existing.Volume = v.(string)
		case "issue":
			existing.Issue = v.(string)
		case "pages":
			existing.Pages = v.(string)
		case "conference":
			existing.Conference = v.(string)
		case "publisher":
			existing.Publisher = v.(string)
		case "label":
			existing.Label = v.(string)
		case "note":
			existing.Note = v.(string)
		}
	}
	m.state.satellites[key] = existing
	return nil
}

func (m *MemoryRepository) LinkAuthor(ctx context.Context, link *AuthorPublication) (bool, error) {
	if err := m.lock("link"); err != nil {
		return false, err
	}
	defer m.mu.Unlock()
	key := linkKey{authorID: link.AuthorID, publicationID: link.PublicationID}
	if _, ok := m.state.links[key]; ok {
		return false, nil
	}
	link.ID = m.state.nextID()
	link.CreatedAt = m.now()
	m.state.links[key] = *link
	return true, nil
}

func (m *MemoryRepository) UpsertYearlyCitation(ctx context.Context, yc *YearlyCitation) error {
	if err := m.lock("yearly_citation"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	key := yearlyKey{publicationID: yc.PublicationID, year: yc.Year, source: yc.Source}
	if existing, ok := m.state.yearly[key]; ok {
		yc.ID = existing.ID
	} else {
		yc.ID = m.state.nextID()
	}
	yc.UpdatedAt = m.now()
	m.state.yearly[key] = *yc
	return nil
}

func (m *MemoryRepository) AddRoster(ctx context.Context, row *RosterRow) error {
	if err := m.lock("roster"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	row.ID = m.state.nextID()
	row.CreatedAt = m.now()
	row.UpdatedAt = row.CreatedAt
	m.state.roster[row.ID] = *row
	return nil
}

func (m *MemoryRepository) ListRoster(ctx context.Context, source string, includeCompleted bool) ([]RosterRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]RosterRow, 0, len(m.state.roster))
	for _, row := range m.state.roster {
		if source != "" && row.Source != source {
			continue
		}
		if !includeCompleted && rowStatus(row) == types.StatusCompleted {
			continue
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		ri, rj := rowStatus(rows[i]).Rank(), rowStatus(rows[j]).Rank()
		if ri != rj {
			return ri < rj
		}
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].ID < rows[j].ID
	})
	return rows, nil
}

func (m *MemoryRepository) UpdateRosterStatus(ctx context.Context, id uint, status types.RosterStatus, errMsg *string) error {
	if err := m.lock("roster_status"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	row, ok := m.state.roster[id]
	if !ok {
		return types.ErrNotFound
	}
	s := string(status)
	row.Status = &s
	row.ErrorMessage = errMsg
	row.UpdatedAt = m.now()
	m.state.roster[id] = row
	return nil
}

func (m *MemoryRepository) CreateRun(ctx context.Context, run *ScrapeRun) error {
	if err := m.lock("run"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	if _, ok := m.state.runs[run.RunKey]; ok {
		return errDuplicate("scrape_runs.run_key")
	}
	run.ID = m.state.nextID()
	run.CreatedAt = m.now()
	run.UpdatedAt = run.CreatedAt
	m.state.runs[run.RunKey] = *run
	return nil
}

func (m *MemoryRepository) FinishRun(ctx context.Context, runKey, status string, counters RunCounters, errMsg *string, finishedAt time.Time) error {
	if err := m.lock("run"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	run, ok := m.state.runs[runKey]
	if !ok {
		return types.ErrNotFound
	}
	run.Status = status
	run.FinishedAt = &finishedAt
	run.AuthorsProcessed = counters.AuthorsProcessed
	run.AuthorsWithErrors = counters.AuthorsWithErrors
	run.PublicationsFetched = counters.PublicationsFetched
	run.PublicationsCreated = counters.PublicationsCreated
	run.PublicationsUpdated = counters.PublicationsUpdated
	run.PublicationsFailed = counters.PublicationsFailed
	if errMsg != nil {
		msg := *errMsg
		run.ErrorMessage = &msg
	}
	run.UpdatedAt = m.now()
	m.state.runs[runKey] = run
	return nil
}

func (m *MemoryRepository) GetRun(ctx context.Context, runKey string) (*ScrapeRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.state.runs[runKey]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &run, nil
}

func (m *MemoryRepository) ListRuns(ctx context.Context, limit int) ([]ScrapeRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make([]ScrapeRun, 0, len(m.state.runs))
	for _, run := range m.state.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID > runs[j].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Counts reports row counts per table, for inspection in dry runs and tests.
func (m *MemoryRepository) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"departments":         len(m.state.departments),
		"authors":             len(m.state.authors),
		"venues":              len(m.state.venues),
		"publications":        len(m.state.publications),
		"satellites":          len(m.state.satellites),
		"author_publications": len(m.state.links),
		"yearly_citations":    len(m.state.yearly),
		"scrape_roster":       len(m.state.roster),
		"scrape_runs":         len(m.state.runs),
	}
}

func rowStatus(row RosterRow) types.RosterStatus {
	if row.Status == nil {
		return types.StatusPending
	}
	return types.RosterStatus(*row.Status)
}

type duplicateError string

func (e duplicateError) Error() string { return "duplicate entry for key " + string(e) }

func (e duplicateError) Is(target error) bool { return target == types.ErrDuplicateKey }

func errDuplicate(key string) error { return duplicateError(key) }
