package crawler

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/pkg/utils"
)

// MaxVisitedPerSite bounds the pages one site may fetch in a run.
const MaxVisitedPerSite = 5000

// AdmitResult is the outcome of offering a record to the run state.
type AdmitResult int

const (
	Accepted AdmitResult = iota
	Duplicate
	LimitReached
)

func (r AdmitResult) String() string {
	switch r {
	case Accepted:
		return "emitted"
	case Duplicate:
		return "duplicate"
	case LimitReached:
		return "limit"
	}
	return "unknown"
}

// Site lifecycle states.
const (
	StateSeeding    = "seeding"
	StateFetching   = "fetching"
	StatePaginating = "paginating"
	StateDone       = "done"
)

// RunState holds the per-run dedup sets and counters. Each site has its own
// lock so sites never contend with each other. Page and product URLs share one
// canonical key but live in separate sets, so a card that links back to an
// already visited listing page is still admitted.
type RunState struct {
	RunID   string
	Started time.Time

	limit int
	sites sync.Map // site name -> *siteState
}

type siteState struct {
	mu         sync.Mutex
	limit      int
	visited    map[string]struct{}
	products   map[string]struct{}
	emitted    int
	pages      int
	failed     int
	state      string
	doneReason string
}

// NewRunState starts a run. runLimit applies to sites that set no limit of
// their own; 0 means unlimited.
func NewRunState(runLimit int) *RunState {
	if runLimit < 0 {
		runLimit = 0
	}
	return &RunState{RunID: uuid.NewString(), Started: time.Now().UTC(), limit: runLimit}
}

// Register sets the effective limit for a site. Sites used without
// registration get the run limit.
func (rs *RunState) Register(site domain.SiteConfig) {
	st := rs.site(site.Label())
	st.mu.Lock()
	defer st.mu.Unlock()
	if site.Limit > 0 {
		st.limit = site.Limit
	}
}

func (rs *RunState) site(name string) *siteState {
	if v, ok := rs.sites.Load(name); ok {
		return v.(*siteState)
	}
	v, _ := rs.sites.LoadOrStore(name, &siteState{
		limit:    rs.limit,
		visited:  map[string]struct{}{},
		products: map[string]struct{}{},
		state:    StateSeeding,
	})
	return v.(*siteState)
}

// MarkVisited records a page URL for a site. It returns false when the URL
// was already visited or the site's visited bound is reached.
func (rs *RunState) MarkVisited(site, rawURL string) bool {
	key := utils.CanonURL(rawURL)
	st := rs.site(site)
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, seen := st.visited[key]; seen || len(st.visited) >= MaxVisitedPerSite {
		return false
	}
	st.visited[key] = struct{}{}
	return true
}

// Admit accepts a record unless its (site_name, product_url) pair was already
// admitted or the site reached its limit. Accepted records count towards the
// limit in the order they are admitted.
func (rs *RunState) Admit(rec domain.ProductRecord) AdmitResult {
	key := utils.CanonURL(rec.ProductURL)
	st := rs.site(rec.SiteName)
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, dup := st.products[key]; dup {
		return Duplicate
	}
	if st.limit > 0 && st.emitted >= st.limit {
		return LimitReached
	}
	st.products[key] = struct{}{}
	st.emitted++
	return Accepted
}

// Full reports whether the site has reached its limit.
func (rs *RunState) Full(site string) bool {
	st := rs.site(site)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.limit > 0 && st.emitted >= st.limit
}

// Emitted returns the number of records accepted for a site.
func (rs *RunState) Emitted(site string) int {
	st := rs.site(site)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.emitted
}

// PageDone counts a fetched listing page.
func (rs *RunState) PageDone(site string, ok bool) {
	st := rs.site(site)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.pages++
	if !ok {
		st.failed++
	}
}

// SetState moves a site through its lifecycle. reason is kept only for StateDone.
func (rs *RunState) SetState(site, state, reason string) {
	st := rs.site(site)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = state
	if state == StateDone {
		st.doneReason = reason
	}
}

// Snapshot returns a consistent copy of every site's counters.
func (rs *RunState) Snapshot() domain.RunSummary {
	sum := domain.RunSummary{RunID: rs.RunID, Started: rs.Started, Sites: map[string]domain.SiteSummary{}}
	rs.sites.Range(func(k, v any) bool {
		st := v.(*siteState)
		st.mu.Lock()
		sum.Sites[k.(string)] = domain.SiteSummary{
			Emitted:     st.emitted,
			Pages:       st.pages,
			FailedPages: st.failed,
			State:       st.state,
			DoneReason:  st.doneReason,
		}
		st.mu.Unlock()
		return true
	})
	return sum
}
