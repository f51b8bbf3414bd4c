package services

import (
	"sort"
	"sync"

	"github.com/zatekoja/reviewgate/backend/internal/domain/entities"
)

// AdminPanel is the state behind one admin session: the mirror of the
// feedback collection plus the flags of every admin action in progress. The
// synchronizer, the delete confirmation protocol and the diagnostic probe all
// mutate it; readers take a View and wait on Changed for the next one.
type AdminPanel struct {
	mu sync.Mutex

	records         []entities.StoredRecord
	filter          string
	loading         bool
	loadError       string
	permissionError bool

	pending    string
	generation uint64
	stopTimer  func() bool

	inFlight map[string]struct{}
	bulk     bool
	probe    bool

	changed chan struct{}
}

// NewAdminPanel creates an empty panel in the loading state.
func NewAdminPanel() *AdminPanel {
	return &AdminPanel{
		loading:  true,
		inFlight: make(map[string]struct{}),
		changed:  make(chan struct{}),
	}
}

// Changed returns a channel closed at the next state change. Take it before
// calling View so no change is missed.
func (p *AdminPanel) Changed() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changed
}

// View returns the mirror filtered by the current search term plus the UI state.
func (p *AdminPanel) View() entities.AdminView {
	p.mu.Lock()
	defer p.mu.Unlock()

	records := make([]entities.StoredRecord, 0, len(p.records))
	for _, r := range p.records {
		if r.Matches(p.filter) {
			records = append(records, r)
		}
	}

	inFlight := make([]string, 0, len(p.inFlight))
	for id := range p.inFlight {
		inFlight = append(inFlight, id)
	}
	sort.Strings(inFlight)

	return entities.AdminView{
		Records:             records,
		Total:               len(p.records),
		Filter:              p.filter,
		Loading:             p.loading,
		LoadError:           p.loadError,
		PermissionError:     p.permissionError,
		PendingConfirmation: p.pending,
		DeletesInFlight:     inFlight,
		BulkDeleteInFlight:  p.bulk,
		ProbeInFlight:       p.probe,
	}
}

// SetFilter changes the search term
func (p *AdminPanel) SetFilter(term string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.filter == term {
		return
	}
	p.filter = term
	p.notifyLocked()
}

// SetPermissionError shows or dismisses the permission remediation overlay.
func (p *AdminPanel) SetPermissionError(visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.permissionError == visible {
		return
	}
	p.permissionError = visible
	p.notifyLocked()
}

// applySnapshot replaces the mirror wholesale. The store's ordering is kept
// as delivered. In-flight deletes whose item has gone are finished.
func (p *AdminPanel) applySnapshot(records []entities.StoredRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.records = records
	p.loading = false
	p.loadError = ""

	if len(p.inFlight) > 0 {
		present := make(map[string]struct{}, len(records))
		for _, r := range records {
			present[r.ID] = struct{}{}
		}
		for id := range p.inFlight {
			if _, ok := present[id]; !ok {
				delete(p.inFlight, id)
			}
		}
	}
	p.notifyLocked()
}

// applyLoadFailure records a subscription failure. Permission failures raise
// the overlay; anything else becomes the load error line.
func (p *AdminPanel) applyLoadFailure(permission bool, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.loading = false
	if permission {
		p.permissionError = true
	} else {
		p.loadError = "failed to load data: " + message
	}
	p.notifyLocked()
}

func (p *AdminPanel) setLoading() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = true
	p.loadError = ""
	p.notifyLocked()
}

func (p *AdminPanel) containsLocked(id string) bool {
	for _, r := range p.records {
		if r.ID == id {
			return true
		}
	}
	return false
}

// clearPendingLocked cancels the confirmation timer and forgets the pending id.
func (p *AdminPanel) clearPendingLocked() {
	if p.stopTimer != nil {
		p.stopTimer()
		p.stopTimer = nil
	}
	p.pending = ""
	p.generation++
}

func (p *AdminPanel) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}
