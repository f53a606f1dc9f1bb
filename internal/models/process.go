package models

import (
	"regexp"
	"sort"
	"time"
)

// AccessType classifies how much of a process the tenant's account can see.
type AccessType string

const (
	AccessIntegral AccessType = "integral" // full view, documents extractable
	AccessPartial  AccessType = "partial"  // restricted; documents only for the restricted category
	AccessError    AccessType = "error"    // link did not resolve to a process view
)

// CategoryStatus tracks whether an operator has categorized a partial-access process.
type CategoryStatus string

const (
	CategoryPending     CategoryStatus = "pending"
	CategoryCategorized CategoryStatus = "categorized"
)

// CategoryRestricted is the category that allows document extraction on
// partial access, and the one assigned automatically on integral access.
const CategoryRestricted = "restricted"

// DocumentStatus is the download lifecycle of one attachment.
type DocumentStatus string

const (
	DocumentNotDownloaded DocumentStatus = "not_downloaded"
	DocumentDownloaded    DocumentStatus = "downloaded"
	DocumentError         DocumentStatus = "error"
	DocumentPartial       DocumentStatus = "partial" // downloaded but upload deferred
)

// LinkStatus values for LinkRecord.Status.
const (
	LinkActive   = "active"
	LinkInactive = "inactive"
)

// TimestampLayout is the format used for the string timestamps embedded in
// the links/documents JSON columns.
const TimestampLayout = "2006-01-02 15:04:05"

// DocumentDateLayout is the dd/mm/yyyy format the upstream system uses.
const DocumentDateLayout = "02/01/2006"

var (
	processNumberRe  = regexp.MustCompile(`^\d{5}\.\d{6}/\d{4}-\d{2}$`)
	documentNumberRe = regexp.MustCompile(`^\d{8}$`)
)

// ValidProcessNumber reports whether s matches NNNNN.NNNNNN/YYYY-DD.
func ValidProcessNumber(s string) bool {
	return processNumberRe.MatchString(s)
}

// ValidDocumentNumber reports whether s is an 8-digit document number.
func ValidDocumentNumber(s string) bool {
	return documentNumberRe.MatchString(s)
}

// LinkCheck is one historical observation of a link.
type LinkCheck struct {
	CheckedAt  string     `json:"checked_at"`
	Status     string     `json:"status"`
	AccessType AccessType `json:"access_type"`
}

// LinkRecord is the current state of one upstream access link plus its
// observation history.
type LinkRecord struct {
	Status      string      `json:"status"`
	AccessType  AccessType  `json:"access_type"`
	LastChecked string      `json:"last_checked"`
	History     []LinkCheck `json:"history"`
}

// DocumentRecord is one attachment row as extracted from the process page.
type DocumentRecord struct {
	Type        string         `json:"type"`
	Date        string         `json:"date"`
	Status      DocumentStatus `json:"status"`
	LastChecked string         `json:"last_checked"`
	Signer      string         `json:"signer,omitempty"`
}

// ProcessListing is one (process_number, link_id) pair produced by discovery.
type ProcessListing struct {
	ProcessNumber string
	LinkID        string
	Unit          string
}

// Process is a unit of record in the upstream system, unique per tenant by
// process number.
type Process struct {
	ID              string                    `json:"id" badgerhold:"key"`
	TenantID        string                    `json:"tenant_id" badgerhold:"index"`
	ProcessNumber   string                    `json:"process_number"`
	Links           map[string]LinkRecord     `json:"links"`
	Documents       map[string]DocumentRecord `json:"documents"`
	AccessType      AccessType                `json:"access_type,omitempty"`
	BestCurrentLink string                    `json:"best_current_link,omitempty"`
	Category        string                    `json:"category,omitempty"`
	CategoryStatus  CategoryStatus            `json:"category_status,omitempty"`
	Authority       string                    `json:"authority,omitempty"`
	Unit            string                    `json:"unit,omitempty"`
	Nickname        string                    `json:"nickname,omitempty"`
	NoValidLinks    bool                      `json:"no_valid_links"`
	LastUpdated     string                    `json:"last_updated,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// NewProcess creates an empty process shell for first sight during discovery.
func NewProcess(id, tenantID, processNumber string) *Process {
	now := time.Now()
	return &Process{
		ID:             id,
		TenantID:       tenantID,
		ProcessNumber:  processNumber,
		Links:          map[string]LinkRecord{},
		Documents:      map[string]DocumentRecord{},
		CategoryStatus: CategoryPending,
		NoValidLinks:   true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// RecordLinkCheck updates (or creates) a link record and appends a history
// entry. Status is derived from the access type: an error observation marks
// the link inactive.
func (p *Process) RecordLinkCheck(linkID string, access AccessType, at time.Time) {
	status := LinkActive
	if access == AccessError {
		status = LinkInactive
	}
	if p.Links == nil {
		p.Links = map[string]LinkRecord{}
	}
	rec := p.Links[linkID]
	rec.Status = status
	rec.AccessType = access
	rec.LastChecked = at.Format(TimestampLayout)
	rec.History = append(rec.History, LinkCheck{
		CheckedAt:  at.Format(TimestampLayout),
		Status:     status,
		AccessType: access,
	})
	p.Links[linkID] = rec
	p.NoValidLinks = !p.hasActiveLink()
}

func (p *Process) hasActiveLink() bool {
	for _, rec := range p.Links {
		if rec.Status == LinkActive {
			return true
		}
	}
	return false
}

// MarkLinkInactive records a failed check without an access classification.
func (p *Process) MarkLinkInactive(linkID string, at time.Time) {
	p.RecordLinkCheck(linkID, AccessError, at)
}

// CandidateLinks returns link ids ordered by descending last successful
// check, ties broken by lexicographic link id. Links never seen successful
// sort last. Non-empty first ids are forced to the front in the given order
// (the links the current discovery pass produced).
func (p *Process) CandidateLinks(first ...string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(p.Links)+len(first))
	for _, id := range first {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}

	type cand struct {
		id   string
		last string
	}
	cands := make([]cand, 0, len(p.Links))
	for id, rec := range p.Links {
		if seen[id] {
			continue
		}
		last := ""
		if rec.Status == LinkActive {
			last = rec.LastChecked
		}
		cands = append(cands, cand{id: id, last: last})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].last != cands[j].last {
			return cands[i].last > cands[j].last
		}
		return cands[i].id < cands[j].id
	})
	for _, c := range cands {
		out = append(out, c.id)
	}
	return out
}

// RegisterLink adds a discovered link as an active record without a check
// observation, so the link survives on the process even when a later walk
// stops before reaching it. Known links are left untouched.
func (p *Process) RegisterLink(linkID string) {
	if linkID == "" {
		return
	}
	if p.Links == nil {
		p.Links = map[string]LinkRecord{}
	}
	if _, ok := p.Links[linkID]; ok {
		return
	}
	p.Links[linkID] = LinkRecord{Status: LinkActive}
}

// ApplyAccess applies the categorization policy for a successful link check.
//
// Integral access always categorizes the process as restricted. Partial
// access on a process that was never categorized sends it back to pending;
// an operator decision (categorized) is preserved.
func (p *Process) ApplyAccess(access AccessType) {
	p.AccessType = access
	switch access {
	case AccessIntegral:
		p.Category = CategoryRestricted
		p.CategoryStatus = CategoryCategorized
	case AccessPartial:
		if p.CategoryStatus != CategoryCategorized {
			p.CategoryStatus = CategoryPending
		}
	}
}

// ShouldExtractDocuments reports whether document extraction proceeds for the
// current access and categorization state.
func (p *Process) ShouldExtractDocuments() bool {
	if p.NoValidLinks {
		return false
	}
	switch p.AccessType {
	case AccessIntegral:
		return true
	case AccessPartial:
		if p.CategoryStatus == CategoryPending {
			return false
		}
		return p.Category == CategoryRestricted
	}
	return false
}

// NewDocumentDelta returns the document numbers in extracted that are either
// absent from the stored map or stored with an error status, sorted.
func (p *Process) NewDocumentDelta(extracted map[string]DocumentRecord) []string {
	var delta []string
	for num := range extracted {
		stored, ok := p.Documents[num]
		if !ok || stored.Status == DocumentError {
			delta = append(delta, num)
		}
	}
	sort.Strings(delta)
	return delta
}

// MergeDocuments folds freshly extracted document records into the stored
// map, preserving the download status of documents already seen. A document
// that previously completed its download stays downloaded; a previous error
// becomes eligible for download again.
func (p *Process) MergeDocuments(extracted map[string]DocumentRecord, at time.Time) {
	if p.Documents == nil {
		p.Documents = map[string]DocumentRecord{}
	}
	stamp := at.Format(TimestampLayout)
	for num, rec := range extracted {
		rec.LastChecked = stamp
		if prior, ok := p.Documents[num]; ok {
			switch prior.Status {
			case DocumentError:
				rec.Status = DocumentNotDownloaded
			default:
				rec.Status = prior.Status
			}
			if rec.Signer == "" {
				rec.Signer = prior.Signer
			}
		} else if rec.Status == "" {
			rec.Status = DocumentNotDownloaded
		}
		p.Documents[num] = rec
	}
}

// PendingDocuments returns the document numbers eligible for download
// (not_downloaded or error), sorted.
func (p *Process) PendingDocuments() []string {
	var out []string
	for num, rec := range p.Documents {
		if rec.Status == DocumentNotDownloaded || rec.Status == DocumentError {
			out = append(out, num)
		}
	}
	sort.Strings(out)
	return out
}

// Touch updates the bookkeeping timestamps after a pipeline pass.
func (p *Process) Touch(at time.Time) {
	p.LastUpdated = at.Format(TimestampLayout)
	p.UpdatedAt = at
}
