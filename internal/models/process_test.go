package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidProcessNumber(t *testing.T) {
	assert.True(t, ValidProcessNumber("12345.678901/2024-01"))
	assert.False(t, ValidProcessNumber("12345.678901/2024"))
	assert.False(t, ValidProcessNumber("1234.678901/2024-01"))
	assert.False(t, ValidProcessNumber(""))
	assert.False(t, ValidProcessNumber("12345678"))
}

func TestValidDocumentNumber(t *testing.T) {
	assert.True(t, ValidDocumentNumber("12345678"))
	assert.False(t, ValidDocumentNumber("1234567"))
	assert.False(t, ValidDocumentNumber("123456789"))
	assert.False(t, ValidDocumentNumber("1234567a"))
}

func TestRecordLinkCheck(t *testing.T) {
	p := NewProcess("proc_1", "tenant_1", "12345.678901/2024-01")
	require.True(t, p.NoValidLinks)

	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	p.RecordLinkCheck("link_a", AccessIntegral, at)

	rec := p.Links["link_a"]
	assert.Equal(t, LinkActive, rec.Status)
	assert.Equal(t, AccessIntegral, rec.AccessType)
	assert.Equal(t, "2026-08-01 10:00:00", rec.LastChecked)
	require.Len(t, rec.History, 1)
	assert.False(t, p.NoValidLinks)

	// An error observation flips the link inactive and keeps history.
	p.RecordLinkCheck("link_a", AccessError, at.Add(time.Hour))
	rec = p.Links["link_a"]
	assert.Equal(t, LinkInactive, rec.Status)
	assert.Len(t, rec.History, 2)
	assert.True(t, p.NoValidLinks)
}

func TestCandidateLinksOrder(t *testing.T) {
	p := NewProcess("proc_1", "tenant_1", "12345.678901/2024-01")
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	p.RecordLinkCheck("link_old", AccessIntegral, base)
	p.RecordLinkCheck("link_new", AccessIntegral, base.Add(time.Hour))
	p.RecordLinkCheck("link_dead", AccessError, base.Add(2*time.Hour))

	// Freshest successful check first, dead links last.
	assert.Equal(t, []string{"link_new", "link_old", "link_dead"}, p.CandidateLinks(""))

	// The discovered link is forced to the front.
	assert.Equal(t, []string{"link_dead", "link_new", "link_old"}, p.CandidateLinks("link_dead"))
}

func TestCandidateLinksMultipleDiscovered(t *testing.T) {
	p := NewProcess("proc_1", "tenant_1", "12345.678901/2024-01")
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	p.RecordLinkCheck("link_stored", AccessIntegral, at)

	// Discovered links lead in the given order, duplicates and blanks
	// are dropped, stored links follow.
	assert.Equal(t,
		[]string{"link_abc", "link_def", "link_stored"},
		p.CandidateLinks("link_abc", "link_def", "", "link_abc"))
}

func TestRegisterLink(t *testing.T) {
	p := NewProcess("proc_1", "tenant_1", "12345.678901/2024-01")
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	p.RecordLinkCheck("link_a", AccessIntegral, at)

	p.RegisterLink("link_b")
	p.RegisterLink("")

	require.Contains(t, p.Links, "link_b")
	assert.Equal(t, LinkActive, p.Links["link_b"].Status)
	assert.Empty(t, p.Links["link_b"].History)
	assert.Len(t, p.Links, 2)

	// A known link keeps its record.
	p.RegisterLink("link_a")
	assert.Len(t, p.Links["link_a"].History, 1)
}

func TestCandidateLinksTieBreak(t *testing.T) {
	p := NewProcess("proc_1", "tenant_1", "12345.678901/2024-01")
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	p.RecordLinkCheck("link_b", AccessIntegral, at)
	p.RecordLinkCheck("link_a", AccessIntegral, at)

	assert.Equal(t, []string{"link_a", "link_b"}, p.CandidateLinks(""))
}

func TestApplyAccessPolicy(t *testing.T) {
	p := NewProcess("proc_1", "tenant_1", "12345.678901/2024-01")

	// Integral access always auto-categorizes as restricted.
	p.ApplyAccess(AccessIntegral)
	assert.Equal(t, CategoryRestricted, p.Category)
	assert.Equal(t, CategoryCategorized, p.CategoryStatus)

	// Partial access preserves an operator decision.
	p.ApplyAccess(AccessPartial)
	assert.Equal(t, CategoryCategorized, p.CategoryStatus)

	// Partial access on an uncategorized process goes to pending.
	q := NewProcess("proc_2", "tenant_1", "12345.678901/2024-02")
	q.ApplyAccess(AccessPartial)
	assert.Equal(t, CategoryPending, q.CategoryStatus)
}

func TestShouldExtractDocuments(t *testing.T) {
	at := time.Now()

	p := NewProcess("proc_1", "tenant_1", "12345.678901/2024-01")
	p.RecordLinkCheck("link_a", AccessIntegral, at)
	p.ApplyAccess(AccessIntegral)
	assert.True(t, p.ShouldExtractDocuments())

	// Partial and pending blocks extraction.
	q := NewProcess("proc_2", "tenant_1", "12345.678901/2024-02")
	q.RecordLinkCheck("link_a", AccessPartial, at)
	q.ApplyAccess(AccessPartial)
	assert.False(t, q.ShouldExtractDocuments())

	// Partial with the restricted category extracts.
	q.Category = CategoryRestricted
	q.CategoryStatus = CategoryCategorized
	assert.True(t, q.ShouldExtractDocuments())

	// Partial categorized outside the restricted category does not.
	q.Category = "other"
	assert.False(t, q.ShouldExtractDocuments())

	// No valid links blocks everything.
	p.RecordLinkCheck("link_a", AccessError, at)
	assert.False(t, p.ShouldExtractDocuments())
}

func TestNewDocumentDelta(t *testing.T) {
	p := NewProcess("proc_1", "tenant_1", "12345.678901/2024-01")
	p.Documents["11111111"] = DocumentRecord{Type: "Despacho", Status: DocumentDownloaded}
	p.Documents["22222222"] = DocumentRecord{Type: "Nota", Status: DocumentError}

	extracted := map[string]DocumentRecord{
		"11111111": {Type: "Despacho"},
		"22222222": {Type: "Nota"},
		"33333333": {Type: "Parecer"},
	}

	// New documents plus previous errors are eligible again.
	assert.Equal(t, []string{"22222222", "33333333"}, p.NewDocumentDelta(extracted))
}

func TestMergeDocumentsPreservesStatus(t *testing.T) {
	p := NewProcess("proc_1", "tenant_1", "12345.678901/2024-01")
	p.Documents["11111111"] = DocumentRecord{Type: "Despacho", Status: DocumentDownloaded, Signer: "Alice"}
	p.Documents["22222222"] = DocumentRecord{Type: "Nota", Status: DocumentError}

	at := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	p.MergeDocuments(map[string]DocumentRecord{
		"11111111": {Type: "Despacho"},
		"22222222": {Type: "Nota"},
		"33333333": {Type: "Parecer", Signer: "Bob"},
	}, at)

	assert.Equal(t, DocumentDownloaded, p.Documents["11111111"].Status)
	assert.Equal(t, "Alice", p.Documents["11111111"].Signer)
	assert.Equal(t, DocumentNotDownloaded, p.Documents["22222222"].Status)
	assert.Equal(t, DocumentNotDownloaded, p.Documents["33333333"].Status)
	assert.Equal(t, "Bob", p.Documents["33333333"].Signer)
	assert.Equal(t, "2026-08-02 09:00:00", p.Documents["33333333"].LastChecked)
}

func TestPendingDocuments(t *testing.T) {
	p := NewProcess("proc_1", "tenant_1", "12345.678901/2024-01")
	p.Documents["11111111"] = DocumentRecord{Status: DocumentDownloaded}
	p.Documents["22222222"] = DocumentRecord{Status: DocumentNotDownloaded}
	p.Documents["33333333"] = DocumentRecord{Status: DocumentError}
	p.Documents["44444444"] = DocumentRecord{Status: DocumentPartial}

	assert.Equal(t, []string{"22222222", "33333333"}, p.PendingDocuments())
}
