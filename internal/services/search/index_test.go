package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conectasei/conectasei/internal/common"
	"github.com/conectasei/conectasei/internal/models"
)

func newProcess(id, tenantID, number, authority, nickname string) *models.Process {
	p := models.NewProcess(id, tenantID, number)
	p.Authority = authority
	p.Nickname = nickname
	return p
}

func TestSearchByAuthority(t *testing.T) {
	ix := NewIndex(common.GetLogger())
	ix.Upsert(newProcess("proc_1", "tenant_1", "12345.678901/2024-01", "Secretaria de Obras", ""))
	ix.Upsert(newProcess("proc_2", "tenant_1", "12345.678901/2024-02", "Secretaria de Saude", ""))
	ix.Upsert(newProcess("proc_3", "tenant_1", "12345.678901/2024-03", "Gabinete", ""))

	hits := ix.Search("obras", "", 10)
	require.Len(t, hits, 1)
	assert.Equal(t, "proc_1", hits[0].ProcessID)

	// A shared term matches both, the rarer term ranks its owner first.
	hits = ix.Search("secretaria saude", "", 10)
	require.Len(t, hits, 2)
	assert.Equal(t, "proc_2", hits[0].ProcessID)
}

func TestSearchByProcessNumber(t *testing.T) {
	ix := NewIndex(common.GetLogger())
	ix.Upsert(newProcess("proc_1", "tenant_1", "12345.678901/2024-01", "", ""))

	hits := ix.Search("12345.678901/2024-01", "", 10)
	require.Len(t, hits, 1)
	assert.Equal(t, "proc_1", hits[0].ProcessID)
}

func TestSearchTenantFilter(t *testing.T) {
	ix := NewIndex(common.GetLogger())
	ix.Upsert(newProcess("proc_1", "tenant_1", "12345.678901/2024-01", "Gabinete", ""))
	ix.Upsert(newProcess("proc_2", "tenant_2", "12345.678901/2024-01", "Gabinete", ""))

	hits := ix.Search("gabinete", "tenant_2", 10)
	require.Len(t, hits, 1)
	assert.Equal(t, "proc_2", hits[0].ProcessID)
}

func TestUpsertReplacesAndRemove(t *testing.T) {
	ix := NewIndex(common.GetLogger())
	p := newProcess("proc_1", "tenant_1", "12345.678901/2024-01", "Obras", "ponte velha")
	ix.Upsert(p)

	require.Len(t, ix.Search("ponte", "", 10), 1)

	p.Nickname = "viaduto novo"
	ix.Upsert(p)
	assert.Empty(t, ix.Search("ponte", "", 10))
	assert.Len(t, ix.Search("viaduto", "", 10), 1)

	ix.Remove("proc_1")
	assert.Empty(t, ix.Search("viaduto", "", 10))
}

func TestSearchLimitAndEmptyQuery(t *testing.T) {
	ix := NewIndex(common.GetLogger())
	for i, id := range []string{"proc_1", "proc_2", "proc_3"} {
		num := "12345.678901/2024-0" + string(rune('1'+i))
		ix.Upsert(newProcess(id, "tenant_1", num, "Gabinete", ""))
	}

	assert.Len(t, ix.Search("gabinete", "", 2), 2)
	assert.Empty(t, ix.Search("", "", 10))
	assert.Empty(t, ix.Search("   ", "", 10))
}
