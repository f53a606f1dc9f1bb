package scrapers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conectasei/conectasei/internal/common"
	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

type stubPlugin struct {
	version string
	family  string
}

func (p stubPlugin) Version() string { return p.version }
func (p stubPlugin) Family() string  { return p.family }
func (p stubPlugin) DetectVersion(interfaces.Session) (bool, error) {
	return false, nil
}
func (p stubPlugin) Login(interfaces.Session, string, models.Credentials) error { return nil }
func (p stubPlugin) ListProcesses(interfaces.Session) ([]models.ProcessListing, error) {
	return nil, nil
}
func (p stubPlugin) OpenProcess(interfaces.Session, string) error { return nil }
func (p stubPlugin) ClassifyAccess(interfaces.Session) (interfaces.AccessKind, error) {
	return interfaces.AccessKind{}, nil
}
func (p stubPlugin) ExtractAuthority(interfaces.Session) (string, error) { return "", nil }
func (p stubPlugin) ListDocuments(interfaces.Session) (map[string]models.DocumentRecord, error) {
	return nil, nil
}
func (p stubPlugin) DownloadDocument(interfaces.Session, string) (interfaces.DownloadedFile, error) {
	return interfaces.DownloadedFile{}, nil
}

func TestRegisterAndResolveExact(t *testing.T) {
	r := NewRegistry(common.GetLogger())
	require.NoError(t, r.Register(stubPlugin{version: "4.2.0", family: "sei_v4"}))

	plugin, err := r.Resolve("4.2.0")
	require.NoError(t, err)
	assert.Equal(t, "4.2.0", plugin.Version())
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := NewRegistry(common.GetLogger())
	require.NoError(t, r.Register(stubPlugin{version: "4.2.0", family: "sei_v4"}))
	assert.Error(t, r.Register(stubPlugin{version: "4.2.0", family: "sei_v4"}))
}

func TestResolveFamilyFallbackPicksNewest(t *testing.T) {
	r := NewRegistry(common.GetLogger())
	require.NoError(t, r.Register(stubPlugin{version: "4.1.0", family: "sei_v4"}))
	require.NoError(t, r.Register(stubPlugin{version: "4.2.0", family: "sei_v4"}))
	require.NoError(t, r.Register(stubPlugin{version: "4.10.1", family: "sei_v4"}))
	require.NoError(t, r.Register(stubPlugin{version: "5.0.0", family: "sei_v5"}))

	// 4.3.0 has no exact plugin; the newest v4 plugin serves it.
	plugin, err := r.Resolve("4.3.0")
	require.NoError(t, err)
	assert.Equal(t, "4.10.1", plugin.Version())
}

func TestResolveUnknownFamilyFails(t *testing.T) {
	r := NewRegistry(common.GetLogger())
	require.NoError(t, r.Register(stubPlugin{version: "4.2.0", family: "sei_v4"}))

	_, err := r.Resolve("3.1.0")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestVersionsSorted(t *testing.T) {
	r := NewRegistry(common.GetLogger())
	require.NoError(t, r.Register(stubPlugin{version: "4.10.0", family: "sei_v4"}))
	require.NoError(t, r.Register(stubPlugin{version: "4.2.0", family: "sei_v4"}))
	require.NoError(t, r.Register(stubPlugin{version: "5.0.0", family: "sei_v5"}))

	assert.Equal(t, []string{"4.2.0", "4.10.0", "5.0.0"}, r.Versions())
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 0, compareVersions("4.2.0", "4.2.0"))
	assert.Equal(t, -1, compareVersions("4.2.0", "4.10.0"))
	assert.Equal(t, 1, compareVersions("4.2.1", "4.2"))
	assert.Equal(t, 0, compareVersions("4.2", "4.2.0"))
}

func TestFamilyOf(t *testing.T) {
	assert.Equal(t, "sei_v4", familyOf("4.2.0"))
	assert.Equal(t, "sei_v5", familyOf("5.1"))
	assert.Equal(t, "sei_v3", familyOf("3"))
}
