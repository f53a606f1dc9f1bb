package interfaces

import (
	"github.com/conectasei/conectasei/internal/models"
)

// LoginSelectors are the CSS selectors driving the login form.
type LoginSelectors struct {
	EmailInput    string
	PasswordInput string
	SubmitButton  string
	ErrorMessage  string
}

// ProcessSelectors locate the process listing and the process view chrome.
type ProcessSelectors struct {
	ProcessTable   string
	ProcessRow     string
	ProcessLink    string
	Breadcrumb     string
	AuthorityLabel string
	UnitColumn     string
}

// DocumentSelectors locate the document tree inside an open process.
type DocumentSelectors struct {
	DocumentTable string
	DocumentRow   string
	DocumentLink  string
	SignerColumn  string
	DateColumn    string
	TypeColumn    string
}

// AccessKind is the outcome of classifying an open process page.
type AccessKind struct {
	Access models.AccessType
	// Detail carries the raw breadcrumb text the classification came from.
	Detail string
}

// DownloadedFile describes one file captured from the browser session.
type DownloadedFile struct {
	Path string
	// SuggestedName is the filename the upstream offered, e.g. "12345678.pdf".
	SuggestedName string
	// RenderedFromHTML is true when the upstream served an HTML view that
	// was printed to PDF instead of a native file download.
	RenderedFromHTML bool
}

// ScraperPlugin adapts one upstream portal version to the extraction
// pipeline. Implementations are stateless; all page state lives in the
// Session passed to each call.
type ScraperPlugin interface {
	// Version is the exact upstream version string, e.g. "4.2.0".
	Version() string
	// Family is the major line the plugin belongs to, e.g. "sei_v4".
	Family() string

	// DetectVersion reports whether the page currently loaded in the
	// session matches this plugin's upstream version.
	DetectVersion(session Session) (bool, error)

	// Login authenticates the session against the upstream portal.
	// Returns models.ErrAuth (wrapped) on rejected credentials.
	Login(session Session, baseURL string, creds models.Credentials) error

	// ListProcesses enumerates every process visible to the account.
	ListProcesses(session Session) ([]models.ProcessListing, error)

	// OpenProcess navigates to a process by link ID. Returns
	// models.ErrNavigation (wrapped) when the link is dead.
	OpenProcess(session Session, linkID string) error

	// ClassifyAccess inspects the open process page and reports whether
	// the account sees the full record or a restricted subset.
	ClassifyAccess(session Session) (AccessKind, error)

	// ExtractAuthority reads the responsible authority from the open
	// process page. Empty string when the page does not show one.
	ExtractAuthority(session Session) (string, error)

	// ListDocuments enumerates the document rows of the open process,
	// keyed by document number.
	ListDocuments(session Session) (map[string]models.DocumentRecord, error)

	// DownloadDocument fetches one document from the open process into
	// the session's temp dir.
	DownloadDocument(session Session, documentNumber string) (DownloadedFile, error)
}

// PluginRegistry resolves scraper plugins by upstream version.
type PluginRegistry interface {
	Register(plugin ScraperPlugin) error
	// Resolve returns the plugin for the exact version, falling back to
	// the newest plugin of the same family when no exact match exists.
	Resolve(version string) (ScraperPlugin, error)
	Versions() []string
}
