package models

import "errors"

// Pipeline error taxonomy. Workers classify failures with errors.Is so that
// per-process faults stay inside the run summary while run-level faults
// terminate the task.
var (
	// ErrAuth means bad credentials or an expired session. One re-login is
	// attempted; a second failure is fatal to the run.
	ErrAuth = errors.New("authentication failed")

	// ErrNavigation covers network faults, timeouts and unexpected pages.
	// Retried once per process, then the attempted link is marked inactive.
	ErrNavigation = errors.New("navigation failed")

	// ErrPlugin means a selector missed or the classifier was confused.
	// Fatal to that one process only.
	ErrPlugin = errors.New("scraper plugin failed")

	// ErrStorage is an object-store upload failure. The document keeps its
	// download and is recorded as partial.
	ErrStorage = errors.New("object store failed")

	// ErrPersistence is a database commit failure. Fatal to that one process.
	ErrPersistence = errors.New("persistence failed")

	// ErrConfig covers missing tenant, missing scraper version or missing
	// encryption key. Fatal to the run.
	ErrConfig = errors.New("configuration error")
)
