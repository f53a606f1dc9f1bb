package extractor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/conectasei/conectasei/internal/common"
	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

// visitProcess is phase two for one process: walk the candidate links,
// classify access, refresh authority and documents, persist. A per-process
// failure lands in the run summary, never in the task status.
func (s *Service) visitProcess(ctx context.Context, tenant *models.Tenant, plugin interfaces.ScraperPlugin, creds models.Credentials, proc *models.Process, discoveredLinks []string, stats *runStats) {
	defer func() {
		if r := recover(); r != nil {
			crashPath := common.WriteCrashFile(r, string(debug.Stack()))
			s.logger.Error().
				Str("process_number", proc.ProcessNumber).
				Str("crash_file", crashPath).
				Msg("Process worker panicked")
			stats.fail()
		}
	}()

	if err := s.updateProcess(ctx, tenant, plugin, creds, proc, discoveredLinks, stats); err != nil {
		s.logger.Warn().
			Err(err).
			Str("tenant_id", tenant.ID).
			Str("process_number", proc.ProcessNumber).
			Msg("Process update failed")
		stats.fail()
	}
}

func (s *Service) updateProcess(ctx context.Context, tenant *models.Tenant, plugin interfaces.ScraperPlugin, creds models.Credentials, proc *models.Process, discoveredLinks []string, stats *runStats) error {
	session, err := s.acquire(ctx, tenant, creds, plugin)
	if err != nil {
		return err
	}
	defer session.Release()

	now := time.Now()
	for _, linkID := range discoveredLinks {
		proc.RegisterLink(linkID)
	}

	// Walk the candidates recording every check. A partial link does not
	// end the walk: a later link may grant integral access and becomes the
	// best link when it does.
	opened := ""
	best := ""
	bestAccess := models.AccessError

	for _, linkID := range proc.CandidateLinks(discoveredLinks...) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := s.openWithRetry(session, plugin, linkID); err != nil {
			proc.MarkLinkInactive(linkID, now)
			continue
		}

		kind, err := plugin.ClassifyAccess(session)
		if err != nil || kind.Access == models.AccessError {
			proc.MarkLinkInactive(linkID, now)
			continue
		}

		proc.RecordLinkCheck(linkID, kind.Access, now)
		opened = linkID
		if best == "" || kind.Access == models.AccessIntegral {
			best = linkID
			bestAccess = kind.Access
		}
		if kind.Access == models.AccessIntegral {
			break
		}
	}

	if opened == "" {
		// Every link is dead. The process stays on record with its
		// history; only the bookkeeping moves.
		proc.AccessType = models.AccessError
		proc.Touch(now)
		if err := s.persist(ctx, proc, stats); err != nil {
			return err
		}
		s.logger.Debug().
			Str("process_number", proc.ProcessNumber).
			Msg("No valid links for process")
		return nil
	}

	proc.ApplyAccess(bestAccess)
	proc.BestCurrentLink = best

	// The tab may still show a weaker link checked after the best one.
	if opened != best {
		if err := s.openWithRetry(session, plugin, best); err != nil {
			return fmt.Errorf("%w: reopening %s: %v", models.ErrNavigation, best, err)
		}
	}

	if proc.Authority == "" {
		if authority, err := plugin.ExtractAuthority(session); err == nil && authority != "" {
			proc.Authority = authority
		}
	}

	if proc.ShouldExtractDocuments() {
		extracted, err := plugin.ListDocuments(session)
		if err != nil {
			// Link state is already recorded; keep it and surface the
			// document failure.
			proc.Touch(now)
			if perr := s.persist(ctx, proc, stats); perr != nil {
				return perr
			}
			return fmt.Errorf("%w: listing documents: %v", models.ErrPlugin, err)
		}

		delta := proc.NewDocumentDelta(extracted)
		proc.MergeDocuments(extracted, now)
		if len(delta) > 0 {
			stats.addNewDocuments(proc.ProcessNumber, delta, extracted)
		}
	}

	if proc.AccessType == models.AccessPartial && proc.CategoryStatus == models.CategoryPending {
		stats.addPending(proc.ProcessNumber)
	}

	proc.Touch(now)
	return s.persist(ctx, proc, stats)
}

// openWithRetry opens a process link, retrying one navigation fault.
func (s *Service) openWithRetry(session interfaces.Session, plugin interfaces.ScraperPlugin, linkID string) error {
	err := plugin.OpenProcess(session, linkID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNavigation) {
		return err
	}
	return plugin.OpenProcess(session, linkID)
}

func (s *Service) persist(ctx context.Context, proc *models.Process, stats *runStats) error {
	if err := s.storage.Processes().Upsert(ctx, proc); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if s.index != nil {
		s.index.Upsert(proc)
	}
	stats.updated()
	return nil
}

func (st *runStats) fail() {
	st.mu.Lock()
	st.summary.Failures++
	st.mu.Unlock()
}

func (st *runStats) updated() {
	st.mu.Lock()
	st.summary.UpdatedProcesses++
	st.mu.Unlock()
}

func (st *runStats) addPending(processNumber string) {
	st.mu.Lock()
	st.pendingCategorization = append(st.pendingCategorization, processNumber)
	st.mu.Unlock()
}

func (st *runStats) addNewDocuments(processNumber string, delta []string, extracted map[string]models.DocumentRecord) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.summary.NewDocuments += len(delta)
	for _, num := range delta {
		signer := extracted[num].Signer
		st.newDocsBySigner[signer] = append(st.newDocsBySigner[signer],
			processNumber+"/"+num)
	}
}
