package core

import (
	"context"
	"fmt"
	"profileflow/internal/tabular"
	"profileflow/pkg/domain"
	"strings"
)

// AmendmentReport summarises one amendment pass.
type AmendmentReport struct {
	Pending      int
	Complete     int
	Failed       int // authentication failures
	Skipped      int // rows without a Profile ID, left pending
	WriteFailed  int // store writes that failed, row left pending
	NotifyFailed int
	Diagnostics  []domain.Diagnostic
}

type processedEntry struct {
	ref    tabular.RowRef
	record domain.Record
}

// ApplyAmendments merges every pending amendment row into its processed
// record. Each row is handled independently; failures are counted and the
// pass continues.
func (s *Service) ApplyAmendments(ctx context.Context) (AmendmentReport, error) {
	var rep AmendmentReport
	err := s.run(ctx, "amend", func(ctx context.Context) error {
		var err error
		rep, err = s.applyAmendments(ctx)
		return err
	})
	return rep, err
}

func (s *Service) applyAmendments(ctx context.Context) (AmendmentReport, error) {
	var rep AmendmentReport
	if s.stores.Amendment == nil {
		return rep, fmt.Errorf("amendment store: %w", ErrMissingCollaborator)
	}
	amendments, err := s.read(ctx, s.stores.Amendment, "amendment")
	if err != nil {
		return rep, err
	}
	if len(amendments.Header) == 0 {
		return rep, nil
	}
	if !amendments.HasColumn(domain.ColumnAmendmentStatus) {
		if err := s.stores.Amendment.EnsureColumn(ctx, domain.ColumnAmendmentStatus); err != nil {
			return rep, fmt.Errorf("ensure %s: %w", domain.ColumnAmendmentStatus, err)
		}
		amendments.Header = append(amendments.Header, domain.ColumnAmendmentStatus)
	}
	processed, err := s.read(ctx, s.stores.Processed, "processed")
	if err != nil {
		return rep, err
	}
	rep.Diagnostics = append(rep.Diagnostics, s.schema.Validate(domain.RoleAmendment, amendments.Name, amendments.Header)...)

	idCol := s.schema.Processed.MustColumn(domain.KeyProfileID)
	keyCol := s.schema.Processed.MustColumn(domain.KeyProfileKey)
	index := make(map[[2]string]*processedEntry, len(processed.Rows))
	for i, row := range processed.Rows {
		rec := processed.Record(i)
		k := [2]string{NormalizeProfileID(rec.Value(idCol)), NormalizeProfileKey(rec.Value(keyCol))}
		if _, dup := index[k]; !dup {
			index[k] = &processedEntry{ref: row.Ref, record: rec}
		}
	}

	amIDCol := s.schema.Amendment.MustColumn(domain.KeyProfileID)
	amKeyCol := s.schema.Amendment.MustColumn(domain.KeyProfileKey)
	for i, row := range amendments.Rows {
		am := amendments.Record(i)
		if !domain.Pending(am.Value(domain.ColumnAmendmentStatus)) {
			continue
		}
		rep.Pending++
		id := NormalizeProfileID(am.Value(amIDCol))
		key := NormalizeProfileKey(am.Value(amKeyCol))
		if id == "" {
			rep.Skipped++
			continue
		}
		entry, ok := index[[2]string{id, key}]
		if !ok {
			s.rejectAmendment(ctx, &rep, row.Ref, am, id, key)
			continue
		}
		s.mergeAmendment(ctx, &rep, amendments.Name, row.Ref, am, entry)
	}

	s.report(ctx, "amend", rep.Diagnostics)
	s.metrics.Count(ctx, "amend", "complete", rep.Complete)
	s.metrics.Count(ctx, "amend", "auth_failed", rep.Failed)
	s.metrics.Count(ctx, "amend", "skipped", rep.Skipped)
	s.metrics.Count(ctx, "amend", "write_failed", rep.WriteFailed)
	s.metrics.Count(ctx, "amend", "notify_failed", rep.NotifyFailed)
	s.logger.InfoContext(ctx, "amendments complete", "pending", rep.Pending, "complete", rep.Complete,
		"failed", rep.Failed, "skipped", rep.Skipped, "write_failed", rep.WriteFailed)
	return rep, nil
}

func (s *Service) rejectAmendment(ctx context.Context, rep *AmendmentReport, ref tabular.RowRef, am domain.Record, id, key string) {
	log := s.logger.With("stage", "amend", "profile_id", id)
	if err := s.stores.Amendment.UpdateCell(ctx, ref, domain.ColumnAmendmentStatus, string(domain.StatusFailed)); err != nil {
		rep.WriteFailed++
		log.ErrorContext(ctx, "mark amendment failed", "error", err)
		return
	}
	rep.Failed++
	log.WarnContext(ctx, "amendment rejected", "error", domain.ErrAuthentication)
	if s.notifier == nil {
		rep.NotifyFailed++
		return
	}
	n := domain.Notification{
		Contact:    strings.TrimSpace(am.Value(s.schema.Amendment.MustColumn(domain.KeyEmail))),
		Name:       am.Value(s.schema.Amendment.MustColumn(domain.KeyFullName)),
		ProfileID:  id,
		ProfileKey: key,
	}
	if err := s.notifier.NotifyError(ctx, n); err != nil {
		rep.NotifyFailed++
		log.ErrorContext(ctx, "error email failed", "error", err)
	}
}

func (s *Service) mergeAmendment(ctx context.Context, rep *AmendmentReport, table string, ref tabular.RowRef, am domain.Record, entry *processedEntry) {
	id := NormalizeProfileID(entry.record.Value(s.schema.Processed.MustColumn(domain.KeyProfileID)))
	log := s.logger.With("stage", "amend", "profile_id", id)
	plan := PlanAmendment(s.schema, entry.record, am, table)
	rep.Diagnostics = append(rep.Diagnostics, plan.Diagnostics...)

	writes := plan.Changes(entry.record)
	if plan.AmendedTimestamp != "" {
		writes = append(writes, CellUpdate{Column: s.schema.Processed.MustColumn(domain.KeyAmendedTimestamp), Value: plan.AmendedTimestamp})
	}
	for _, w := range writes {
		if err := s.stores.Processed.UpdateCell(ctx, entry.ref, w.Column, w.Value); err != nil {
			rep.WriteFailed++
			log.ErrorContext(ctx, "amendment write failed; row left pending", "column", w.Column, "error", err)
			return
		}
	}
	previous := entry.record
	entry.record = plan.Apply(entry.record, s.schema)
	if err := s.stores.Amendment.UpdateCell(ctx, ref, domain.ColumnAmendmentStatus, string(domain.StatusComplete)); err != nil {
		rep.WriteFailed++
		log.ErrorContext(ctx, "mark amendment complete", "error", err)
		return
	}
	rep.Complete++
	log.InfoContext(ctx, "amendment applied", "style", plan.Style.String(), "fields", len(writes))

	if s.renderer == nil || s.notifier == nil {
		rep.NotifyFailed++
		return
	}
	artifact, err := s.renderer.Render(ctx, s.documentRecord(entry.record), id)
	if err != nil {
		rep.NotifyFailed++
		log.ErrorContext(ctx, "render failed", "error", err)
		return
	}
	n := domain.Notification{
		Contact:    amendmentContact(s.schema, entry.record, am, previous),
		Name:       entry.record.Value(s.schema.Processed.MustColumn(domain.KeyFullName)),
		ProfileID:  id,
		ProfileKey: entry.record.Value(s.schema.Processed.MustColumn(domain.KeyProfileKey)),
		Artifact:   &artifact,
	}
	if err := s.notifier.NotifyAmended(ctx, n); err != nil {
		rep.NotifyFailed++
		log.ErrorContext(ctx, "amendment email failed", "error", err)
	}
}

// amendmentContact picks the address for the amendment confirmation: the
// merged record's Email, then the address on the amendment row, then the
// Email the record held before a replace blanked it.
func amendmentContact(schema domain.Schema, merged, am, previous domain.Record) string {
	emailCol := schema.Processed.MustColumn(domain.KeyEmail)
	if v := strings.TrimSpace(merged.Value(emailCol)); v != "" {
		return v
	}
	if col, ok := schema.Amendment.Column(domain.KeyEmail); ok {
		if v := strings.TrimSpace(am.Value(col)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(previous.Value(emailCol))
}
