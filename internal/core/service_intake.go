package core

import (
	"context"
	"fmt"
	"profileflow/internal/tabular"
	"profileflow/pkg/domain"
	"strings"
)

// IntakeReport summarises one intake run.
type IntakeReport struct {
	New            int
	IdentityFailed int
	RenderFailed   int
	NotifyFailed   int
	Amendments     AmendmentReport
	Diagnostics    []domain.Diagnostic
}

// Intake appends new raw rows to the processed store with fresh identities,
// notifies each submitter, then applies pending amendments.
func (s *Service) Intake(ctx context.Context) (IntakeReport, error) {
	var rep IntakeReport
	err := s.run(ctx, "intake", func(ctx context.Context) error {
		var err error
		rep, err = s.intake(ctx)
		if err != nil {
			return err
		}
		rep.Amendments, err = s.ApplyAmendments(ctx)
		return err
	})
	return rep, err
}

type preparedProfile struct {
	record domain.Record
	id     string
	key    string
}

func (s *Service) intake(ctx context.Context) (IntakeReport, error) {
	var rep IntakeReport
	raw, err := s.read(ctx, s.stores.Raw, "raw")
	if err != nil {
		return rep, err
	}
	processed, err := s.read(ctx, s.stores.Processed, "processed")
	if err != nil {
		return rep, err
	}
	rep.Diagnostics = append(rep.Diagnostics, s.schema.Validate(domain.RoleRaw, raw.Name, raw.Header)...)
	rep.Diagnostics = append(rep.Diagnostics, s.schema.Validate(domain.RoleProcessed, processed.Name, processed.Header)...)

	detected := DetectNew(s.schema, raw, processed)
	rep.Diagnostics = append(rep.Diagnostics, detected.Diagnostics...)

	ids, keys := existingIdentities(s.schema, processed)
	genderCol := s.schema.Processed.MustColumn(domain.KeyGender)
	idCol := s.schema.Processed.MustColumn(domain.KeyProfileID)
	keyCol := s.schema.Processed.MustColumn(domain.KeyProfileKey)

	var batch []preparedProfile
	for _, row := range detected.Rows {
		rec := PrepareRecord(s.schema, row.Record)
		gender, err := domain.ParseGender(rec.Value(genderCol))
		if err != nil {
			rep.IdentityFailed++
			rep.Diagnostics = append(rep.Diagnostics, domain.Diagnostic{
				Kind: domain.UnknownGender, Table: raw.Name, Column: genderCol, Row: int(row.Ref),
				Detail: err.Error(),
			})
			continue
		}
		id, err := s.ids.ProfileID(gender, ids)
		if err != nil {
			rep.IdentityFailed++
			s.logger.ErrorContext(ctx, "identity assignment failed", "stage", "intake", "row", int(row.Ref), "error", err)
			continue
		}
		key, err := s.ids.ProfileKey(keys)
		if err != nil {
			rep.IdentityFailed++
			s.logger.ErrorContext(ctx, "identity assignment failed", "stage", "intake", "row", int(row.Ref), "profile_id", id, "error", err)
			continue
		}
		rec.Set(idCol, id)
		rec.Set(keyCol, key)
		batch = append(batch, preparedProfile{record: rec, id: id, key: key})
	}

	if len(batch) > 0 {
		header := processed.Header
		if len(header) == 0 {
			header = batch[0].record.Fields()
			if err := s.stores.Processed.WriteHeader(ctx, header); err != nil {
				return rep, fmt.Errorf("write processed header: %w", err)
			}
		}
		rows := make([][]string, len(batch))
		for i, p := range batch {
			rep.Diagnostics = append(rep.Diagnostics, unplacedColumns(processed.Name, header, p)...)
			rows[i] = p.record.Project(header)
		}
		if err := s.stores.Processed.AppendRows(ctx, rows); err != nil {
			return rep, fmt.Errorf("append processed: %w", err)
		}
		rep.New = len(batch)
	}

	nameCol := s.schema.Processed.MustColumn(domain.KeyFullName)
	emailCol := s.schema.Processed.MustColumn(domain.KeyEmail)
	for _, p := range batch {
		log := s.logger.With("stage", "intake", "profile_id", p.id)
		if s.renderer == nil || s.notifier == nil {
			rep.NotifyFailed++
			log.WarnContext(ctx, "skipping welcome message", "error", ErrMissingCollaborator)
			continue
		}
		artifact, err := s.renderer.Render(ctx, s.documentRecord(p.record), p.id)
		if err != nil {
			rep.RenderFailed++
			log.ErrorContext(ctx, "render failed", "error", err)
			continue
		}
		n := domain.Notification{
			Contact:    strings.TrimSpace(p.record.Value(emailCol)),
			Name:       p.record.Value(nameCol),
			ProfileID:  p.id,
			ProfileKey: p.key,
			Artifact:   &artifact,
		}
		if err := s.notifier.NotifyNew(ctx, n); err != nil {
			rep.NotifyFailed++
			log.ErrorContext(ctx, "welcome email failed", "error", err)
			continue
		}
		log.InfoContext(ctx, "sent new profile email")
	}

	s.report(ctx, "intake", rep.Diagnostics)
	s.metrics.Count(ctx, "intake", "new", rep.New)
	s.metrics.Count(ctx, "intake", "identity_failed", rep.IdentityFailed)
	s.metrics.Count(ctx, "intake", "render_failed", rep.RenderFailed)
	s.metrics.Count(ctx, "intake", "notify_failed", rep.NotifyFailed)
	s.logger.InfoContext(ctx, "intake complete", "new", rep.New, "identity_failed", rep.IdentityFailed,
		"render_failed", rep.RenderFailed, "notify_failed", rep.NotifyFailed)
	return rep, nil
}

// unplacedColumns reports record fields that the processed header cannot hold.
func unplacedColumns(table string, header []string, p preparedProfile) []domain.Diagnostic {
	var out []domain.Diagnostic
	for _, f := range p.record.Fields() {
		if tabular.ColumnIndex(header, f) < 0 {
			out = append(out, domain.Diagnostic{
				Kind: domain.SchemaDrift, Table: table, Column: f, ProfileID: p.id,
				Detail: "raw column has no processed column; value not stored",
			})
		}
	}
	return out
}
