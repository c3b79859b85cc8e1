package core

import (
	"context"
	"fmt"
	"html"
	"profileflow/pkg/domain"
	"strings"
)

// PublishReport summarises one publish pass.
type PublishReport struct {
	Selected int
	Posted   int
	Failed   int
}

// Caption builds the HTML caption posted with a profile document.
func Caption(g domain.Gender, profileID, representative string) string {
	who, pronoun := "this sister", "her"
	if g == domain.Male {
		who, pronoun = "this brother", "his"
	}
	if strings.TrimSpace(representative) == "" {
		representative = "Unknown"
	}
	return fmt.Sprintf("<b>Al Rawdha Matrimonial Profile</b>\n\n"+
		"<b>Profile ID:</b> %s\n\n"+
		"<b>If interested in %s contact %s representative:</b> %s\n\n"+
		"<i>May Allah guide you to the right match 💚</i>",
		html.EscapeString(profileID), who, pronoun, html.EscapeString(representative))
}

// Publish posts every publication row with Posted? "No" and Confirm? "Yes",
// female store first, and marks each delivered row Posted? "Yes". Rows are
// sent one at a time; a failure is counted and the pass continues.
func (s *Service) Publish(ctx context.Context) (PublishReport, error) {
	var rep PublishReport
	err := s.run(ctx, "publish", func(ctx context.Context) error {
		var err error
		rep, err = s.publish(ctx)
		return err
	})
	return rep, err
}

func (s *Service) publish(ctx context.Context) (PublishReport, error) {
	var rep PublishReport
	if s.renderer == nil || s.publisher == nil {
		return rep, fmt.Errorf("publish: %w", ErrMissingCollaborator)
	}
	processed, err := s.read(ctx, s.stores.Processed, "processed")
	if err != nil {
		return rep, err
	}
	idCol := s.schema.Processed.MustColumn(domain.KeyProfileID)
	byID := make(map[string]domain.Record, len(processed.Rows))
	for i := range processed.Rows {
		rec := processed.Record(i)
		id := strings.TrimSpace(rec.Value(idCol))
		if _, dup := byID[id]; id != "" && !dup {
			byID[id] = rec
		}
	}
	repCol, hasRep := s.schema.Processed.Column(domain.KeyRepresentative)

	for _, g := range []domain.Gender{domain.Female, domain.Male} {
		store := s.stores.Publication(g)
		role := strings.ToLower(string(g)) + " publication"
		t, err := s.read(ctx, store, role)
		if err != nil {
			return rep, err
		}
		if len(t.Rows) == 0 {
			continue
		}
		if !t.HasColumn(domain.ColumnPosted) || !t.HasColumn(domain.ColumnConfirm) {
			return rep, fmt.Errorf("%s: %w: %s and %s required", role, ErrMissingFlagColumns, domain.ColumnPosted, domain.ColumnConfirm)
		}
		for i, row := range t.Rows {
			pub := t.Record(i)
			posted, explicit := domain.LookupFlag(pub.Value(domain.ColumnPosted))
			if !explicit || posted != domain.No || domain.ParseFlag(pub.Value(domain.ColumnConfirm)) != domain.Yes {
				continue
			}
			rep.Selected++
			id := strings.TrimSpace(pub.Value(idCol))
			log := s.logger.With("stage", "publish", "profile_id", id)
			rec, ok := byID[id]
			if !ok {
				rep.Failed++
				log.ErrorContext(ctx, "publication row has no processed record", "error", domain.NotFoundError{Table: processed.Name, Key: id})
				continue
			}
			artifact, err := s.renderer.Render(ctx, s.documentRecord(rec), id)
			if err != nil {
				rep.Failed++
				log.ErrorContext(ctx, "render failed", "error", err)
				continue
			}
			representative := ""
			if hasRep {
				representative = rec.Value(repCol)
			}
			if err := s.publisher.Publish(ctx, artifact, Caption(g, id, representative)); err != nil {
				rep.Failed++
				log.ErrorContext(ctx, "delivery failed", "error", err)
				continue
			}
			if err := store.UpdateCell(ctx, row.Ref, domain.ColumnPosted, domain.Yes.String()); err != nil {
				rep.Failed++
				log.ErrorContext(ctx, "posted but could not mark row; it will be posted again", "error", err)
				continue
			}
			rep.Posted++
			log.InfoContext(ctx, "profile posted")
		}
	}

	s.metrics.Count(ctx, "publish", "posted", rep.Posted)
	s.metrics.Count(ctx, "publish", "failed", rep.Failed)
	s.logger.InfoContext(ctx, "publish complete", "posted", rep.Posted, "failed", rep.Failed, "total", rep.Selected)
	return rep, nil
}
