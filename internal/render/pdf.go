// Package render turns processed profile records into PDF documents and
// stores every rendering in the artifact store.
package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"profileflow/internal/blob"
	"profileflow/pkg/domain"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
)

// ContentType of rendered documents.
const ContentType = "application/pdf"

const footer = "This profile is shared anonymously with the Al Rawdha community for matchmaking.\n" +
	"If you wish to amend your profile, use the Profile ID and Profile Key from your email."

// Renderer lays out a record as a single PDF and writes it to a blob store
// under profiles/<id>/<run id>.pdf. Run ids are UUIDv7 so keys sort in
// rendering order.
type Renderer struct {
	store    blob.Store
	localDir string
	keep     int
	compress bool
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLocalDir also writes the latest rendering of each profile to
// dir/profile_<id>.pdf, for mail attachments and manual inspection.
func WithLocalDir(dir string) Option { return func(r *Renderer) { r.localDir = dir } }

// WithRetention keeps only the newest n renderings per profile. Zero keeps all.
func WithRetention(n int) Option { return func(r *Renderer) { r.keep = n } }

// WithLogger sets the logger used for retention failures.
func WithLogger(l *slog.Logger) Option { return func(r *Renderer) { r.logger = l } }

// WithClock overrides the document creation time source.
func WithClock(now func() time.Time) Option { return func(r *Renderer) { r.now = now } }

// New returns a Renderer writing to store.
func New(store blob.Store, opts ...Option) *Renderer {
	r := &Renderer{store: store, compress: true, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render builds the document for rec, stores it and returns the artifact.
func (r *Renderer) Render(ctx context.Context, rec domain.Record, id string) (domain.Artifact, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Artifact{}, fmt.Errorf("render: empty profile id")
	}
	data, err := r.document(rec, id)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("render %s: %w", id, err)
	}
	runID, err := uuid.NewV7()
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("render %s: run id: %w", id, err)
	}
	key := fmt.Sprintf("%s%s.pdf", prefix(id), runID)
	info, err := r.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: ContentType,
		Metadata:    map[string]string{"profile_id": id},
	})
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("store %s: %w", key, err)
	}
	a := domain.Artifact{
		Key:         info.Key,
		Name:        "profile_" + id + ".pdf",
		ContentType: ContentType,
		Size:        int64(len(data)),
		Data:        data,
	}
	if r.localDir != "" {
		a.Path = filepath.Join(r.localDir, a.Name)
		if err := os.MkdirAll(r.localDir, 0o750); err != nil {
			return domain.Artifact{}, fmt.Errorf("local copy: %w", err)
		}
		if err := os.WriteFile(a.Path, data, 0o600); err != nil {
			return domain.Artifact{}, fmt.Errorf("local copy: %w", err)
		}
	}
	if r.keep > 0 {
		if err := r.prune(ctx, id); err != nil {
			r.logger.WarnContext(ctx, "prune renderings", "profile_id", id, "error", err)
		}
	}
	return a, nil
}

func prefix(id string) string { return "profiles/" + id + "/" }

// prune deletes all but the newest r.keep renderings of id.
func (r *Renderer) prune(ctx context.Context, id string) error {
	infos, err := r.store.List(ctx, prefix(id))
	if err != nil {
		return err
	}
	for i := 0; i < len(infos)-r.keep; i++ {
		if _, err := r.store.Delete(ctx, infos[i].Key); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) document(rec domain.Record, id string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetCreationDate(r.now())
	pdf.SetTitle("Profile "+id, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 15, tr("Profile ID: "+id), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	for _, field := range rec.Fields() {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(50, 10, tr(field+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		pdf.MultiCell(0, 10, tr(rec.Value(field)), "", "L", false)
		pdf.Ln(2)
	}

	pdf.Ln(5)
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.5)
	y := pdf.GetY()
	pdf.Line(10, y, 200, y)
	pdf.Ln(5)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, tr(footer), "", "C", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
