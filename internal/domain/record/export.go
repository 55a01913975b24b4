package record

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/blobstore"
	"github.com/ehr/records/internal/platform/pdf"
	"github.com/ehr/records/internal/platform/validation"
)

// Layout holds the organization settings that shape exported documents.
type Layout struct {
	Geometry     pdf.Geometry
	Location     *time.Location
	DateLayout   string
	Organization string
}

// LayoutFunc resolves the layout for a request.
type LayoutFunc func(ctx context.Context) Layout

func (l Layout) timestamp(t time.Time) string {
	loc := l.Location
	if loc == nil {
		loc = time.UTC
	}
	layout := l.DateLayout
	if layout == "" {
		layout = "2006-01-02"
	}
	return t.In(loc).Format(layout + " 15:04 MST")
}

// ToDocument converts r into a document for the composer.
func ToDocument(r *Record, l Layout) pdf.Document {
	subtitle := []string{r.Kind.Label(), "Status: " + string(r.Status)}
	if l.Organization != "" {
		subtitle = append([]string{l.Organization}, subtitle...)
	}

	doc := pdf.Document{
		Title:    r.Title,
		Subtitle: strings.Join(subtitle, " | "),
	}
	if r.Body != nil {
		doc.Sections = r.Body.Sections()
	}
	for _, s := range r.Signatures {
		doc.Signatures = append(doc.Signatures, pdf.SignatureBlock{
			SignerName:   s.SignerName,
			Role:         string(s.Role),
			Relationship: s.Relationship,
			Image:        s.Image,
			ImageType:    s.ImageType,
			Text:         s.Text,
			SignedAt:     l.timestamp(s.SignedAt),
		})
	}
	return doc
}

var archiveCategories = map[Kind]string{
	KindClientProfile:    blobstore.CategoryClientProfile,
	KindConsentForm:      blobstore.CategoryConsentForm,
	KindDischargeSummary: blobstore.CategoryDischarge,
	KindProgressNote:     blobstore.CategoryProgressNote,
}

// Exporter renders records to PDF and previews, and archives signed records.
type Exporter struct {
	svc    *Service
	layout LayoutFunc
	blobs  blobstore.BlobStore
}

func NewExporter(svc *Service, layout LayoutFunc, blobs blobstore.BlobStore) *Exporter {
	return &Exporter{svc: svc, layout: layout, blobs: blobs}
}

func documents(l Layout, recs []*Record) []pdf.Document {
	docs := make([]pdf.Document, 0, len(recs))
	for _, r := range recs {
		docs = append(docs, ToDocument(r, l))
	}
	return docs
}

// PDF writes the records in ids as one PDF, each starting on a new page.
func (x *Exporter) PDF(ctx context.Context, w io.Writer, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return validation.NewFieldError("ids", "at least one record is required")
	}
	recs, err := x.svc.GetMany(ctx, ids)
	if err != nil {
		return err
	}
	l := x.layout(ctx)
	info := pdf.DocumentInfo{Author: l.Organization, Title: recs[0].Title}
	if len(recs) > 1 {
		info.Title = fmt.Sprintf("%d records", len(recs))
	}
	return pdf.RenderPDF(w, l.Geometry, info, documents(l, recs)...)
}

// Preview returns the draw commands the PDF for id would contain.
func (x *Exporter) Preview(ctx context.Context, id uuid.UUID) ([]pdf.Page, error) {
	r, err := x.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	l := x.layout(ctx)
	return pdf.Preview(l.Geometry, ToDocument(r, l)), nil
}

// Archive stores the signed PDF of r. Storing the same content twice keeps
// a single blob.
func (x *Exporter) Archive(ctx context.Context, r *Record) error {
	if x.blobs == nil {
		return nil
	}
	l := x.layout(ctx)
	var buf bytes.Buffer
	info := pdf.DocumentInfo{Title: r.Title, Author: l.Organization, CreatedAt: r.UpdatedAt}
	if r.SignedAt != nil {
		info.CreatedAt = *r.SignedAt
	}
	if err := pdf.RenderPDF(&buf, l.Geometry, info, ToDocument(r, l)); err != nil {
		return fmt.Errorf("render record %s: %w", r.ID, err)
	}
	_, err := x.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    fmt.Sprintf("%s-%s.pdf", r.Kind, r.ID),
		ContentType: "application/pdf",
		ClientID:    r.ClientID.String(),
		RecordID:    r.ID.String(),
		Category:    archiveCategories[r.Kind],
		CreatedBy:   r.CreatedBy,
	}, &buf)
	if err != nil {
		return fmt.Errorf("archive record %s: %w", r.ID, err)
	}
	return nil
}

// Archived lists the archived PDFs of a record.
func (x *Exporter) Archived(ctx context.Context, id uuid.UUID) ([]*blobstore.BlobMetadata, error) {
	if x.blobs == nil {
		return nil, nil
	}
	items, _, err := x.blobs.List(ctx, blobstore.ListParams{RecordID: id.String(), Limit: 100})
	return items, err
}
