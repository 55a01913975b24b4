package record

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/domain/signature"
	"github.com/ehr/records/internal/platform/blobstore"
	"github.com/ehr/records/internal/platform/pdf"
)

func testLayout(context.Context) Layout {
	loc, _ := time.LoadLocation("America/New_York")
	return Layout{
		Geometry:     pdf.Letter,
		Location:     loc,
		DateLayout:   "01/02/2006",
		Organization: "Harbor Clinic",
	}
}

func TestToDocument(t *testing.T) {
	r := &Record{
		Kind:   KindConsentForm,
		Title:  "Release of information",
		Status: StatusSigned,
		Body:   ConsentForm{ConsentType: "release", ClientName: "Sam Lee"},
		Signatures: []signature.Signature{
			typed("Sam Lee", signature.RoleClient),
		},
	}

	doc := ToDocument(r, testLayout(context.Background()))
	if doc.Title != "Release of information" {
		t.Errorf("unexpected title %q", doc.Title)
	}
	if doc.Subtitle != "Harbor Clinic | Consent form | Status: signed" {
		t.Errorf("unexpected subtitle %q", doc.Subtitle)
	}
	if len(doc.Sections) == 0 {
		t.Fatal("expected body sections")
	}
	if len(doc.Signatures) != 1 {
		t.Fatalf("expected 1 signature block, got %d", len(doc.Signatures))
	}
	sig := doc.Signatures[0]
	// 14:00 UTC is 10:00 EDT.
	if sig.SignedAt != "06/10/2024 10:00 EDT" {
		t.Errorf("unexpected signed at %q", sig.SignedAt)
	}
	if sig.Role != "client" || sig.Text != "Sam Lee" {
		t.Errorf("unexpected signature block %+v", sig)
	}
}

func TestToDocument_NoOrganization(t *testing.T) {
	r := &Record{Kind: KindProgressNote, Title: "Week 1", Status: StatusDraft, Body: ProgressNote{}}
	doc := ToDocument(r, Layout{})
	if doc.Subtitle != "Progress note | Status: draft" {
		t.Errorf("unexpected subtitle %q", doc.Subtitle)
	}
}

func newTestExporter(t *testing.T) (*Exporter, *Service, *blobstore.InMemoryBlobStore) {
	t.Helper()
	svc, _, _ := newTestService()
	blobs := blobstore.NewInMemoryBlobStore()
	x := NewExporter(svc, testLayout, blobs)
	svc.SetArchiver(x)
	return x, svc, blobs
}

func TestExporter_PDF(t *testing.T) {
	x, svc, _ := newTestExporter(t)
	a := createDischarge(t, svc)
	b := createDischarge(t, svc)

	var buf bytes.Buffer
	if err := x.PDF(context.Background(), &buf, a.ID, b.ID); err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Errorf("output is not a PDF: %q", buf.Bytes()[:min(16, buf.Len())])
	}
}

func TestExporter_PDF_Errors(t *testing.T) {
	x, _, _ := newTestExporter(t)
	var buf bytes.Buffer
	if err := x.PDF(context.Background(), &buf); err == nil {
		t.Error("expected error without ids")
	}
	if err := x.PDF(context.Background(), &buf, uuid.New()); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestExporter_Preview_StartsWithTitle(t *testing.T) {
	x, svc, _ := newTestExporter(t)
	r := createDischarge(t, svc)

	pages, err := x.Preview(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(pages) == 0 {
		t.Fatal("expected at least one page")
	}
	first := pages[0].Ops[0]
	if first.Kind != pdf.OpText || first.Text != "Discharge summary" {
		t.Errorf("expected the title first, got %+v", first)
	}
}

func TestExporter_ArchivesOnSign(t *testing.T) {
	x, svc, blobs := newTestExporter(t)
	r := &Record{Kind: KindProgressNote, ClientID: uuid.New(), Body: ProgressNote{SessionDate: "2024-06-10"}}
	if err := svc.Create(userCtx(), r); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.AppendSignature(userCtx(), r.ID, typed("Dr. Reyes", signature.RoleClinician)); err != nil {
		t.Fatalf("append: %v", err)
	}

	items, err := x.Archived(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("archived: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 archived pdf, got %d", len(items))
	}
	got := items[0]
	if got.ContentType != "application/pdf" || got.Category != blobstore.CategoryProgressNote || got.ClientID != r.ClientID.String() {
		t.Errorf("unexpected metadata %+v", got)
	}

	rc, _, err := blobs.Download(context.Background(), got.ID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer rc.Close()
	head := make([]byte, 5)
	if _, err := rc.Read(head); err != nil || string(head) != "%PDF-" {
		t.Errorf("archived blob is not a PDF: %q, %v", head, err)
	}
}

func TestExporter_ArchiveIsIdempotent(t *testing.T) {
	x, svc, _ := newTestExporter(t)
	r := &Record{Kind: KindProgressNote, ClientID: uuid.New(), Body: ProgressNote{SessionDate: "2024-06-10"}}
	svc.Create(userCtx(), r)
	signed, err := svc.AppendSignature(userCtx(), r.ID, typed("Dr. Reyes", signature.RoleClinician))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := x.Archive(context.Background(), signed); err != nil {
		t.Fatalf("archive again: %v", err)
	}
	items, _ := x.Archived(context.Background(), r.ID)
	if len(items) != 1 {
		t.Errorf("expected archiving the same record twice to keep one blob, got %d", len(items))
	}
}
