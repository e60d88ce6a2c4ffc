package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
)

type accountFixture struct {
	svc     *AccountService
	uploads *UploadService
	links   *LinkService
	tokens  *TokenService
	users   *memUserStore
	store   *memArtifactStore
}

func newAccountFixture() *accountFixture {
	cfg := testConfig()
	uploadStore := newMemUploadStore()
	linkStore := newMemLinkStore()
	tokenStore := newMemTokenStore()
	userStore := newMemUserStore()
	artifacts := newMemArtifactStore()

	uploadSvc := NewUploadService(uploadStore, userStore, artifacts, cfg)
	return &accountFixture{
		svc:     NewAccountService(userStore, uploadStore, linkStore, tokenStore, uploadSvc, artifacts, cfg),
		uploads: uploadSvc,
		links:   NewLinkService(linkStore, cfg),
		tokens:  NewTokenService(tokenStore, cfg),
		users:   userStore,
		store:   artifacts,
	}
}

func TestEnsureAccount(t *testing.T) {
	owner := uuid.New()

	t.Run("provisions a missing account", func(t *testing.T) {
		fx := newAccountFixture()

		user, err := fx.svc.EnsureAccount(context.Background(), owner, "alice", "alice@example.com")
		if err != nil {
			t.Fatalf("ensure failed: %v", err)
		}
		if user.ID != owner || user.Username != "alice" {
			t.Errorf("wrong provisioned user: %+v", user)
		}
		if user.StreamerMode {
			t.Error("streamer mode should default off")
		}
	})

	t.Run("returns the existing account untouched", func(t *testing.T) {
		fx := newAccountFixture()
		fx.users.add(testUser(owner, true))

		user, err := fx.svc.EnsureAccount(context.Background(), owner, "someone-else", "x@example.com")
		if err != nil {
			t.Fatalf("ensure failed: %v", err)
		}
		if user.Username != "tester" {
			t.Errorf("existing profile overwritten: %s", user.Username)
		}
		if !user.StreamerMode {
			t.Error("existing preference lost")
		}
	})
}

func TestSetStreamerMode(t *testing.T) {
	owner := uuid.New()

	t.Run("flips the preference", func(t *testing.T) {
		fx := newAccountFixture()
		fx.users.add(testUser(owner, false))

		if err := fx.svc.SetStreamerMode(context.Background(), owner, true); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		user, _ := fx.users.GetByID(context.Background(), owner)
		if !user.StreamerMode {
			t.Error("preference not persisted")
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		fx := newAccountFixture()
		err := fx.svc.SetStreamerMode(context.Background(), uuid.New(), true)
		if err == nil {
			t.Fatal("expected error for unknown account")
		}
	})
}

func TestSpaceUsed(t *testing.T) {
	owner := uuid.New()

	t.Run("sums upload sizes", func(t *testing.T) {
		fx := newAccountFixture()
		mustUpload(t, fx.uploads, owner, "a.bin", strings.Repeat("x", 1024))
		mustUpload(t, fx.uploads, owner, "b.bin", strings.Repeat("y", 2048))

		usage, err := fx.svc.SpaceUsed(context.Background(), owner)
		if err != nil {
			t.Fatalf("space lookup failed: %v", err)
		}
		if usage.Bytes != 3072 {
			t.Errorf("expected 3072 bytes, got %d", usage.Bytes)
		}
		if usage.Human != "3.0 KiB" {
			t.Errorf("expected 3.0 KiB, got %q", usage.Human)
		}
	})

	t.Run("decreases after deletion", func(t *testing.T) {
		fx := newAccountFixture()
		mustUpload(t, fx.uploads, owner, "a.bin", strings.Repeat("x", 1024))
		big := mustUpload(t, fx.uploads, owner, "b.bin", strings.Repeat("y", 2048))

		if _, err := fx.uploads.Delete(context.Background(), owner, big.Name+big.Extension); err != nil {
			t.Fatalf("delete failed: %v", err)
		}

		usage, err := fx.svc.SpaceUsed(context.Background(), owner)
		if err != nil {
			t.Fatalf("space lookup failed: %v", err)
		}
		if usage.Bytes != 1024 {
			t.Errorf("expected 1024 bytes, got %d", usage.Bytes)
		}
	})

	t.Run("empty account", func(t *testing.T) {
		fx := newAccountFixture()
		usage, err := fx.svc.SpaceUsed(context.Background(), owner)
		if err != nil {
			t.Fatalf("space lookup failed: %v", err)
		}
		if usage.Bytes != 0 {
			t.Errorf("expected 0 bytes, got %d", usage.Bytes)
		}
	})
}

func readZip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("export is not a valid zip: %v", err)
	}
	out := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("cannot open zip entry %s: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("cannot read zip entry %s: %v", f.Name, err)
		}
		out[f.Name] = content
	}
	return out
}

func TestExport(t *testing.T) {
	owner := uuid.New()

	t.Run("bundles metadata and artifacts", func(t *testing.T) {
		fx := newAccountFixture()
		fx.users.add(testUser(owner, false))

		u1 := mustUpload(t, fx.uploads, owner, "a.txt", "first")
		u2 := mustUpload(t, fx.uploads, owner, "b.txt", "second")
		mustLink(t, fx.links, owner, CreateLinkInput{URL: "https://example.com"})

		var buf bytes.Buffer
		report, err := fx.svc.Export(context.Background(), owner, &buf)
		if err != nil {
			t.Fatalf("export failed: %v", err)
		}
		if report.Uploads != 2 || report.Links != 1 {
			t.Errorf("wrong report: %+v", report)
		}
		if len(report.Missing) != 0 {
			t.Errorf("unexpected missing artifacts: %v", report.Missing)
		}

		entries := readZip(t, buf.Bytes())
		for _, name := range []string{"account.json", "links.json", "uploads.json"} {
			if _, ok := entries[name]; !ok {
				t.Errorf("missing zip entry %s", name)
			}
		}
		if string(entries["uploads/"+u1.Name+u1.Extension]) != "first" {
			t.Error("wrong artifact bytes for first upload")
		}
		if string(entries["uploads/"+u2.Name+u2.Extension]) != "second" {
			t.Error("wrong artifact bytes for second upload")
		}

		var uploadDocs []map[string]any
		if err := json.Unmarshal(entries["uploads.json"], &uploadDocs); err != nil {
			t.Fatalf("uploads.json is not valid JSON: %v", err)
		}
		if len(uploadDocs) != 2 {
			t.Fatalf("expected 2 upload documents, got %d", len(uploadDocs))
		}
		if _, ok := uploadDocs[0]["deleteKey"]; !ok {
			t.Error("upload document missing deleteKey")
		}
	})

	t.Run("skips missing artifacts and reports them", func(t *testing.T) {
		fx := newAccountFixture()
		fx.users.add(testUser(owner, false))

		kept := mustUpload(t, fx.uploads, owner, "a.txt", "kept")
		gone := mustUpload(t, fx.uploads, owner, "b.txt", "gone")
		if err := fx.store.Remove(gone.Name, gone.Extension); err != nil {
			t.Fatalf("setup remove failed: %v", err)
		}

		var buf bytes.Buffer
		report, err := fx.svc.Export(context.Background(), owner, &buf)
		if err != nil {
			t.Fatalf("export failed: %v", err)
		}
		if len(report.Missing) != 1 || report.Missing[0] != gone.Name+gone.Extension {
			t.Errorf("wrong missing list: %v", report.Missing)
		}

		entries := readZip(t, buf.Bytes())
		if _, ok := entries["uploads/"+kept.Name+kept.Extension]; !ok {
			t.Error("surviving artifact missing from bundle")
		}
		if _, ok := entries["uploads/"+gone.Name+gone.Extension]; ok {
			t.Error("missing artifact should not have an entry")
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		fx := newAccountFixture()
		var buf bytes.Buffer
		if _, err := fx.svc.Export(context.Background(), uuid.New(), &buf); err == nil {
			t.Fatal("expected error for unknown account")
		}
	})
}

func TestDeleteAccount(t *testing.T) {
	owner := uuid.New()

	t.Run("cascades through everything owned", func(t *testing.T) {
		fx := newAccountFixture()
		fx.users.add(testUser(owner, false))

		mustUpload(t, fx.uploads, owner, "a.txt", "x")
		mustUpload(t, fx.uploads, owner, "b.txt", "y")
		mustLink(t, fx.links, owner, CreateLinkInput{URL: "https://example.com"})
		if _, err := fx.tokens.Issue(context.Background(), owner, "cli"); err != nil {
			t.Fatalf("token issue failed: %v", err)
		}

		report, err := fx.svc.DeleteAccount(context.Background(), owner)
		if err != nil {
			t.Fatalf("cascade failed: %v", err)
		}
		if report.Tokens != 1 || report.Links != 1 || report.Uploads != 2 {
			t.Errorf("wrong cascade report: %+v", report)
		}
		if fx.store.count() != 0 {
			t.Errorf("artifacts remain after cascade: %d", fx.store.count())
		}
		if _, err := fx.users.GetByID(context.Background(), owner); err == nil {
			t.Error("user record remains after cascade")
		}
	})

	t.Run("safe to retry after the user row is gone", func(t *testing.T) {
		fx := newAccountFixture()
		fx.users.add(testUser(owner, false))

		if _, err := fx.svc.DeleteAccount(context.Background(), owner); err != nil {
			t.Fatalf("first cascade failed: %v", err)
		}
		report, err := fx.svc.DeleteAccount(context.Background(), owner)
		if err != nil {
			t.Fatalf("repeat cascade failed: %v", err)
		}
		if report.Tokens != 0 || report.Links != 0 || report.Uploads != 0 {
			t.Errorf("repeat cascade deleted something: %+v", report)
		}
	})
}
