package storage

import (
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that the migrations create the expected indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_jobs_status_run_after", "idx_drafts_created"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.LoadDocument("inv"); err != ErrNotFound {
		t.Fatalf("LoadDocument on empty store error = %v, want ErrNotFound", err)
	}

	if err := s.SaveDocument("inv", []byte(`{"version":1}`)); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	if err := s.SaveDocument("inv", []byte(`{"version":1,"items":[]}`)); err != nil {
		t.Fatalf("SaveDocument overwrite: %v", err)
	}

	got, err := s.LoadDocument("inv")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if string(got) != `{"version":1,"items":[]}` {
		t.Errorf("LoadDocument = %s", got)
	}
}

func TestDocumentSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.SaveDocument("inv", []byte("[]")); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.LoadDocument("inv")
	if err != nil || string(got) != "[]" {
		t.Errorf("LoadDocument after reopen = %q, %v", got, err)
	}
}

func TestImageRoundTrip(t *testing.T) {
	s := openTestStore(t)

	data := []byte{0xff, 0xd8, 0xff, 0x00, 0x01}
	if err := s.SaveImage(Image{ID: "img-1", MIME: "image/jpeg", Data: data}); err != nil {
		t.Fatalf("SaveImage: %v", err)
	}

	got, err := s.GetImage("img-1")
	if err != nil {
		t.Fatalf("GetImage: %v", err)
	}
	if got.MIME != "image/jpeg" || string(got.Data) != string(data) || got.CreatedAt.IsZero() {
		t.Errorf("GetImage = %+v", got)
	}

	if err := s.DeleteImage("img-1"); err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	if _, err := s.GetImage("img-1"); err != ErrNotFound {
		t.Errorf("GetImage after delete error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteImage("img-1"); err != ErrNotFound {
		t.Errorf("second DeleteImage error = %v, want ErrNotFound", err)
	}
}

func TestCreateDraftEnqueuesJob(t *testing.T) {
	s := openTestStore(t)

	err := s.CreateDraft(
		Draft{ID: "d-1", Note: "red cover", ImageID: "img-1"},
		Job{ID: "j-1", Type: "extract_item", PayloadJSON: `{"draft_id":"d-1"}`},
	)
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}

	d, err := s.GetDraft("d-1")
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if d.Status != DraftPending || d.Note != "red cover" || d.ImageID != "img-1" || d.ItemJSON != "" || d.Error != "" {
		t.Errorf("GetDraft = %+v", d)
	}

	job, err := s.ClaimNextJob([]string{"extract_item"})
	if err != nil || job == nil {
		t.Fatalf("ClaimNextJob = %v, %v", job, err)
	}
	if job.ID != "j-1" {
		t.Errorf("job ID = %q, want j-1", job.ID)
	}
}

func TestCreateDraftRollsBackOnJobConflict(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-dup", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	err := s.CreateDraft(Draft{ID: "d-2", ImageID: "img"}, Job{ID: "j-dup", Type: "x", PayloadJSON: `{}`})
	if err == nil {
		t.Fatal("CreateDraft with duplicate job id succeeded")
	}
	if _, err := s.GetDraft("d-2"); err != ErrNotFound {
		t.Errorf("draft persisted despite failed job insert: %v", err)
	}
}

func TestDraftTransitions(t *testing.T) {
	s := openTestStore(t)

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("d-%d", i)
		if err := s.CreateDraft(Draft{ID: id, ImageID: "img-" + id}, Job{ID: "j-" + id, Type: "x", PayloadJSON: `{}`}); err != nil {
			t.Fatalf("CreateDraft %s: %v", id, err)
		}
	}

	if err := s.MarkDraftReady("d-1", `{"name":"Lamp"}`); err != nil {
		t.Fatalf("MarkDraftReady: %v", err)
	}
	if err := s.MarkDraftFailed("d-2", "model response is not valid JSON"); err != nil {
		t.Fatalf("MarkDraftFailed: %v", err)
	}
	if err := s.MarkDraftReady("missing", "{}"); err != ErrNotFound {
		t.Errorf("MarkDraftReady unknown id error = %v, want ErrNotFound", err)
	}

	drafts, err := s.ListDrafts()
	if err != nil {
		t.Fatalf("ListDrafts: %v", err)
	}
	if len(drafts) != 3 {
		t.Fatalf("ListDrafts returned %d drafts, want 3", len(drafts))
	}
	byID := map[string]Draft{}
	for _, d := range drafts {
		byID[d.ID] = d
	}
	if d := byID["d-1"]; d.Status != DraftReady || d.ItemJSON != `{"name":"Lamp"}` {
		t.Errorf("d-1 = %+v", d)
	}
	if d := byID["d-2"]; d.Status != DraftFailed || d.Error != "model response is not valid JSON" {
		t.Errorf("d-2 = %+v", d)
	}
	if d := byID["d-3"]; d.Status != DraftPending {
		t.Errorf("d-3 = %+v", d)
	}

	if err := s.DeleteDraft("d-1"); err != nil {
		t.Fatalf("DeleteDraft: %v", err)
	}
	if err := s.DeleteDraft("d-1"); err != ErrNotFound {
		t.Errorf("second DeleteDraft error = %v, want ErrNotFound", err)
	}
}

func TestJobsTableExists(t *testing.T) {
	s := openTestStore(t)

	_, err := s.db.Exec(`INSERT INTO jobs (id, type, payload_json) VALUES ('j1', 'extract_item', '{"image_id":"i1"}')`)
	if err != nil {
		t.Fatalf("INSERT into jobs: %v", err)
	}

	var id, typ, payload, status string
	var attempts, maxAttempts int
	err = s.db.QueryRow(`SELECT id, type, payload_json, status, attempts, max_attempts FROM jobs WHERE id = 'j1'`).
		Scan(&id, &typ, &payload, &status, &attempts, &maxAttempts)
	if err != nil {
		t.Fatalf("SELECT from jobs: %v", err)
	}

	if id != "j1" {
		t.Errorf("id = %q, want %q", id, "j1")
	}
	if typ != "extract_item" {
		t.Errorf("type = %q, want %q", typ, "extract_item")
	}
	if payload != `{"image_id":"i1"}` {
		t.Errorf("payload_json = %q, want %q", payload, `{"image_id":"i1"}`)
	}
	if status != "pending" {
		t.Errorf("status = %q, want %q", status, "pending")
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, want 0", attempts)
	}
	if maxAttempts != 3 {
		t.Errorf("max_attempts = %d, want 3", maxAttempts)
	}
}

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)

	job := Job{
		ID:          "j-claim-1",
		Type:        "extract_item",
		PayloadJSON: `{"image_id":"i1","note":"blue"}`,
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"extract_item"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-claim-1" {
		t.Errorf("ID = %q, want %q", got.ID, "j-claim-1")
	}
	if got.Type != "extract_item" {
		t.Errorf("Type = %q, want %q", got.Type, "extract_item")
	}
	if got.PayloadJSON != `{"image_id":"i1","note":"blue"}` {
		t.Errorf("PayloadJSON = %q, want %q", got.PayloadJSON, `{"image_id":"i1","note":"blue"}`)
	}
	if got.Status != "running" {
		t.Errorf("Status = %q, want %q", got.Status, "running")
	}
	if got.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", got.MaxAttempts)
	}
}

func TestClaimNextJob_Empty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ClaimNextJob([]string{"extract_item"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestClaimNextJob_RespectRunAfter(t *testing.T) {
	s := openTestStore(t)

	job := Job{
		ID:          "j-future",
		Type:        "extract_item",
		PayloadJSON: `{}`,
		RunAfter:    time.Now().UTC().Add(1 * time.Hour),
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"extract_item"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for future run_after, got %+v", got)
	}
}

func TestClaimNextJob_TypeFilter(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-a", Type: "a", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob a: %v", err)
	}
	if err := s.EnqueueJob(Job{ID: "j-b", Type: "b", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob b: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"a"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.Type != "a" {
		t.Errorf("Type = %q, want %q", got.Type, "a")
	}
}

func TestClaimNextJob_SkipsRunning(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-first", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob first: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob first: %v", err)
	}

	if err := s.EnqueueJob(Job{ID: "j-second", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob second: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"x"})
	if err != nil {
		t.Fatalf("ClaimNextJob second: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-second" {
		t.Errorf("ID = %q, want %q", got.ID, "j-second")
	}
}

func TestRequeueRunningJobs(t *testing.T) {
	s := openTestStore(t)

	for _, j := range []Job{
		{ID: "j-running", Type: "x", PayloadJSON: `{}`},
		{ID: "j-other", Type: "y", PayloadJSON: `{}`},
	} {
		if err := s.EnqueueJob(j); err != nil {
			t.Fatalf("EnqueueJob %s: %v", j.ID, err)
		}
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob x: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"y"}); err != nil {
		t.Fatalf("ClaimNextJob y: %v", err)
	}

	n, err := s.RequeueRunningJobs([]string{"x"})
	if err != nil {
		t.Fatalf("RequeueRunningJobs: %v", err)
	}
	if n != 1 {
		t.Errorf("requeued %d jobs, want 1", n)
	}

	got, err := s.ClaimNextJob([]string{"x", "y"})
	if err != nil {
		t.Fatalf("ClaimNextJob after requeue: %v", err)
	}
	if got == nil || got.ID != "j-running" {
		t.Fatalf("claimed %+v, want j-running", got)
	}
	if got.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", got.Attempts)
	}

	if n, err := s.RequeueRunningJobs(nil); err != nil || n != 0 {
		t.Errorf("RequeueRunningJobs(nil) = %d, %v", n, err)
	}
}

func TestCompleteJob(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-complete", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.CompleteJob("j-complete"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	var status string
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = 'j-complete'`).Scan(&status); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if status != "completed" {
		t.Errorf("status = %q, want %q", status, "completed")
	}
}

func TestFailJob_IncrementsAttempts(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-fail-inc", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if failed, err := s.FailJob("j-fail-inc", "something broke", false); err != nil || failed {
		t.Fatalf("FailJob = %v, %v; want retry scheduled", failed, err)
	}

	var status, lastError string
	var attempts int
	if err := s.db.QueryRow(`SELECT status, attempts, last_error FROM jobs WHERE id = 'j-fail-inc'`).Scan(&status, &attempts, &lastError); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if status != "pending" {
		t.Errorf("status = %q, want %q", status, "pending")
	}
	if lastError != "something broke" {
		t.Errorf("last_error = %q, want %q", lastError, "something broke")
	}
}

func TestFailJob_MaxAttemptsReached(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-fail-max", Type: "x", PayloadJSON: `{}`, MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if failed, err := s.FailJob("j-fail-max", "fatal", false); err != nil || !failed {
		t.Fatalf("FailJob = %v, %v; want failed", failed, err)
	}

	var status string
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = 'j-fail-max'`).Scan(&status); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if status != "failed" {
		t.Errorf("status = %q, want %q", status, "failed")
	}
}

func TestFailJob_SetsBackoff(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-backoff", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}

	before := time.Now().UTC()
	if _, err := s.FailJob("j-backoff", "retry", false); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	var runAfterStr string
	if err := s.db.QueryRow(`SELECT run_after FROM jobs WHERE id = 'j-backoff'`).Scan(&runAfterStr); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	runAfter, err := time.Parse(time.RFC3339, runAfterStr)
	if err != nil {
		t.Fatalf("parsing run_after: %v", err)
	}
	if !runAfter.After(before) {
		t.Errorf("run_after %v should be after %v", runAfter, before)
	}
}

func TestFailJob_Permanent(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-perm", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	failed, err := s.FailJob("j-perm", "gemini API key not configured", true)
	if err != nil || !failed {
		t.Fatalf("FailJob = %v, %v; want failed on first attempt", failed, err)
	}

	var status string
	var attempts int
	if err := s.db.QueryRow(`SELECT status, attempts FROM jobs WHERE id = 'j-perm'`).Scan(&status, &attempts); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if status != "failed" || attempts != 1 {
		t.Errorf("status = %q attempts = %d, want failed/1", status, attempts)
	}

	if _, err := s.FailJob("missing", "x", false); err != ErrNotFound {
		t.Errorf("FailJob unknown id error = %v, want ErrNotFound", err)
	}
}
