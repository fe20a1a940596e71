package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/mozoqr/waiterpush/internal/domain"
)

type memBlobs struct {
	objects map[string][]byte
	putErr  error
	hide    bool
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, _ := io.ReadAll(data)
	m.objects[path] = b
	return nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	if m.hide {
		return false, nil
	}
	_, ok := m.objects[path]
	return ok, nil
}

type memDeliveries struct {
	recs []domain.DeliveryRecord
}

func (m *memDeliveries) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.DeliveryRecord, error) {
	sort.Slice(m.recs, func(i, j int) bool { return m.recs[i].CreatedAt.Before(m.recs[j].CreatedAt) })
	var out []domain.DeliveryRecord
	for _, r := range m.recs {
		if r.CreatedAt.Before(before) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memDeliveries) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	kept := m.recs[:0]
	var n int64
	for _, r := range m.recs {
		if r.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.recs = kept
	return n, nil
}

func seed(n int, start time.Time) *memDeliveries {
	s := &memDeliveries{}
	for i := 0; i < n; i++ {
		s.recs = append(s.recs, domain.DeliveryRecord{
			ID:        string(rune('a' + i)),
			Outcome:   domain.OutcomeRendered,
			CreatedAt: start.Add(time.Duration(i) * time.Minute),
		})
	}
	return s
}

func newTestArchiver(blobs *memBlobs, store DeliveryArchiveStore, batch int) *Archiver {
	a := NewArchiver(blobs, blobs, store, ArchiverConfig{BatchSize: batch}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC) }
	return a
}

func countLines(b []byte) int {
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		n++
	}
	return n
}

func TestArchiveDeliveries_SingleBatch(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	store := seed(5, start)
	blobs := &memBlobs{objects: map[string][]byte{}}
	a := newTestArchiver(blobs, store, 100)

	cutoff := start.Add(3 * time.Minute)
	n, err := a.ArchiveDeliveries(context.Background(), cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || len(store.recs) != 2 {
		t.Fatalf("deleted = %d, remaining = %d; want 3/2", n, len(store.recs))
	}
	if len(blobs.objects) != 1 {
		t.Fatalf("objects = %d, want 1", len(blobs.objects))
	}
	for path, body := range blobs.objects {
		if !strings.HasPrefix(path, "archive/deliveries/2026-09/20261019T030000Z-000") {
			t.Errorf("path = %q", path)
		}
		if countLines(body) != 3 {
			t.Errorf("lines = %d, want 3", countLines(body))
		}
	}
}

func TestArchiveDeliveries_MultipleBatches(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	store := seed(7, start)
	blobs := &memBlobs{objects: map[string][]byte{}}
	a := newTestArchiver(blobs, store, 3)

	n, err := a.ArchiveDeliveries(context.Background(), start.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 7 || len(store.recs) != 0 {
		t.Fatalf("deleted = %d, remaining = %d", n, len(store.recs))
	}
	if len(blobs.objects) < 3 {
		t.Fatalf("objects = %d, want at least 3", len(blobs.objects))
	}
}

func TestArchiveDeliveries_Empty(t *testing.T) {
	blobs := &memBlobs{objects: map[string][]byte{}}
	n, err := newTestArchiver(blobs, &memDeliveries{}, 10).ArchiveDeliveries(context.Background(), time.Now())
	if err != nil || n != 0 || len(blobs.objects) != 0 {
		t.Fatalf("n = %d, err = %v, objects = %d", n, err, len(blobs.objects))
	}
}

func TestArchiveDeliveries_UploadFailureKeepsRows(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	store := seed(2, start)
	blobs := &memBlobs{objects: map[string][]byte{}, putErr: errors.New("denied")}

	if _, err := newTestArchiver(blobs, store, 10).ArchiveDeliveries(context.Background(), start.Add(time.Hour)); err == nil {
		t.Fatal("expected upload error")
	}
	if len(store.recs) != 2 {
		t.Fatalf("rows deleted despite failed upload: remaining = %d", len(store.recs))
	}
}

func TestArchiveDeliveries_UnverifiedKeepsRows(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	store := seed(2, start)
	blobs := &memBlobs{objects: map[string][]byte{}, hide: true}

	_, err := newTestArchiver(blobs, store, 10).ArchiveDeliveries(context.Background(), start.Add(time.Hour))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(store.recs) != 2 {
		t.Fatalf("remaining = %d, want 2", len(store.recs))
	}
}

func TestArchiveDeliveries_SameTimestampStops(t *testing.T) {
	ts := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	store := &memDeliveries{}
	for i := 0; i < 4; i++ {
		store.recs = append(store.recs, domain.DeliveryRecord{ID: string(rune('a' + i)), CreatedAt: ts})
	}
	blobs := &memBlobs{objects: map[string][]byte{}}

	n, err := newTestArchiver(blobs, store, 2).ArchiveDeliveries(context.Background(), ts.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("deleted = %d, want 0", n)
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"https://s3.example.com", false, "https://s3.example.com"},
		{"minio:9000", false, "http://minio:9000"},
		{"minio:9000", true, "https://minio:9000"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.useSSL); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.useSSL, got, tt.want)
		}
	}
}
