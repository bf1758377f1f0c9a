package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Binz120/OpenBullet2/internal/database"
	"github.com/Binz120/OpenBullet2/internal/domain"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func result(status domain.Status, data string) domain.CheckResult {
	return domain.CheckResult{
		ID:        data,
		JobID:     "job-1",
		Config:    "My/Config",
		Status:    status,
		RawStatus: status.String(),
		Line:      domain.DataLine{Data: data},
		CheckedAt: time.Now(),
	}
}

func TestStatusFilter(t *testing.T) {
	filter := NewStatusFilter([]string{"success", " CUSTOM ", ""})

	if !filter.Allows(result(domain.StatusSuccess, "a")) {
		t.Fatal("SUCCESS should pass the filter")
	}
	if filter.Allows(result(domain.StatusFail, "a")) {
		t.Fatal("FAIL should not pass the filter")
	}

	unrecognized := result(domain.StatusUnrecognized, "a")
	unrecognized.RawStatus = "custom"
	if !filter.Allows(unrecognized) {
		t.Fatal("raw status should be matched case-insensitively")
	}

	if !NewStatusFilter(nil).Allows(result(domain.StatusFail, "a")) {
		t.Fatal("an empty filter should allow everything")
	}
}

func TestFileSystemSinkWritesPerStatus(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSystemSink(dir, []string{"SUCCESS", "NONE"})

	hit := result(domain.StatusSuccess, "alice:secret")
	hit.Captures = map[string]string{"plan": "gold"}
	records := []domain.CheckResult{
		hit,
		result(domain.StatusSuccess, "bob:hunter2"),
		result(domain.StatusNone, "carol:x"),
		result(domain.StatusFail, "dave:y"),
	}
	for _, r := range records {
		if err := sink.Record(context.Background(), r); err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	hits, err := os.ReadFile(filepath.Join(dir, "My_Config", "SUCCESS.txt"))
	if err != nil {
		t.Fatalf("read hits: %v", err)
	}
	want := "alice:secret | plan = gold\nbob:hunter2\n"
	if string(hits) != want {
		t.Fatalf("unexpected hits file %q", hits)
	}

	if _, err := os.Stat(filepath.Join(dir, "My_Config", "NONE.txt")); err != nil {
		t.Fatalf("expected NONE file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "My_Config", "FAIL.txt")); !os.IsNotExist(err) {
		t.Fatalf("FAIL results should be filtered out, got %v", err)
	}
}

type failingSink struct{ err error }

func (f failingSink) Record(context.Context, domain.CheckResult) error { return f.err }
func (f failingSink) Close() error                                    { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	multi := Multi{failingSink{errA}, Discard{}, failingSink{errB}}

	err := multi.Record(context.Background(), result(domain.StatusSuccess, "x"))
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both errors, got %v", err)
	}
	if err := (Multi{Discard{}}).Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}

func setupSinkTestDB(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	prev := database.DB
	t.Cleanup(func() { database.DB = prev })

	if _, err := database.SetupDB(database.WithExistingDB(db)); err != nil {
		t.Fatalf("SetupDB returned error: %v", err)
	}
}

func TestDatabaseSinkFlushesOnClose(t *testing.T) {
	setupSinkTestDB(t)

	sink := NewDatabaseSink(DatabaseSinkOptions{
		Statuses:      []string{"SUCCESS"},
		BatchSize:     3,
		FlushInterval: time.Hour,
	})

	for i := 0; i < 5; i++ {
		if err := sink.Record(context.Background(), result(domain.StatusSuccess, fmt.Sprintf("user%d", i))); err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}
	if err := sink.Record(context.Background(), result(domain.StatusFail, "ignored")); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	var hits []domain.Hit
	if err := database.DB.Where("job_id = ?", "job-1").Order("id").Find(&hits).Error; err != nil {
		t.Fatalf("query hits: %v", err)
	}
	if len(hits) != 5 {
		t.Fatalf("expected 5 persisted hits, got %d", len(hits))
	}
	for _, hit := range hits {
		if hit.Status != "SUCCESS" || !strings.HasPrefix(hit.Data, "user") {
			t.Fatalf("unexpected hit %+v", hit)
		}
	}

	if err := sink.Record(context.Background(), result(domain.StatusSuccess, "late")); err == nil {
		t.Fatal("recording after Close should fail")
	}
}

func TestDatabaseSinkKeepsEveryAcceptedHitWhenClosing(t *testing.T) {
	setupSinkTestDB(t)

	sink := NewDatabaseSink(DatabaseSinkOptions{
		Statuses:      []string{"SUCCESS"},
		BatchSize:     7,
		FlushInterval: time.Hour,
	})

	const writers = 8
	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
	)
	for w := 0; w < writers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				err := sink.Record(context.Background(), result(domain.StatusSuccess, fmt.Sprintf("w%d-%d", w, i)))
				if err == nil {
					accepted.Add(1)
				}
			}
		}()
	}

	time.Sleep(time.Millisecond)
	if err := sink.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	wg.Wait()

	var stored int64
	if err := database.DB.Model(&domain.Hit{}).Where("job_id = ?", "job-1").Count(&stored).Error; err != nil {
		t.Fatalf("count hits: %v", err)
	}
	if stored != accepted.Load() {
		t.Fatalf("accepted %d hits but stored %d", accepted.Load(), stored)
	}
}

func TestDatabaseSinkRecordIsBounded(t *testing.T) {
	sink := &DatabaseSink{
		filter: NewStatusFilter(nil),
		queue:  make(chan domain.Hit),
		stop:   make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := sink.Record(ctx, result(domain.StatusSuccess, "x")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a deadline error for a full queue, got %v", err)
	}
}

func TestEncodeResult(t *testing.T) {
	r := result(domain.StatusCustom, "alice:secret")
	r.Captures = map[string]string{"plan": "pro"}
	r.Proxy = &domain.Proxy{Host: "10.0.0.1", Port: 8080, Type: domain.ProxyTypeHTTP}

	payload, err := encodeResult(r)
	if err != nil {
		t.Fatalf("encodeResult returned error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded["status"] != "CUSTOM" || decoded["captured"] != "plan = pro" || decoded["proxy_url"] != r.Proxy.String() {
		t.Fatalf("unexpected payload %s", payload)
	}
}

func TestRedisSinkReportsUnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	sink := NewRedisSink(client, "ob:hits", "ob:hits:live", []string{"SUCCESS"})

	if err := sink.Record(context.Background(), result(domain.StatusFail, "skipped")); err != nil {
		t.Fatalf("filtered results should not reach redis: %v", err)
	}
	if err := sink.Record(context.Background(), result(domain.StatusSuccess, "alice")); err == nil {
		t.Fatal("expected an error from an unreachable redis")
	}
}
