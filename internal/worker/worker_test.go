package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IliaW/site-auditor/internal/model"
	"github.com/IliaW/site-auditor/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuditor struct {
	mu     sync.Mutex
	calls  []string
	fails  int
	report *model.AuditReport
}

func (f *fakeAuditor) Audit(_ context.Context, siteURL string) (*model.AuditReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, siteURL)
	if f.fails > 0 {
		f.fails--
		return nil, errors.New("connection reset")
	}
	r := *f.report
	r.SiteURL = siteURL
	return &r, nil
}

type fakeSaver struct {
	saved []*model.AuditReport
	force []bool
	err   error
}

func (f *fakeSaver) Save(_ context.Context, report *model.AuditReport, force bool) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, report)
	f.force = append(f.force, force)
	return nil
}

type fakeCache struct {
	recent map[string]bool
	marked map[string]*model.AuditNotification
}

func newFakeCache() *fakeCache {
	return &fakeCache{recent: map[string]bool{}, marked: map[string]*model.AuditNotification{}}
}

func (f *fakeCache) RecentlyAudited(siteURL string) bool { return f.recent[siteURL] }

func (f *fakeCache) MarkAudited(siteURL string, n *model.AuditNotification) { f.marked[siteURL] = n }

func (f *fakeCache) Close() {}

type fakeDLQ struct {
	payloads []string
	causes   []error
}

func (f *fakeDLQ) SendUrlToDLQ(payload string, cause error) {
	f.payloads = append(f.payloads, payload)
	f.causes = append(f.causes, cause)
}

type counters struct {
	success, failed, skipped int64
}

func (c *counters) metrics() *telemetry.AppMetrics {
	return &telemetry.AppMetrics{
		SuccessfullyProcessedMsgCnt: func(n int64) { c.success += n },
		FailedProcessedMsgCounter:   func(n int64) { c.failed += n },
		RecentlyAuditedCounter:      func(n int64) { c.skipped += n },
	}
}

func newWorker(a *fakeAuditor, s *fakeSaver, c *fakeCache, d *fakeDLQ, m *counters) *AuditWorker {
	return &AuditWorker{
		Auditor:       a,
		Saver:         s,
		Cache:         c,
		KafkaDLQ:      d,
		Metrics:       m.metrics(),
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}
}

func TestAuditWorkerSavesReport(t *testing.T) {
	a := &fakeAuditor{report: &model.AuditReport{ID: "r1"}}
	s, c, d, m := &fakeSaver{}, newFakeCache(), &fakeDLQ{}, &counters{}
	w := newWorker(a, s, c, d, m)

	w.process(context.Background(), &model.AuditTask{URL: "https://shop.test"})

	assert.Equal(t, []string{"https://shop.test"}, a.calls)
	require.Len(t, s.saved, 1)
	assert.Equal(t, "https://shop.test", s.saved[0].SiteURL)
	assert.Equal(t, []bool{false}, s.force)
	assert.Empty(t, d.payloads)
	assert.Equal(t, int64(1), m.success)
}

func TestAuditWorkerSkipsRecentlyAuditedUnlessForced(t *testing.T) {
	a := &fakeAuditor{report: &model.AuditReport{ID: "r1"}}
	s, c, d, m := &fakeSaver{}, newFakeCache(), &fakeDLQ{}, &counters{}
	c.recent["https://shop.test"] = true
	w := newWorker(a, s, c, d, m)

	w.process(context.Background(), &model.AuditTask{URL: "https://shop.test"})
	assert.Empty(t, a.calls)
	assert.Equal(t, int64(1), m.skipped)

	w.process(context.Background(), &model.AuditTask{URL: "https://shop.test", Force: true})
	assert.Len(t, a.calls, 1)
	assert.Equal(t, []bool{true}, s.force)
}

func TestAuditWorkerRetriesThenSucceeds(t *testing.T) {
	a := &fakeAuditor{fails: 2, report: &model.AuditReport{ID: "r1"}}
	s, c, d, m := &fakeSaver{}, newFakeCache(), &fakeDLQ{}, &counters{}
	w := newWorker(a, s, c, d, m)

	w.process(context.Background(), &model.AuditTask{URL: "https://shop.test"})

	assert.Len(t, a.calls, 3)
	assert.Len(t, s.saved, 1)
	assert.Empty(t, d.payloads)
}

func TestAuditWorkerSendsFailuresToDLQ(t *testing.T) {
	cases := []struct {
		name    string
		auditor *fakeAuditor
		saver   *fakeSaver
	}{
		{"audit keeps failing", &fakeAuditor{fails: 5, report: &model.AuditReport{}}, &fakeSaver{}},
		{"save fails", &fakeAuditor{report: &model.AuditReport{}}, &fakeSaver{err: errors.New("s3 down")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, m := &fakeDLQ{}, &counters{}
			w := newWorker(tc.auditor, tc.saver, newFakeCache(), d, m)

			w.process(context.Background(), &model.AuditTask{URL: "https://shop.test"})

			assert.Equal(t, []string{"https://shop.test"}, d.payloads)
			assert.Equal(t, int64(1), m.failed)
			assert.Zero(t, m.success)
		})
	}
}

func TestAuditWorkerRunDrainsChannel(t *testing.T) {
	a := &fakeAuditor{report: &model.AuditReport{ID: "r1"}}
	s, m := &fakeSaver{}, &counters{}
	tasks := make(chan *model.AuditTask, 2)
	wg := &sync.WaitGroup{}
	w := newWorker(a, s, newFakeCache(), &fakeDLQ{}, m)
	w.TaskChan = tasks
	w.Wg = wg

	tasks <- &model.AuditTask{URL: "https://a.test"}
	tasks <- &model.AuditTask{URL: "https://b.test"}
	close(tasks)
	wg.Add(1)
	w.Run()
	wg.Wait()

	assert.Len(t, s.saved, 2)
	assert.Equal(t, int64(2), m.success)
}

type fakeBucket struct {
	key string
	err error
}

func (f *fakeBucket) WriteReport(context.Context, *model.AuditReport) (string, error) {
	return f.key, f.err
}

type fakeMetadata struct {
	keys []string
}

func (f *fakeMetadata) Save(_ context.Context, _ *model.AuditReport, s3Key string) error {
	f.keys = append(f.keys, s3Key)
	return nil
}

func TestReportSaver(t *testing.T) {
	notify := make(chan *model.AuditNotification, 1)
	db, c := &fakeMetadata{}, newFakeCache()
	s := &ReportSaver{
		S3:         &fakeBucket{key: "reports/shop.test/abc/r1.json"},
		Db:         db,
		Cache:      c,
		NotifyChan: notify,
		Bucket:     "site-audits",
	}
	report := &model.AuditReport{ID: "r1", SiteURL: "https://shop.test", Scores: model.Scores{Overall: 87}}

	require.NoError(t, s.Save(context.Background(), report, true))

	assert.Equal(t, []string{"reports/shop.test/abc/r1.json"}, db.keys)
	n := <-notify
	assert.Equal(t, &model.AuditNotification{
		ReportID: "r1",
		SiteURL:  "https://shop.test",
		S3Bucket: "site-audits",
		S3Key:    "reports/shop.test/abc/r1.json",
		Overall:  87,
		Force:    true,
	}, n)
	assert.Same(t, n, c.marked["https://shop.test"])
}

func TestReportSaverStopsOnStorageError(t *testing.T) {
	db, c := &fakeMetadata{}, newFakeCache()
	s := &ReportSaver{S3: &fakeBucket{err: errors.New("denied")}, Db: db, Cache: c}

	err := s.Save(context.Background(), &model.AuditReport{ID: "r1", SiteURL: "https://shop.test"}, false)

	assert.EqualError(t, err, "denied")
	assert.Empty(t, db.keys)
	assert.Empty(t, c.marked)
}

func TestReportSaverAfterClose(t *testing.T) {
	notify := make(chan *model.AuditNotification, 1)
	db, c := &fakeMetadata{}, newFakeCache()
	s := &ReportSaver{S3: &fakeBucket{key: "k"}, Db: db, Cache: c, NotifyChan: notify}

	s.Close()
	s.Close()
	_, open := <-notify
	assert.False(t, open)

	require.NotPanics(t, func() {
		assert.NoError(t, s.Save(context.Background(), &model.AuditReport{ID: "r1", SiteURL: "https://shop.test"}, false))
	})
	assert.Equal(t, []string{"k"}, db.keys)
	assert.Contains(t, c.marked, "https://shop.test")
}
