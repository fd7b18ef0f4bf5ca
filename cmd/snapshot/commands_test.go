package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"biomrk-backend/internal/bootstrap"
	"biomrk-backend/internal/queue"
	"biomrk-backend/internal/shared/config"
	"biomrk-backend/internal/snapshots"
)

func useMemoryBackend(t *testing.T) *snapshots.MemoryStore {
	t.Helper()
	store := snapshots.NewMemoryStore()
	prev := openBackend
	openBackend = func(ctx context.Context, cfg config.Config) (*bootstrap.Backend, error) {
		return &bootstrap.Backend{Kind: "memory", Store: store}, nil
	}
	t.Cleanup(func() { openBackend = prev })
	return store
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(config.Config{StoreReadTimeout: time.Second}, &out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const seedInput = `{"analysis_id":"b1","cancer_code":"BRCA","log_timestamp":100}
{"analysis_id":"b2","cancer_code":"BRCA","log_timestamp":200,"pc_avg_exprs":[{"pc_name":"PC1","details":[{"ensembl":"G1","groups":[{"subgroup":"A","value":1}]}]}]}
{"analysis_id":"l1","cancer_code":"LUAD","log_timestamp":50}
`

func TestSeedThenGet(t *testing.T) {
	useMemoryBackend(t)

	out, err := run(t, seedInput, "seed")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if out != "appended 3 rows\n" {
		t.Fatalf("unexpected seed output %q", out)
	}

	out, err = run(t, "", "get", "BRCA")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var snap struct {
		AnalysisID string          `json:"analysis_id"`
		Pivot      json.RawMessage `json:"pc_avg_exprs_pivot"`
	}
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.AnalysisID != "b2" {
		t.Fatalf("expected latest run b2, got %q", snap.AnalysisID)
	}
	if string(snap.Pivot) != `{"PC1":[{"ensembl":"G1","A":1}]}` {
		t.Fatalf("unexpected pivot %s", snap.Pivot)
	}

	out, err = run(t, "", "get", "BRCA", "--version", "100")
	if err != nil {
		t.Fatalf("get --version: %v", err)
	}
	if !strings.Contains(out, `"analysis_id":"b1"`) {
		t.Fatalf("expected pinned run b1, got %s", out)
	}
}

func TestGetSeveralCodes(t *testing.T) {
	useMemoryBackend(t)
	if _, err := run(t, seedInput, "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	out, err := run(t, "", "get", "BRCA", "LUAD", "--parallel", "2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got map[string]struct {
		LogTimestamp int64 `json:"log_timestamp"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["BRCA"].LogTimestamp != 200 || got["LUAD"].LogTimestamp != 50 {
		t.Fatalf("unexpected results: %+v", got)
	}

	_, err = run(t, "", "get", "BRCA", "NONE")
	if !errors.Is(err, snapshots.ErrNoPartitionFound) {
		t.Fatalf("expected ErrNoPartitionFound, got %v", err)
	}
	if _, err := run(t, "", "get", "BRCA", "LUAD", "--version", "1"); err == nil {
		t.Fatalf("expected --version to be rejected with several codes")
	}
}

func TestVersions(t *testing.T) {
	useMemoryBackend(t)
	if _, err := run(t, seedInput, "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	out, err := run(t, "", "versions", "BRCA")
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if out != "100\n200\n" {
		t.Fatalf("unexpected versions output %q", out)
	}
}

func TestSeedRejectsBadInput(t *testing.T) {
	store := useMemoryBackend(t)
	if _, err := run(t, `{"cancer_code":"BRCA"}`, "seed"); err == nil {
		t.Fatalf("expected error for missing log_timestamp")
	}
	versions, _ := store.ListVersions(context.Background(), "BRCA")
	if len(versions) != 0 {
		t.Fatalf("nothing should be appended on bad input, got %v", versions)
	}
}

type recordingPublisher struct {
	sent []queue.Message
	err  error
}

func (p *recordingPublisher) Send(ctx context.Context, msg queue.Message) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func usePublisher(t *testing.T, p *recordingPublisher) {
	t.Helper()
	prev := newPublisher
	newPublisher = func(ctx context.Context, cfg config.Config) (queue.Client, error) {
		return p, nil
	}
	t.Cleanup(func() { newPublisher = prev })
}

func TestPublish(t *testing.T) {
	pub := &recordingPublisher{}
	usePublisher(t, pub)

	out, err := run(t, seedInput+"\n", "publish")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if out != "published 3 rows\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if len(pub.sent) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(pub.sent))
	}
	first := pub.sent[0]
	if first.RequestID == "" || first.EnqueuedAt == "" {
		t.Fatalf("expected request id and timestamp, got %+v", first)
	}
	if string(first.Row) != `{"analysis_id":"b1","cancer_code":"BRCA","log_timestamp":100}` {
		t.Fatalf("unexpected row %s", first.Row)
	}
}

func TestPublishValidatesBeforeSending(t *testing.T) {
	pub := &recordingPublisher{}
	usePublisher(t, pub)

	_, err := run(t, seedInput+`{"cancer_code":"BRCA"}`+"\n", "publish")
	if err == nil || !strings.Contains(err.Error(), "line 4") {
		t.Fatalf("expected line 4 error, got %v", err)
	}
	if len(pub.sent) != 0 {
		t.Fatalf("nothing should be sent, got %d", len(pub.sent))
	}
}

func TestPublishSendError(t *testing.T) {
	usePublisher(t, &recordingPublisher{err: errors.New("throttled")})
	if _, err := run(t, seedInput, "publish"); err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Fatalf("expected send error, got %v", err)
	}
}

func TestStoreFlag(t *testing.T) {
	cmd := newRootCmd(config.Config{}, &bytes.Buffer{})
	flag := cmd.PersistentFlags().Lookup("store")
	if flag == nil {
		t.Fatalf("expected --store flag")
	}
	for _, kind := range []string{"postgres", "object", "memory", "badger", "embedded"} {
		if !strings.Contains(flag.Usage, kind) {
			t.Fatalf("--store usage %q does not mention %s", flag.Usage, kind)
		}
	}

	var got string
	prev := openBackend
	openBackend = func(ctx context.Context, cfg config.Config) (*bootstrap.Backend, error) {
		got = cfg.SnapshotStore
		return &bootstrap.Backend{Kind: cfg.SnapshotStore, Store: snapshots.NewMemoryStore()}, nil
	}
	t.Cleanup(func() { openBackend = prev })

	if _, err := run(t, "", "versions", "BRCA", "--store", "badger"); err != nil {
		t.Fatalf("versions: %v", err)
	}
	if got != "badger" {
		t.Fatalf("expected badger store override, got %q", got)
	}
}
