package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielokafor/smartvault/internal/models"
)

// fakeStore is an in-memory DocumentStore tracking the duplicates set per
// document the way the real store does: SaveDerived replaces the owning
// side wholesale, AddDuplicateEdge inserts if absent.
type fakeStore struct {
	mu       sync.Mutex
	docs     map[string]*models.Document
	edges    map[string]map[string]float64
	statuses map[string]string
	saveErrs []error // consumed per SaveDerived call; nil entry = success
	saves    int
	savedCh  chan string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     map[string]*models.Document{},
		edges:    map[string]map[string]float64{},
		statuses: map[string]string{},
	}
}

func (s *fakeStore) put(doc *models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	s.docs[doc.ID] = &cp
}

func (s *fakeStore) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	cp.Duplicates = nil
	for peer, score := range s.edges[id] {
		cp.Duplicates = append(cp.Duplicates, models.DuplicateRef{PeerID: peer, Score: score})
	}
	return &cp, nil
}

func (s *fakeStore) GetDocumentOwner(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return "", nil
	}
	return d.OwnerID, nil
}

func (s *fakeStore) UpdateDocumentStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
	return nil
}

func (s *fakeStore) SaveDerived(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if len(s.saveErrs) > 0 {
		err := s.saveErrs[0]
		s.saveErrs = s.saveErrs[1:]
		if err != nil {
			return err
		}
	}
	stored, ok := s.docs[doc.ID]
	if !ok {
		return nil
	}
	stored.Content = doc.Content
	stored.Summary = doc.Summary
	stored.Tags = doc.Tags
	stored.Status = doc.Status
	set := map[string]float64{}
	for _, ref := range doc.Duplicates {
		set[ref.PeerID] = ref.Score
	}
	s.edges[doc.ID] = set
	if s.savedCh != nil {
		s.savedCh <- doc.ID
	}
	return nil
}

func (s *fakeStore) AddDuplicateEdge(_ context.Context, id, peerID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == peerID {
		return nil
	}
	set, ok := s.edges[id]
	if !ok {
		set = map[string]float64{}
		s.edges[id] = set
	}
	if _, exists := set[peerID]; !exists {
		set[peerID] = score
	}
	return nil
}

func (s *fakeStore) duplicatesOf(id string) map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]float64{}
	for peer, score := range s.edges[id] {
		out[peer] = score
	}
	return out
}

type fakeVectors struct {
	mu           sync.Mutex
	upserted     map[string][]float32
	neighbors    []models.Neighbor
	upsertErr    error
	nearestErr   error
	nearestCalls int
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{upserted: map[string][]float32{}}
}

func (v *fakeVectors) UpsertVector(_ context.Context, id string, emb []float32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.upsertErr != nil {
		return v.upsertErr
	}
	v.upserted[id] = emb
	return nil
}

func (v *fakeVectors) NearestVectors(_ context.Context, excludeID string, _ []float32, k int) ([]models.Neighbor, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nearestCalls++
	if v.nearestErr != nil {
		return nil, v.nearestErr
	}
	out := make([]models.Neighbor, 0, k)
	for _, n := range v.neighbors {
		if n.DocumentID == excludeID {
			continue
		}
		out = append(out, n)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

type fakeBlobs struct {
	data map[string][]byte
	err  error
}

func (b *fakeBlobs) FetchBlob(_ context.Context, ref string) ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.data[ref], nil
}

type fakeExtractor struct {
	out        string
	err        error
	mediaTypes []string
}

func (e *fakeExtractor) Extract(_ context.Context, _ []byte, mediaType string) (string, error) {
	e.mediaTypes = append(e.mediaTypes, mediaType)
	if e.err != nil {
		return "", e.err
	}
	return e.out, nil
}

type fakeEmbedder struct {
	mu     sync.Mutex
	vec    []float32
	err    error
	inputs []string
}

func (e *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = append(e.inputs, text)
	if e.err != nil {
		return nil, e.err
	}
	if e.vec != nil {
		return e.vec, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeLLM struct {
	out     string
	err     error
	prompts []string
}

func (l *fakeLLM) Generate(_ context.Context, _ string, prompt string) (string, error) {
	l.prompts = append(l.prompts, prompt)
	if l.err != nil {
		return "", l.err
	}
	return l.out, nil
}

type fixture struct {
	store     *fakeStore
	vectors   *fakeVectors
	blobs     *fakeBlobs
	extractor *fakeExtractor
	embedder  *fakeEmbedder
	llm       *fakeLLM
	proc      *FileProcessor
}

func newFixture(cfg *Config) *fixture {
	f := &fixture{
		store:     newFakeStore(),
		vectors:   newFakeVectors(),
		blobs:     &fakeBlobs{data: map[string][]byte{}},
		extractor: &fakeExtractor{},
		embedder:  &fakeEmbedder{},
		llm:       &fakeLLM{out: "A report about growth.\nTags: finance, report"},
	}
	f.proc = NewFileProcessor(f.store, f.vectors, f.blobs, f.extractor, f.embedder, f.llm, cfg)
	return f
}

func doc(id, owner string) *models.Document {
	return &models.Document{
		ID:         id,
		OwnerID:    owner,
		FileName:   id + ".txt",
		StorageURL: "https://vault.s3.us-east-2.amazonaws.com/" + id,
		MediaType:  "text/plain",
		Status:     models.StatusPending,
	}
}

func TestProcessOne_HappyPath(t *testing.T) {
	f := newFixture(nil)
	f.store.put(doc("a", "u1"))
	f.blobs.data["https://vault.s3.us-east-2.amazonaws.com/a"] = []byte("quarterly report")
	f.extractor.out = "The quarterly report shows strong growth"

	require.NoError(t, f.proc.ProcessOne(context.Background(), "a"))

	saved, err := f.store.GetDocumentByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "The quarterly report shows strong growth", saved.Content)
	assert.Equal(t, "A report about growth.", saved.Summary)
	assert.Equal(t, []string{"finance", "report"}, saved.Tags)
	assert.Equal(t, models.StatusReady, saved.Status)
	assert.Contains(t, f.vectors.upserted, "a")

	require.Len(t, f.embedder.inputs, 1)
	assert.Equal(t, "The quarterly report shows strong growth", f.embedder.inputs[0])
}

func TestProcessOne_CorruptSourceStillPersists(t *testing.T) {
	f := newFixture(nil)
	d := doc("a", "u1")
	d.MediaType = "application/pdf"
	f.store.put(d)
	f.extractor.err = errors.New("malformed xref table")

	require.NoError(t, f.proc.ProcessOne(context.Background(), "a"))

	saved, _ := f.store.GetDocumentByID(context.Background(), "a")
	assert.Empty(t, saved.Content)
	assert.Empty(t, saved.Summary)
	assert.Empty(t, saved.Tags)
	assert.Equal(t, models.StatusReady, saved.Status)

	// No content: enrichment skipped, embedding falls back to the file name.
	assert.Empty(t, f.llm.prompts)
	require.Len(t, f.embedder.inputs, 1)
	assert.Equal(t, "a.txt", f.embedder.inputs[0])
}

func TestProcessOne_FetchFailureYieldsEmptyContent(t *testing.T) {
	f := newFixture(nil)
	f.store.put(doc("a", "u1"))
	f.blobs.err = errors.New("403 forbidden")

	require.NoError(t, f.proc.ProcessOne(context.Background(), "a"))

	saved, _ := f.store.GetDocumentByID(context.Background(), "a")
	assert.Empty(t, saved.Content)
	assert.Equal(t, models.StatusReady, saved.Status)
}

func TestProcessOne_EmbedInputTruncated(t *testing.T) {
	f := newFixture(nil)
	f.store.put(doc("a", "u1"))
	f.extractor.out = strings.Repeat("x", EmbedInputLimit+500)

	require.NoError(t, f.proc.ProcessOne(context.Background(), "a"))

	require.Len(t, f.embedder.inputs, 1)
	assert.Len(t, f.embedder.inputs[0], EmbedInputLimit)
	assert.Equal(t, strings.Repeat("x", EmbedInputLimit), f.embedder.inputs[0])
}

func TestProcessOne_EnrichmentPromptBounded(t *testing.T) {
	f := newFixture(nil)
	f.store.put(doc("a", "u1"))
	f.extractor.out = strings.Repeat("y", SummarySourceLimit) + "OVERFLOW"

	require.NoError(t, f.proc.ProcessOne(context.Background(), "a"))

	require.Len(t, f.llm.prompts, 1)
	assert.NotContains(t, f.llm.prompts[0], "OVERFLOW")
	assert.Contains(t, f.llm.prompts[0], strings.Repeat("y", SummarySourceLimit))
}

func TestProcessOne_OwnershipInvariant(t *testing.T) {
	f := newFixture(nil)
	f.store.put(doc("a", "u1"))
	f.store.put(doc("b", "u2"))
	f.extractor.out = "identical content"
	f.vectors.neighbors = []models.Neighbor{{DocumentID: "b", Similarity: 0.99}}

	require.NoError(t, f.proc.ProcessOne(context.Background(), "a"))

	assert.Empty(t, f.store.duplicatesOf("a"))
	assert.Empty(t, f.store.duplicatesOf("b"))
}

func TestProcessOne_ThresholdBoundary(t *testing.T) {
	f := newFixture(nil)
	f.store.put(doc("a", "u1"))
	f.store.put(doc("b", "u1"))
	f.store.put(doc("c", "u1"))
	f.extractor.out = "content"
	f.vectors.neighbors = []models.Neighbor{
		{DocumentID: "b", Similarity: 0.88},
		{DocumentID: "c", Similarity: 0.8799},
	}

	require.NoError(t, f.proc.ProcessOne(context.Background(), "a"))

	dups := f.store.duplicatesOf("a")
	assert.Equal(t, map[string]float64{"b": 0.88}, dups)
}

func TestProcessOne_PeerGainsReverseEdge(t *testing.T) {
	f := newFixture(nil)
	f.store.put(doc("a", "u1"))
	f.store.put(doc("b", "u1"))
	f.extractor.out = "The quarterly report shows strong growth"
	f.vectors.neighbors = []models.Neighbor{{DocumentID: "b", Similarity: 0.95}}

	require.NoError(t, f.proc.ProcessOne(context.Background(), "a"))

	assert.Equal(t, map[string]float64{"b": 0.95}, f.store.duplicatesOf("a"))
	// B's set gains {a, 0.95} before B's own run ever executes.
	assert.Equal(t, map[string]float64{"a": 0.95}, f.store.duplicatesOf("b"))
}

func TestProcessOne_SelfNeighborIgnored(t *testing.T) {
	f := newFixture(nil)
	f.store.put(doc("a", "u1"))
	f.extractor.out = "content"
	f.vectors.neighbors = []models.Neighbor{{DocumentID: "a", Similarity: 1.0}}

	require.NoError(t, f.proc.ProcessOne(context.Background(), "a"))
	assert.Empty(t, f.store.duplicatesOf("a"))
}

func TestProcessOne_EmbeddingFailureSkipsDedupScan(t *testing.T) {
	f := newFixture(nil)
	f.store.put(doc("a", "u1"))
	f.store.put(doc("b", "u1"))
	f.store.edges["a"] = map[string]float64{"b": 0.91} // from an earlier run
	f.extractor.out = "content"
	f.embedder.err = errors.New("quota exceeded")

	require.NoError(t, f.proc.ProcessOne(context.Background(), "a"))

	assert.Zero(t, f.vectors.nearestCalls)
	// Prior duplicates set written back untouched.
	assert.Equal(t, map[string]float64{"b": 0.91}, f.store.duplicatesOf("a"))
	saved, _ := f.store.GetDocumentByID(context.Background(), "a")
	assert.Equal(t, models.StatusReady, saved.Status)
}

func TestProcessOne_VectorUpsertFailureSkipsDedupScan(t *testing.T) {
	f := newFixture(nil)
	f.store.put(doc("a", "u1"))
	f.extractor.out = "content"
	f.vectors.upsertErr = errors.New("connection reset")

	require.NoError(t, f.proc.ProcessOne(context.Background(), "a"))
	assert.Zero(t, f.vectors.nearestCalls)
}

func TestProcessOne_NearestFailureKeepsPriorSet(t *testing.T) {
	f := newFixture(nil)
	f.store.put(doc("a", "u1"))
	f.store.edges["a"] = map[string]float64{"b": 0.9}
	f.extractor.out = "content"
	f.vectors.nearestErr = errors.New("index rebuild in progress")

	require.NoError(t, f.proc.ProcessOne(context.Background(), "a"))
	assert.Equal(t, map[string]float64{"b": 0.9}, f.store.duplicatesOf("a"))
}

func TestProcessOne_PersistFailurePropagates(t *testing.T) {
	f := newFixture(nil)
	f.store.put(doc("a", "u1"))
	f.extractor.out = "content"
	f.store.saveErrs = []error{errors.New("connection lost")}

	err := f.proc.ProcessOne(context.Background(), "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersist)
}

func TestProcessOne_DeletedDocumentDropsJob(t *testing.T) {
	f := newFixture(nil)
	require.NoError(t, f.proc.ProcessOne(context.Background(), "gone"))
	assert.Zero(t, f.store.saves)
	assert.Empty(t, f.embedder.inputs)
}

func TestProcessOne_ReplayRecomputesDuplicateSet(t *testing.T) {
	f := newFixture(nil)
	f.store.put(doc("a", "u1"))
	f.store.put(doc("b", "u1"))
	f.extractor.out = "same content every run"
	f.vectors.neighbors = []models.Neighbor{{DocumentID: "b", Similarity: 0.93}}

	require.NoError(t, f.proc.ProcessOne(context.Background(), "a"))
	first, _ := f.store.GetDocumentByID(context.Background(), "a")

	require.NoError(t, f.proc.ProcessOne(context.Background(), "a"))
	second, _ := f.store.GetDocumentByID(context.Background(), "a")

	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.Tags, second.Tags)
	// Recomputed from scratch, not accumulated.
	assert.Equal(t, map[string]float64{"b": 0.93}, f.store.duplicatesOf("a"))
}

func TestStart_ProcessesEnqueuedJob(t *testing.T) {
	f := newFixture(&Config{Workers: 2, QueueDepth: 8})
	f.store.savedCh = make(chan string, 1)
	f.store.put(doc("a", "u1"))
	f.extractor.out = "content"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.proc.Start(ctx, 2)
	f.proc.Enqueue("a")

	select {
	case id := <-f.store.savedCh:
		assert.Equal(t, "a", id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was never processed")
	}
}

func TestStart_RetriesFailedPersist(t *testing.T) {
	f := newFixture(&Config{Workers: 1, QueueDepth: 8, MaxAttempts: 3, RetryBackoff: 10 * time.Millisecond})
	f.store.savedCh = make(chan string, 1)
	f.store.put(doc("a", "u1"))
	f.extractor.out = "content"
	f.store.saveErrs = []error{errors.New("transient"), nil}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.proc.Start(ctx, 1)
	f.proc.Enqueue("a")

	select {
	case <-f.store.savedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never redelivered")
	}
	f.store.mu.Lock()
	saves := f.store.saves
	f.store.mu.Unlock()
	assert.Equal(t, 2, saves)
}

func TestStart_ExhaustedAttemptsMarkFailed(t *testing.T) {
	f := newFixture(&Config{Workers: 1, QueueDepth: 8, MaxAttempts: 2, RetryBackoff: 5 * time.Millisecond})
	f.store.put(doc("a", "u1"))
	f.extractor.out = "content"
	f.store.saveErrs = []error{errors.New("down"), errors.New("down")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.proc.Start(ctx, 1)
	f.proc.Enqueue("a")

	require.Eventually(t, func() bool {
		f.store.mu.Lock()
		defer f.store.mu.Unlock()
		return f.store.statuses["a"] == models.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)
}

type staleListerFunc func(ctx context.Context, cutoff time.Time) ([]string, error)

func (fn staleListerFunc) ListStaleDocumentIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	return fn(ctx, cutoff)
}

func TestRecoverStale_EnqueuesStaleDocuments(t *testing.T) {
	f := newFixture(&Config{Workers: 1, QueueDepth: 8})
	f.store.savedCh = make(chan string, 2)
	f.store.put(doc("a", "u1"))
	f.store.put(doc("b", "u1"))
	f.extractor.out = "content"

	lister := staleListerFunc(func(_ context.Context, _ time.Time) ([]string, error) {
		return []string{"a", "b"}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.proc.Start(ctx, 1)
	require.NoError(t, f.proc.RecoverStale(ctx, lister, time.Minute))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-f.store.savedCh:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 2 recovered jobs processed", i)
		}
	}
	assert.True(t, got["a"] && got["b"])
}

func TestParseEnrichment(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantSummary string
		wantTags    []string
	}{
		{
			name:        "summary and tags",
			in:          "A short summary.\nTags: alpha, beta, gamma",
			wantSummary: "A short summary.",
			wantTags:    []string{"alpha", "beta", "gamma"},
		},
		{
			name:        "no marker",
			in:          "Just a summary with no tag line.",
			wantSummary: "Just a summary with no tag line.",
			wantTags:    nil,
		},
		{
			name:        "extra tags discarded",
			in:          "S.\nTags: a, b, c, d, e, f, g, h",
			wantSummary: "S.",
			wantTags:    []string{"a", "b", "c", "d", "e", "f"},
		},
		{
			name:        "empty tokens dropped",
			in:          "S.\nTags: a, , b,,  , c",
			wantSummary: "S.",
			wantTags:    []string{"a", "b", "c"},
		},
		{
			name:        "empty response",
			in:          "",
			wantSummary: "",
			wantTags:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, tags := parseEnrichment(tt.in)
			assert.Equal(t, tt.wantSummary, summary)
			assert.Equal(t, tt.wantTags, tags)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "héll", truncate("héllo", 4))
	assert.Equal(t, "", truncate("", 5))
}

func TestTruncate_ExactBoundary(t *testing.T) {
	s := strings.Repeat("z", 100)
	assert.Equal(t, s, truncate(s, 100))
	assert.Equal(t, fmt.Sprintf("%.99s", s), truncate(s, 99))
}
