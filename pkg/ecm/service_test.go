package ecm_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-ecm/pkg/ecm"
	memoryblob "github.com/tendant/simple-ecm/pkg/ecm/blob/memory"
	"github.com/tendant/simple-ecm/pkg/ecm/store/memory"
)

// recordingSink remembers every event it receives
type recordingSink struct {
	mu     sync.Mutex
	events []string
	fail   bool
}

func (r *recordingSink) record(event string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if r.fail {
		return errors.New("sink down")
	}
	return nil
}

func (r *recordingSink) ContentSaved(ctx context.Context, item *ecm.ContentItem) error {
	return r.record("saved " + item.Path)
}

func (r *recordingSink) ContentMoved(ctx context.Context, item *ecm.ContentItem, fromPath string) error {
	return r.record("moved " + fromPath + " -> " + item.Path)
}

func (r *recordingSink) ContentDeleted(ctx context.Context, path string) error {
	return r.record("deleted " + path)
}

func (r *recordingSink) VersionDeleted(ctx context.Context, path, label string) error {
	return r.record("version deleted " + path + "@" + label)
}

func (r *recordingSink) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fixture struct {
	svc    ecm.Service
	store  *memory.Store
	blobs  *memoryblob.Backend
	events *recordingSink
}

const client = "acme"

func newFixture(t *testing.T, languages ...string) *fixture {
	t.Helper()
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	f := &fixture{
		store:  memory.New(),
		blobs:  memoryblob.New(),
		events: &recordingSink{},
	}
	svc, err := ecm.New(
		ecm.WithStore(f.store),
		ecm.WithBlobStore(f.blobs),
		ecm.WithLanguages(&ecm.StaticLanguages{Languages: languages}),
		ecm.WithEventSink(f.events),
	)
	require.NoError(t, err)
	f.svc = svc
	t.Cleanup(func() {
		assert.Zero(t, f.store.OpenSessions(), "every session must be released")
	})
	return f
}

func (f *fixture) provision(t *testing.T) {
	t.Helper()
	require.NoError(t, f.svc.ProvisionClient(context.Background(), client))
}

func document(name, data string, opts ...ecm.ItemOption) *ecm.ContentItem {
	item := ecm.NewContentItem(ecm.ContentTypeDocument, name, opts...)
	item.Binary = &ecm.Binary{Data: []byte(data), MimeType: "text/plain"}
	return item
}

func loadData(t *testing.T, svc ecm.Service, path string) string {
	t.Helper()
	item, err := svc.Load(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, item.Binary)
	return string(item.Binary.Data)
}

func labels(history []*ecm.VersionRecord) []string {
	out := make([]string, len(history))
	for i, rec := range history {
		out[i] = rec.Label
	}
	return out
}

func paths(items []*ecm.ContentItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Path
	}
	return out
}

func TestNewRequiresStore(t *testing.T) {
	_, err := ecm.New()
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	item := document("report 2024/Q1.txt", "hello")
	item.Tags = []string{"finance"}
	require.NoError(t, f.svc.Save(ctx, client, item))

	assert.NotEmpty(t, item.ViewID, "a view id is generated")
	assert.Equal(t, "en", item.Language, "the default language is applied")
	assert.False(t, item.CreatedAt.IsZero())
	assert.Equal(t, "/acme/documents/report 2024%2FQ1.txt", item.Path)
	assert.Equal(t, "/acme/documents", item.ParentPath)
	assert.Equal(t, int64(5), item.Binary.Size)

	loaded, err := f.svc.Load(ctx, item.Path)
	require.NoError(t, err)
	assert.Equal(t, "report 2024/Q1.txt", loaded.Name)
	assert.Equal(t, item.ViewID, loaded.ViewID)
	assert.Equal(t, ecm.ContentTypeDocument, loaded.Type)
	assert.Equal(t, []string{"finance"}, loaded.Tags)
	assert.True(t, loaded.Active)
	require.NotNil(t, loaded.Binary)
	assert.Equal(t, []byte("hello"), loaded.Binary.Data)
	assert.Equal(t, "text/plain", loaded.Binary.MimeType)
	assert.False(t, loaded.IsVersionable())

	assert.Equal(t, []string{"saved " + item.Path}, f.events.Events())
}

func TestSaveHTMLGoesToLanguageFolder(t *testing.T) {
	f := newFixture(t, "en", "de")
	f.provision(t)
	ctx := context.Background()

	page := ecm.NewContentItem(ecm.ContentTypeHTML, "welcome")
	page.Language = "de"
	page.HTMLBody = "<p>Willkommen</p>"
	require.NoError(t, f.svc.Save(ctx, client, page))
	assert.Equal(t, "/acme/html/de/welcome", page.Path)

	loaded, err := f.svc.Load(ctx, page.Path)
	require.NoError(t, err)
	assert.Equal(t, "<p>Willkommen</p>", loaded.HTMLBody)
	assert.Nil(t, loaded.Binary)
}

func TestSaveUnknownLanguageFolder(t *testing.T) {
	f := newFixture(t)
	f.provision(t)

	note := ecm.NewContentItem(ecm.ContentTypeNotification, "maintenance")
	note.Language = "fr"
	err := f.svc.Save(context.Background(), client, note)
	assert.ErrorIs(t, err, ecm.ErrParentNotFound)
}

func TestSaveParentMissing(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Save(context.Background(), client, document("a.txt", "x"))
	assert.ErrorIs(t, err, ecm.ErrParentNotFound)

	var nodeErr *ecm.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "/acme/documents", nodeErr.Path)
	assert.Zero(t, f.blobs.Len(), "nothing is uploaded for a failed creation")
}

func TestSaveInvalidContentType(t *testing.T) {
	f := newFixture(t)
	f.provision(t)

	item := ecm.NewContentItem(ecm.ContentType("video"), "clip")
	err := f.svc.Save(context.Background(), client, item)
	assert.ErrorIs(t, err, ecm.ErrInvalidContentType)
}

func TestSaveRejectsEmptyName(t *testing.T) {
	f := newFixture(t)
	f.provision(t)

	err := f.svc.Save(context.Background(), client, document("", "x"))
	assert.ErrorIs(t, err, ecm.ErrEncoding)
}

func TestSaveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	item := document("notes.txt", "same", ecm.WithVersioning())
	require.NoError(t, f.svc.Save(ctx, client, item))
	require.NoError(t, f.svc.Save(ctx, client, item))
	require.NoError(t, f.svc.Save(ctx, client, item))

	// a fresh item with the same lookup key and content is unchanged too
	fresh := document("notes.txt", "same", ecm.WithVersioning())
	fresh.ViewID = item.ViewID
	fresh.Language = item.Language
	require.NoError(t, f.svc.Save(ctx, client, fresh))
	assert.Equal(t, item.Path, fresh.Path)
	assert.True(t, fresh.CreatedAt.Equal(item.CreatedAt))

	history, err := f.svc.ContentVersions(ctx, item.Path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0"}, labels(history))
	assert.Equal(t, 1, f.blobs.Len())
	assert.Len(t, f.events.Events(), 1, "unchanged saves fire no events")

	loaded, err := f.svc.Load(ctx, item.Path)
	require.NoError(t, err)
	assert.True(t, loaded.CreatedAt.Equal(item.CreatedAt), "the creation time is kept")
}

func TestSaveOntoOccupiedPathIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	first := document("shared.txt", "first")
	require.NoError(t, f.svc.Save(ctx, client, first))

	second := document("shared.txt", "second")
	require.NoError(t, f.svc.Save(ctx, client, second))
	assert.Empty(t, second.Path)

	assert.Equal(t, "first", loadData(t, f.svc, first.Path))
	items, err := f.svc.ListByViewID(ctx, second.ViewID, false, "")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 1, f.blobs.Len())
}

func TestSaveUpdatesNonVersionable(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	item := document("data.csv", "a,b")
	require.NoError(t, f.svc.Save(ctx, client, item))

	item.Binary = &ecm.Binary{Data: []byte("a,b,c"), MimeType: "text/csv"}
	item.Active = false
	require.NoError(t, f.svc.Save(ctx, client, item))

	loaded, err := f.svc.Load(ctx, item.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("a,b,c"), loaded.Binary.Data)
	assert.Equal(t, "text/csv", loaded.Binary.MimeType)
	assert.False(t, loaded.Active)
	assert.Equal(t, 1, f.blobs.Len(), "the replaced payload is deleted")

	history, err := f.svc.ContentVersions(ctx, item.Path)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.NotNil(t, history)
}

func TestSaveResolvesByViewIDAndLanguage(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	item := document("a.txt", "one")
	require.NoError(t, f.svc.Save(ctx, client, item))

	// a fresh item carrying only the lookup key updates the same node
	again := document("a.txt", "two")
	again.ViewID = item.ViewID
	again.Language = item.Language
	require.NoError(t, f.svc.Save(ctx, client, again))

	assert.Equal(t, item.Path, again.Path)
	assert.Equal(t, "two", loadData(t, f.svc, item.Path))
	assert.True(t, again.CreatedAt.Equal(item.CreatedAt))
}

func TestSaveResolvesByExplicitPath(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	item := document("a.txt", "one")
	require.NoError(t, f.svc.Save(ctx, client, item))

	byPath := document("a.txt", "two")
	byPath.Path = item.Path
	require.NoError(t, f.svc.Save(ctx, client, byPath))

	assert.Equal(t, item.ViewID, byPath.ViewID, "the stored view id is adopted")
	assert.Equal(t, item.Language, byPath.Language)
	assert.True(t, byPath.CreatedAt.Equal(item.CreatedAt))
	assert.Equal(t, "two", loadData(t, f.svc, item.Path))

	items, err := f.svc.ListByViewID(ctx, item.ViewID, false, "")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	// a path held by another view id is not taken over
	other := document("a.txt", "three")
	other.Path = item.Path
	other.ViewID = "someone-else"
	require.NoError(t, f.svc.Save(ctx, client, other))
	assert.Equal(t, "two", loadData(t, f.svc, item.Path))
}

func TestSaveRename(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	item := document("draft.txt", "text")
	require.NoError(t, f.svc.Save(ctx, client, item))
	oldPath := item.Path

	item.Name = "final.txt"
	require.NoError(t, f.svc.Save(ctx, client, item))
	assert.Equal(t, "/acme/documents/final.txt", item.Path)

	_, err := f.svc.Load(ctx, oldPath)
	assert.ErrorIs(t, err, ecm.ErrNotFound)
	assert.Equal(t, "text", loadData(t, f.svc, item.Path))
	assert.Contains(t, f.events.Events(), "moved "+oldPath+" -> "+item.Path)
}

func TestSaveMoveFolderRewritesDescendants(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	_, err := f.svc.EnsureFolderPath(ctx, client, "/archive")
	require.NoError(t, err)

	folder := ecm.NewContentItem(ecm.ContentTypeFolder, "projects")
	require.NoError(t, f.svc.Save(ctx, client, folder))

	doc := document("plan.txt", "plan")
	doc.ParentPath = folder.Path
	require.NoError(t, f.svc.Save(ctx, client, doc))

	folder.ParentPath = "/acme/documents/archive"
	require.NoError(t, f.svc.Save(ctx, client, folder))
	assert.Equal(t, "/acme/documents/archive/projects", folder.Path)

	assert.Equal(t, "plan", loadData(t, f.svc, "/acme/documents/archive/projects/plan.txt"))
	_, err = f.svc.Load(ctx, "/acme/documents/projects/plan.txt")
	assert.ErrorIs(t, err, ecm.ErrNotFound)

	items, err := f.svc.ListByViewID(ctx, doc.ViewID, false, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "/acme/documents/archive/projects/plan.txt", items[0].Path)
	assert.Equal(t, "/acme/documents/archive/projects", items[0].ParentPath)
}

func TestSaveMoveOntoOccupiedPathKeepsLocation(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	taken := document("taken.txt", "other")
	require.NoError(t, f.svc.Save(ctx, client, taken))
	item := document("mine.txt", "mine")
	require.NoError(t, f.svc.Save(ctx, client, item))

	item.Name = "taken.txt"
	item.Comment = "tried to rename"
	require.NoError(t, f.svc.Save(ctx, client, item))

	assert.Equal(t, "/acme/documents/mine.txt", item.Path)
	loaded, err := f.svc.Load(ctx, "/acme/documents/mine.txt")
	require.NoError(t, err)
	assert.Equal(t, "tried to rename", loaded.Comment, "metadata is still written")
	assert.Equal(t, "other", loadData(t, f.svc, taken.Path))
}

func TestSaveMoveBelowItself(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	folder := ecm.NewContentItem(ecm.ContentTypeFolder, "loop")
	require.NoError(t, f.svc.Save(ctx, client, folder))
	_, err := f.svc.EnsureFolderPath(ctx, client, "/loop/inner")
	require.NoError(t, err)

	folder.ParentPath = "/acme/documents/loop/inner"
	err = f.svc.Save(ctx, client, folder)
	assert.Error(t, err)
	_, err = f.svc.Load(ctx, "/acme/documents/loop/inner")
	assert.NoError(t, err)
}

func TestSaveMoveTargetParentMissing(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	item := document("a.txt", "x")
	require.NoError(t, f.svc.Save(ctx, client, item))

	item.ParentPath = "/acme/nowhere"
	err := f.svc.Save(ctx, client, item)
	assert.ErrorIs(t, err, ecm.ErrParentNotFound)
	assert.Equal(t, "x", loadData(t, f.svc, "/acme/documents/a.txt"))
}

func TestVersionedDocumentLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root := ecm.NewContentItem(ecm.ContentTypeFolder, "radien")
	root.ParentPath = ecm.RootPath
	require.NoError(t, f.svc.Save(ctx, "radien", root))
	docs := ecm.NewContentItem(ecm.ContentTypeFolder, "documents")
	docs.ParentPath = root.Path
	require.NoError(t, f.svc.Save(ctx, "radien", docs))

	item := document("comments", "first", ecm.WithVersioning())
	require.NoError(t, f.svc.Save(ctx, "radien", item))
	assert.Equal(t, "/radien/documents/comments", item.Path)
	assert.Equal(t, "1.0", item.Version)

	item.Binary = &ecm.Binary{Data: []byte("second"), MimeType: "text/plain"}
	require.NoError(t, f.svc.Save(ctx, "radien", item))
	assert.Equal(t, "1.1", item.Version)

	loaded, err := f.svc.Load(ctx, item.Path)
	require.NoError(t, err)
	assert.Equal(t, "1.1", loaded.Version)
	assert.True(t, loaded.IsVersionable())

	history, err := f.svc.ContentVersions(ctx, item.Path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0", "1.1"}, labels(history))
	assert.Equal(t, item.Path, history[0].Path)
	assert.Less(t, history[0].Seq, history[1].Seq)

	require.NoError(t, f.svc.DeleteVersion(ctx, item.Path, "1.1"))
	assert.Equal(t, "first", loadData(t, f.svc, item.Path))

	loaded, err = f.svc.Load(ctx, item.Path)
	require.NoError(t, err)
	assert.Equal(t, "1.0", loaded.Version)
	assert.Equal(t, 1, f.blobs.Len(), "the payload of the deleted version is collected")

	err = f.svc.DeleteVersion(ctx, item.Path, "1.0")
	assert.ErrorIs(t, err, ecm.ErrInvalidVersionDeletion)
	history, err = f.svc.ContentVersions(ctx, item.Path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0"}, labels(history))

	err = f.svc.DeleteVersion(ctx, item.Path, "9.9")
	assert.ErrorIs(t, err, ecm.ErrVersionNotFound)

	assert.Contains(t, f.events.Events(), "version deleted "+item.Path+"@1.1")
}

func TestDeleteMiddleVersion(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	item := document("plan.md", "v0", ecm.WithVersioning())
	require.NoError(t, f.svc.Save(ctx, client, item))
	for _, data := range []string{"v1", "v2"} {
		item.Binary = &ecm.Binary{Data: []byte(data), MimeType: "text/markdown"}
		require.NoError(t, f.svc.Save(ctx, client, item))
	}
	assert.Equal(t, "1.2", item.Version)

	require.NoError(t, f.svc.DeleteVersion(ctx, item.Path, "1.1"))

	history, err := f.svc.ContentVersions(ctx, item.Path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0", "1.2"}, labels(history))
	assert.Equal(t, "v2", loadData(t, f.svc, item.Path), "the baseline is untouched")
	assert.Equal(t, 2, f.blobs.Len())

	require.NoError(t, f.svc.DeleteVersion(ctx, item.Path, "1.2"))

	loaded, err := f.svc.Load(ctx, item.Path)
	require.NoError(t, err)
	assert.Equal(t, "v0", string(loaded.Binary.Data), "the first version is live again")
	assert.Equal(t, "1.0", loaded.Version, "and is the baseline")
	history, err = f.svc.ContentVersions(ctx, item.Path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0"}, labels(history))
	assert.Equal(t, 1, f.blobs.Len())

	loaded.Binary = &ecm.Binary{Data: []byte("v3"), MimeType: "text/markdown"}
	require.NoError(t, f.svc.Save(ctx, client, loaded))
	assert.Equal(t, "1.1", loaded.Version)
}

func TestResaveWithBaselineLabel(t *testing.T) {
	var logs bytes.Buffer
	svc, err := ecm.New(
		ecm.WithStore(memory.New()),
		ecm.WithBlobStore(memoryblob.New()),
		ecm.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, svc.ProvisionClient(ctx, client))

	item := document("draft.txt", "a", ecm.WithVersioning())
	require.NoError(t, svc.Save(ctx, client, item))
	for _, data := range []string{"b", "c"} {
		item.Binary = &ecm.Binary{Data: []byte(data), MimeType: "text/plain"}
		require.NoError(t, svc.Save(ctx, client, item))
	}
	assert.Equal(t, "1.2", item.Version)
	assert.NotContains(t, logs.String(), "version label already used")

	// an older label is still reported and replaced
	item.Binary = &ecm.Binary{Data: []byte("d"), MimeType: "text/plain"}
	item.Version = "1.0"
	require.NoError(t, svc.Save(ctx, client, item))
	assert.Equal(t, "1.3", item.Version)
	assert.Contains(t, logs.String(), "version label already used")
}

// checkinFailingStore hands out sessions that cannot append versions.
type checkinFailingStore struct {
	*memory.Store
}

func (s checkinFailingStore) Open(ctx context.Context) (ecm.Session, error) {
	sess, err := s.Store.Open(ctx)
	if err != nil {
		return nil, err
	}
	return checkinFailingSession{sess}, nil
}

type checkinFailingSession struct {
	ecm.Session
}

func (checkinFailingSession) AppendVersion(ctx context.Context, nodeID uuid.UUID, rec *ecm.VersionRecord) error {
	return errors.New("disk full")
}

func TestSaveFailedFirstCheckinLeavesNothing(t *testing.T) {
	store := memory.New()
	blobs := memoryblob.New()
	svc, err := ecm.New(ecm.WithStore(checkinFailingStore{store}), ecm.WithBlobStore(blobs))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, svc.ProvisionClient(ctx, client))

	err = svc.Save(ctx, client, document("a.txt", "x", ecm.WithVersioning()))
	require.Error(t, err)

	_, err = svc.Load(ctx, "/acme/documents/a.txt")
	assert.ErrorIs(t, err, ecm.ErrNotFound)
	assert.Zero(t, blobs.Len())
	assert.Zero(t, store.OpenSessions())

	plain := document("b.txt", "y")
	require.NoError(t, svc.Save(ctx, client, plain))
	assert.Equal(t, "y", loadData(t, svc, plain.Path))
}

func TestCallerVersionLabels(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	item := document("release.txt", "a", ecm.WithVersioning())
	item.Version = "2.0"
	require.NoError(t, f.svc.Save(ctx, client, item))
	assert.Equal(t, "2.0", item.Version)

	// the label is taken: the next free one is used
	item.Binary = &ecm.Binary{Data: []byte("b"), MimeType: "text/plain"}
	require.NoError(t, f.svc.Save(ctx, client, item))
	assert.Equal(t, "2.1", item.Version)

	item.Binary = &ecm.Binary{Data: []byte("c"), MimeType: "text/plain"}
	item.Version = "3.0"
	require.NoError(t, f.svc.Save(ctx, client, item))

	history, err := f.svc.ContentVersions(ctx, item.Path)
	require.NoError(t, err)
	assert.Equal(t, []string{"2.0", "2.1", "3.0"}, labels(history))
}

func TestVersionedRenameIsOneVersion(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	item := document("old.txt", "a", ecm.WithVersioning())
	require.NoError(t, f.svc.Save(ctx, client, item))

	item.Name = "new.txt"
	item.Binary = &ecm.Binary{Data: []byte("b"), MimeType: "text/plain"}
	require.NoError(t, f.svc.Save(ctx, client, item))
	assert.Equal(t, "/acme/documents/new.txt", item.Path)

	history, err := f.svc.ContentVersions(ctx, item.Path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0", "1.1"}, labels(history))
	assert.Equal(t, "/acme/documents/new.txt", history[1].Path)
}

func TestDeleteVersionNotVersionable(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	item := document("plain.txt", "x")
	require.NoError(t, f.svc.Save(ctx, client, item))

	err := f.svc.DeleteVersion(ctx, item.Path, "1.0")
	assert.ErrorIs(t, err, ecm.ErrNotVersionable)
}

func TestListByViewID(t *testing.T) {
	f := newFixture(t, "en", "de")
	f.provision(t)
	ctx := context.Background()

	en := ecm.NewContentItem(ecm.ContentTypeHTML, "about")
	en.ViewID = "about-page"
	en.Language = "en"
	require.NoError(t, f.svc.Save(ctx, client, en))

	de := ecm.NewContentItem(ecm.ContentTypeHTML, "about")
	de.ViewID = "about-page"
	de.Language = "de"
	de.Active = false
	require.NoError(t, f.svc.Save(ctx, client, de))

	tests := []struct {
		name       string
		viewID     string
		activeOnly bool
		language   string
		want       []string
	}{
		{"all variants", "about-page", false, "", []string{"/acme/html/de/about", "/acme/html/en/about"}},
		{"one language", "about-page", false, "de", []string{"/acme/html/de/about"}},
		{"active only", "about-page", true, "", []string{"/acme/html/en/about"}},
		{"active in language", "about-page", true, "de", []string{}},
		{"unknown view id", "missing", false, "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := f.svc.ListByViewID(ctx, tt.viewID, tt.activeOnly, tt.language)
			require.NoError(t, err)
			require.NotNil(t, items)
			assert.Equal(t, tt.want, paths(items))
		})
	}
}

func TestChildren(t *testing.T) {
	f := newFixture(t, "en", "de")
	f.provision(t)
	ctx := context.Background()

	folder := ecm.NewContentItem(ecm.ContentTypeFolder, "team")
	folder.ViewID = "team"
	require.NoError(t, f.svc.Save(ctx, client, folder))

	// a variant in another language must not be picked
	other := ecm.NewContentItem(ecm.ContentTypeFolder, "equipe")
	other.ViewID = "team"
	other.Language = "de"
	require.NoError(t, f.svc.Save(ctx, client, other))

	sub := ecm.NewContentItem(ecm.ContentTypeFolder, "sub")
	sub.ParentPath = folder.Path
	require.NoError(t, f.svc.Save(ctx, client, sub))

	hidden := ecm.NewContentItem(ecm.ContentTypeFolder, ".config")
	hidden.ParentPath = folder.Path
	hidden.System = true
	require.NoError(t, f.svc.Save(ctx, client, hidden))

	for _, parent := range []string{folder.Path, sub.Path, hidden.Path} {
		doc := document("doc.txt", parent)
		doc.ParentPath = parent
		require.NoError(t, f.svc.Save(ctx, client, doc))
	}

	items, err := f.svc.Children(ctx, "team")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/acme/documents/team/sub",
		"/acme/documents/team/sub/doc.txt",
		"/acme/documents/team/doc.txt",
	}, paths(items))

	_, err = f.svc.Children(ctx, "nobody")
	assert.ErrorIs(t, err, ecm.ErrNotFound)
}

func TestFolderContents(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	_, err := f.svc.EnsureFolderPath(ctx, client, "/a/b")
	require.NoError(t, err)
	doc := document("x.txt", "x")
	doc.ParentPath = "/acme/documents/a/b"
	require.NoError(t, f.svc.Save(ctx, client, doc))

	shallow, err := f.svc.FolderContents(ctx, "/acme/documents/a", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/acme/documents/a/b"}, paths(shallow))

	deep, err := f.svc.FolderContents(ctx, "/acme/documents/a", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"/acme/documents/a/b", "/acme/documents/a/b/x.txt"}, paths(deep))

	_, err = f.svc.FolderContents(ctx, "/acme/documents/zzz", false)
	assert.ErrorIs(t, err, ecm.ErrNotFound)
}

func TestEnsureFolderPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnsureFolderPath(ctx, client, "/x/y")
	assert.ErrorIs(t, err, ecm.ErrParentNotFound, "the documents root must exist")

	f.provision(t)
	got, err := f.svc.EnsureFolderPath(ctx, client, "/x/y")
	require.NoError(t, err)
	assert.Equal(t, "/x/y", got)

	got, err = f.svc.EnsureFolderPath(ctx, client, "/x/y")
	require.NoError(t, err)
	assert.Equal(t, "/x/y", got)

	contents, err := f.svc.FolderContents(ctx, "/acme/documents/x/y", false)
	require.NoError(t, err)
	assert.Empty(t, contents)

	folders, err := f.svc.FolderContents(ctx, "/acme/documents/x", false)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.NotEmpty(t, folders[0].ViewID)
	assert.Equal(t, ecm.ContentTypeFolder, folders[0].Type)
}

func TestProvisionClient(t *testing.T) {
	f := newFixture(t, "en", "de")
	ctx := context.Background()

	f.provision(t)
	f.provision(t)

	top, err := f.svc.FolderContents(ctx, "/acme", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"/acme/documents", "/acme/html", "/acme/images", "/acme/notifications", "/acme/tags",
	}, paths(top))

	for _, root := range []string{"/acme/html", "/acme/notifications"} {
		langs, err := f.svc.FolderContents(ctx, root, false)
		require.NoError(t, err)
		assert.Equal(t, []string{root + "/en", root + "/de"}, paths(langs))
	}
}

func TestSavingLanguageRootProvisionsLanguages(t *testing.T) {
	f := newFixture(t, "en", "fr")
	ctx := context.Background()

	for _, name := range []string{"acme", "html"} {
		folder := ecm.NewContentItem(ecm.ContentTypeFolder, name)
		if name == "acme" {
			folder.ParentPath = ecm.RootPath
		} else {
			folder.ParentPath = "/acme"
		}
		require.NoError(t, f.svc.Save(ctx, client, folder))
	}

	langs, err := f.svc.FolderContents(ctx, "/acme/html", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/acme/html/en", "/acme/html/fr"}, paths(langs))

	require.NoError(t, f.svc.ProvisionLanguageFolders(ctx, client, "/acme", "html"))
	require.NoError(t, f.svc.ProvisionLanguageFolders(ctx, client, "/acme", "images"))
	_, err = f.svc.Load(ctx, "/acme/images")
	assert.ErrorIs(t, err, ecm.ErrNotFound, "other folder names are ignored")
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	_, err := f.svc.EnsureFolderPath(ctx, client, "/old")
	require.NoError(t, err)
	versioned := document("v.txt", "a", ecm.WithVersioning())
	versioned.ParentPath = "/acme/documents/old"
	require.NoError(t, f.svc.Save(ctx, client, versioned))
	versioned.Binary = &ecm.Binary{Data: []byte("b"), MimeType: "text/plain"}
	require.NoError(t, f.svc.Save(ctx, client, versioned))
	plain := document("p.txt", "p")
	plain.ParentPath = "/acme/documents/old"
	require.NoError(t, f.svc.Save(ctx, client, plain))
	require.Equal(t, 3, f.blobs.Len())

	require.NoError(t, f.svc.Delete(ctx, "/acme/documents/old"))
	assert.Zero(t, f.blobs.Len(), "payloads of the subtree and its versions are removed")

	_, err = f.svc.Load(ctx, versioned.Path)
	assert.ErrorIs(t, err, ecm.ErrNotFound)
	items, err := f.svc.ListByViewID(ctx, plain.ViewID, false, "")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Contains(t, f.events.Events(), "deleted /acme/documents/old")

	assert.ErrorIs(t, f.svc.Delete(ctx, "/acme/documents/old"), ecm.ErrNotFound)
	assert.Error(t, f.svc.Delete(ctx, "/"))
}

func TestRegisterTypeDefinitions(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RegisterTypeDefinitions(ctx, strings.NewReader(`
node_types:
  - name: ecm:folder
  - name: ecm:html
mixins:
  - name: ecm:managed
`)))

	err := f.svc.Save(ctx, client, document("a.txt", "x"))
	assert.ErrorIs(t, err, ecm.ErrUnknownNodeType)

	err = f.svc.Save(ctx, client, document("b.txt", "x", ecm.WithVersioning()))
	assert.ErrorIs(t, err, ecm.ErrUnknownNodeType)

	folder := ecm.NewContentItem(ecm.ContentTypeFolder, "allowed")
	assert.NoError(t, f.svc.Save(ctx, client, folder))

	require.NoError(t, f.svc.RegisterTypeDefinitions(ctx, strings.NewReader(`
node_types:
  - name: ecm:document
mixins:
  - name: mix:versionable
`)))
	assert.NoError(t, f.svc.Save(ctx, client, document("b.txt", "x", ecm.WithVersioning())))

	err = f.svc.RegisterTypeDefinitions(ctx, strings.NewReader("node_types:\n  - name: a\n    supertypes: [b]\n"))
	assert.Error(t, err)
}

func TestStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.svc.Save(ctx, client, document("a.txt", "x"))
	assert.ErrorIs(t, err, ecm.ErrStoreUnavailable)

	_, err = f.svc.Load(ctx, "/")
	assert.ErrorIs(t, err, ecm.ErrStoreUnavailable)

	_, err = f.svc.ListByViewID(ctx, "x", false, "")
	assert.ErrorIs(t, err, ecm.ErrStoreUnavailable)
}

func TestSessionsReleasedOnErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_ = f.svc.Save(ctx, client, document("a.txt", "x"))
	_, _ = f.svc.Load(ctx, "/missing")
	_ = f.svc.Delete(ctx, "/missing")
	_, _ = f.svc.Children(ctx, "missing")
	_, _ = f.svc.FolderContents(ctx, "/missing", true)
	_, _ = f.svc.ContentVersions(ctx, "/missing")
	_ = f.svc.DeleteVersion(ctx, "/missing", "1.0")
	_, _ = f.svc.EnsureFolderPath(ctx, client, "/a")
	_ = f.svc.RegisterTypeDefinitions(ctx, strings.NewReader("::"))

	assert.Zero(t, f.store.OpenSessions())
}

func TestEventSinkFailuresAreNotReturned(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	f.events.fail = true
	ctx := context.Background()

	item := document("a.txt", "x")
	require.NoError(t, f.svc.Save(ctx, client, item))
	item.Name = "b.txt"
	require.NoError(t, f.svc.Save(ctx, client, item))
	require.NoError(t, f.svc.Delete(ctx, item.Path))
	assert.Len(t, f.events.Events(), 4)
}

func TestSaveWithoutBlobStore(t *testing.T) {
	store := memory.New()
	svc, err := ecm.New(ecm.WithStore(store))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, svc.ProvisionClient(ctx, client))

	page := ecm.NewContentItem(ecm.ContentTypeTag, "news")
	require.NoError(t, svc.Save(ctx, client, page))
	assert.Equal(t, "/acme/tags/news", page.Path)

	err = svc.Save(ctx, client, document("a.txt", "x"))
	assert.Error(t, err)
	assert.Zero(t, store.OpenSessions())
}
