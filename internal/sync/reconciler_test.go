package sync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/matheus3301/wabot/internal/bus"
	"github.com/matheus3301/wabot/internal/store"
	"github.com/matheus3301/wabot/internal/transport"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMerge(t *testing.T) {
	cache := []store.Contact{
		{JID: "1@s.whatsapp.net", Name: "Ani", Phone: "1", UnreadCount: 3, LastMessagePreview: "halo"},
		{JID: "2@s.whatsapp.net", Name: "Budi", Phone: "2"},
	}
	snapshot := []transport.RawContact{
		{ID: "2@s.whatsapp.net", Name: "Budi Santoso"},
		{ID: "1@s.whatsapp.net"},
		{ID: "120363@g.us", Name: "Arisan"},
		{ID: "status@broadcast"},
		{ID: "1203@newsletter", Name: "News"},
		{ID: "3:4@s.whatsapp.net", Notify: "Cici"},
		{JID: "4@lid", VerifiedName: "Toko D"},
		{ID: "5@s.whatsapp.net", Name: "first"},
		{ID: "5@s.whatsapp.net", Name: "second"},
		{ID: ""},
	}

	got := Merge(cache, snapshot)
	want := []store.Contact{
		{JID: "1@s.whatsapp.net", Name: "Ani", Phone: "1", UnreadCount: 3, LastMessagePreview: "halo"},
		{JID: "2@s.whatsapp.net", Name: "Budi Santoso", Phone: "2"},
		{JID: "3:4@s.whatsapp.net", Name: "Cici", Phone: "3"},
		{JID: "4@lid", Name: "Toko D", Phone: "4"},
		{JID: "5@s.whatsapp.net", Name: "second", Phone: "5"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeContainsEveryIdentityOnce(t *testing.T) {
	cache := []store.Contact{
		{JID: "a@s.whatsapp.net", Name: "A"},
		{JID: "b@s.whatsapp.net", Name: "B"},
		{JID: "group@g.us", Name: "G"},
	}
	snapshot := []transport.RawContact{
		{ID: "b@s.whatsapp.net"},
		{ID: "c@s.whatsapp.net"},
		{ID: "c@s.whatsapp.net"},
		{ID: "a@s.whatsapp.net", Notify: ""},
	}
	got := Merge(cache, snapshot)

	seen := map[string]int{}
	for _, c := range got {
		seen[c.JID]++
	}
	for _, id := range []string{"a@s.whatsapp.net", "b@s.whatsapp.net", "c@s.whatsapp.net"} {
		if seen[id] != 1 {
			t.Errorf("%s appears %d times, want 1", id, seen[id])
		}
	}
	if seen["group@g.us"] != 0 {
		t.Error("group identities must not survive a merge")
	}
	for _, c := range got {
		if c.JID == "a@s.whatsapp.net" && c.Name != "A" {
			t.Errorf("cached name lost: %q", c.Name)
		}
	}
}

func TestMergeEmptyInputs(t *testing.T) {
	if got := Merge(nil, nil); len(got) != 0 {
		t.Errorf("Merge(nil, nil) = %v", got)
	}
}

func TestReconcilerPersistsMerge(t *testing.T) {
	db := testDB(t)
	r := NewReconciler(db, nil, nil, time.Minute)

	if err := db.SaveContacts([]store.Contact{{JID: "1@s.whatsapp.net", Name: "Ani", Phone: "1"}}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordInbound("1@s.whatsapp.net", "pesan", 10); err != nil {
		t.Fatal(err)
	}

	r.BeginSync()
	res, err := r.Merge(transport.ContactSnapshot{Valid: true, Contacts: []transport.RawContact{
		{ID: "1@s.whatsapp.net"},
		{ID: "2@s.whatsapp.net", Name: "Budi"},
	}})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Total != 2 || res.Added != 1 {
		t.Errorf("result = %+v, want total 2 added 1", res)
	}
	if r.Syncing() {
		t.Error("snapshot should end the sync")
	}

	list, _ := db.ListContacts()
	if len(list) != 2 || list[0].Name != "Ani" || list[0].UnreadCount != 1 || list[1].Name != "Budi" {
		t.Errorf("contacts = %+v", list)
	}
}

func TestReconcilerIgnoresInvalidSnapshot(t *testing.T) {
	db := testDB(t)
	r := NewReconciler(db, nil, nil, time.Minute)
	r.BeginSync()

	if _, err := r.Merge(transport.ContactSnapshot{Valid: false}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if r.Syncing() {
		t.Error("invalid snapshot should still end the sync")
	}
	if n, _ := db.ContactCount(); n != 0 {
		t.Errorf("contacts = %d, want 0", n)
	}
}

func TestSyncTimeoutClearsOnce(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindSyncTimeout, 4)
	defer unsub()

	r := NewReconciler(testDB(t), b, nil, 20*time.Millisecond)
	r.BeginSync()
	if !r.Syncing() {
		t.Fatal("BeginSync should set syncing")
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout event not published")
	}
	if r.Syncing() {
		t.Error("syncing should be cleared after the timeout")
	}

	select {
	case evt := <-ch:
		t.Errorf("timeout published twice: %v", evt)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestSnapshotBeforeTimeoutCancelsIt(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindSyncTimeout, 4)
	defer unsub()

	r := NewReconciler(testDB(t), b, nil, 30*time.Millisecond)
	r.BeginSync()
	if _, err := r.Merge(transport.ContactSnapshot{Valid: true}); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		t.Errorf("timeout fired after snapshot: %v", evt)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestRepeatedBeginSyncRearms(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindSyncTimeout, 4)
	defer unsub()

	r := NewReconciler(testDB(t), b, nil, 40*time.Millisecond)
	r.BeginSync()
	time.Sleep(20 * time.Millisecond)
	r.BeginSync()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout event not published")
	}
	select {
	case <-ch:
		t.Error("superseded timer must not fire")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestEnsureContact(t *testing.T) {
	db := testDB(t)
	r := NewReconciler(db, nil, nil, 0)

	c, err := r.EnsureContact("628123@s.whatsapp.net", "Dewi")
	if err != nil {
		t.Fatal(err)
	}
	if c.Phone != "628123" || c.Name != "Dewi" {
		t.Errorf("contact = %+v", c)
	}

	c, _ = r.EnsureContact("628123@s.whatsapp.net", "Other")
	if c.Name != "Dewi" {
		t.Errorf("existing contact must not be renamed, got %q", c.Name)
	}

	ok, err := r.DeleteContact("628123@s.whatsapp.net")
	if err != nil || !ok {
		t.Errorf("DeleteContact = %v, %v", ok, err)
	}
}
