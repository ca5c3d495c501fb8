package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"slices"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != SchemaVersion || result.From != SchemaVersion {
		t.Errorf("result = %+v, want from=version=%d", result, SchemaVersion)
	}
}

func TestMigrateFromScratch(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Changed || result.From != 0 || result.Version != SchemaVersion {
		t.Errorf("result = %+v", result)
	}
}

func TestMigrateRefusesDirtySchema(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); !errors.Is(err, ErrDirtySchema) {
		t.Fatalf("Migrate() err = %v, want ErrDirtySchema", err)
	}
}

func TestInTxRollsBack(t *testing.T) {
	db := testDB(t)
	boom := errors.New("boom")

	err := db.InTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO settings (key, value) VALUES ('k', 'v')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx err = %v", err)
	}
	if _, ok, _ := db.GetSetting("k"); ok {
		t.Error("write survived a failed transaction")
	}
}

func TestSaveContactsKeepsUnreadAndOrder(t *testing.T) {
	db := testDB(t)

	if err := db.SaveContacts([]Contact{
		{JID: "1@s.whatsapp.net", Name: "Ana", Phone: "1"},
		{JID: "2@s.whatsapp.net", Name: "Budi", Phone: "2"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordInbound("2@s.whatsapp.net", "halo", 1000); err != nil {
		t.Fatal(err)
	}

	// Re-save in a different order with a zero unread count: the counter must survive.
	if err := db.SaveContacts([]Contact{
		{JID: "2@s.whatsapp.net", Name: "Budi S", Phone: "2"},
		{JID: "1@s.whatsapp.net", Name: "Ana", Phone: "1"},
	}); err != nil {
		t.Fatal(err)
	}

	contacts, err := db.ListContacts()
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != 2 {
		t.Fatalf("got %d contacts, want 2", len(contacts))
	}
	if contacts[0].JID != "2@s.whatsapp.net" || contacts[0].Name != "Budi S" {
		t.Errorf("first = %+v, want Budi S", contacts[0])
	}
	if contacts[0].UnreadCount != 1 || contacts[0].LastMessagePreview != "halo" {
		t.Errorf("unread/preview lost: %+v", contacts[0])
	}
}

func TestEnsureContact(t *testing.T) {
	db := testDB(t)

	created, err := db.EnsureContact(&Contact{JID: "9@s.whatsapp.net", Phone: "9"})
	if err != nil || !created {
		t.Fatalf("EnsureContact() = %v, %v; want created", created, err)
	}
	created, err = db.EnsureContact(&Contact{JID: "9@s.whatsapp.net", Name: "Other"})
	if err != nil || created {
		t.Fatalf("second EnsureContact() = %v, %v; want not created", created, err)
	}
	c, err := db.GetContact("9@s.whatsapp.net")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Name != "" || c.Phone != "9" {
		t.Errorf("got %+v, want untouched row", c)
	}
}

func TestSearchContacts(t *testing.T) {
	db := testDB(t)
	if err := db.SaveContacts([]Contact{
		{JID: "628111@s.whatsapp.net", Name: "Siti Aminah", Phone: "628111"},
		{JID: "628222@s.whatsapp.net", Name: "Joko", Phone: "628222"},
		{JID: "100_1@s.whatsapp.net", Name: "", Phone: "100_1"},
	}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		term string
		want []string
	}{
		{"siti", []string{"628111@s.whatsapp.net"}},
		{"222", []string{"628222@s.whatsapp.net"}},
		{"6282", []string{"628222@s.whatsapp.net"}},
		{"_", []string{"100_1@s.whatsapp.net"}},
		{"", []string{"628111@s.whatsapp.net", "628222@s.whatsapp.net", "100_1@s.whatsapp.net"}},
		{"nobody", nil},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			got, err := db.SearchContacts(tt.term)
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, c := range got {
				ids = append(ids, c.JID)
			}
			if !slices.Equal(ids, tt.want) {
				t.Errorf("SearchContacts(%q) = %v, want %v", tt.term, ids, tt.want)
			}
		})
	}
}

func TestAppendMessageImmutable(t *testing.T) {
	db := testDB(t)

	msg := &Message{ChatJID: "chat@s", MsgID: "m1", Body: "hello", Timestamp: 1000, Buttons: []string{"Ya", "Tidak"}}
	inserted, err := db.AppendMessage(msg)
	if err != nil || !inserted {
		t.Fatalf("AppendMessage() = %v, %v", inserted, err)
	}
	dup := &Message{ChatJID: "chat@s", MsgID: "m1", Body: "changed", Timestamp: 2000}
	inserted, err = db.AppendMessage(dup)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("duplicate append reported as inserted")
	}

	msgs, err := db.ListMessages("chat@s", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Body != "hello" {
		t.Errorf("body = %q, want original hello", msgs[0].Body)
	}
	if !slices.Equal(msgs[0].Buttons, []string{"Ya", "Tidak"}) {
		t.Errorf("buttons = %v", msgs[0].Buttons)
	}
}

func TestListMessagesArrivalOrder(t *testing.T) {
	db := testDB(t)

	// Timestamps deliberately out of order: listing follows arrival.
	for i, ts := range []int64{3000, 1000, 2000} {
		m := &Message{ChatJID: "c@s", MsgID: string(rune('a' + i)), Body: "x", Timestamp: ts}
		if _, err := db.AppendMessage(m); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := db.ListMessages("c@s", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].MsgID != "b" || msgs[1].MsgID != "c" {
		t.Errorf("got %+v, want last two in arrival order [b c]", msgs)
	}

	n, err := db.ClearConversation("c@s")
	if err != nil || n != 3 {
		t.Errorf("ClearConversation() = %d, %v; want 3", n, err)
	}
}

func TestOutbox(t *testing.T) {
	db := testDB(t)

	entry := &OutboxEntry{ClientMsgID: "client1", ChatJID: "chat@s", Body: "test msg", Buttons: []string{"OK"}}
	if err := db.QueueOutbox(entry); err != nil {
		t.Fatal(err)
	}
	if entry.Origin != "manual" {
		t.Errorf("origin = %q, want manual default", entry.Origin)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ClientMsgID != "client1" {
		t.Fatalf("pending = %+v", pending)
	}
	if !slices.Equal(pending[0].Buttons, []string{"OK"}) {
		t.Errorf("buttons = %v", pending[0].Buttons)
	}

	if err := db.MarkOutboxSending("client1"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSent("client1", "server1"); err != nil {
		t.Fatal(err)
	}

	pending, err = db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending after sent, want 0", len(pending))
	}
}

func TestFailStale(t *testing.T) {
	db := testDB(t)
	if err := db.QueueOutbox(&OutboxEntry{ClientMsgID: "c1", ChatJID: "x@s", Body: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSending("c1"); err != nil {
		t.Fatal(err)
	}
	n, err := db.FailStale()
	if err != nil || n != 1 {
		t.Fatalf("FailStale() = %d, %v; want 1", n, err)
	}
	pending, _ := db.PendingOutbox()
	if len(pending) != 0 {
		t.Errorf("stale entry was requeued: %+v", pending)
	}
}

func TestGroups(t *testing.T) {
	db := testDB(t)

	g := &CampaignGroup{ID: "g1", Name: "VIP", Members: []string{"1@s.whatsapp.net", "ghost@s.whatsapp.net"}, CreatedAt: 10}
	if err := db.CreateGroup(g); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetGroup("g1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !slices.Equal(got.Members, g.Members) {
		t.Fatalf("GetGroup() = %+v", got)
	}

	g.Name = "VVIP"
	g.Members = []string{"2@s.whatsapp.net"}
	if ok, err := db.UpdateGroup(g); err != nil || !ok {
		t.Fatalf("UpdateGroup() = %v, %v", ok, err)
	}
	groups, err := db.ListGroups()
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || groups[0].Name != "VVIP" {
		t.Errorf("ListGroups() = %+v", groups)
	}

	if ok, _ := db.DeleteGroup("g1"); !ok {
		t.Error("DeleteGroup() reported missing")
	}
	if got, _ := db.GetGroup("g1"); got != nil {
		t.Error("group still present after delete")
	}
	if ok, _ := db.UpdateGroup(g); ok {
		t.Error("UpdateGroup() on deleted group reported success")
	}
}

func TestBlastHistory(t *testing.T) {
	db := testDB(t)

	first := &BlastRecord{ID: "b1", CampaignLabel: "Promo", Message: "Diskon", Recipients: []string{"1@s"}, Status: BlastCompleted, DispatchedAt: 100}
	second := &BlastRecord{ID: "b2", CampaignLabel: "Promo (Resend)", Message: "Diskon", Recipients: []string{"1@s"}, Status: BlastCompleted, DispatchedAt: 200}
	for _, r := range []*BlastRecord{first, second} {
		if err := db.InsertBlast(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.InsertBlast(first); err == nil {
		t.Error("re-inserting an existing record should fail")
	}

	list, err := db.ListBlasts()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "b2" {
		t.Fatalf("ListBlasts() = %+v, want newest first", list)
	}
	latest, err := db.LatestBlastTime()
	if err != nil || latest != 200 {
		t.Errorf("LatestBlastTime() = %d, %v", latest, err)
	}

	if ok, _ := db.DeleteBlast("b1"); !ok {
		t.Error("DeleteBlast() reported missing")
	}
	if got, _ := db.GetBlast("b1"); got != nil {
		t.Error("record still present after delete")
	}
}

func TestSettings(t *testing.T) {
	db := testDB(t)

	if _, ok, err := db.GetSetting("active_tab"); err != nil || ok {
		t.Fatalf("GetSetting() on empty = %v, %v", ok, err)
	}
	if err := db.PutSetting("active_tab", `"blast"`); err != nil {
		t.Fatal(err)
	}
	if err := db.PutSetting("active_tab", `"chats"`); err != nil {
		t.Fatal(err)
	}
	v, ok, err := db.GetSetting("active_tab")
	if err != nil || !ok || v != `"chats"` {
		t.Errorf("GetSetting() = %q, %v, %v; want last write", v, ok, err)
	}
}
