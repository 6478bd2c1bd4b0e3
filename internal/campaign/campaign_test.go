package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/candidate"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/pgtest"
	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
)

// storeFactories return a Store plus the candidate ids recipients may use.
var storeFactories = map[string]func(t *testing.T) (Store, []int64){
	"memory": func(t *testing.T) (Store, []int64) {
		return NewMemoryStore(), []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	},
	"postgres": func(t *testing.T) (Store, []int64) {
		db := pgtest.Open(t)
		repo := candidate.NewPostgresRepository(db)
		var ids []int64
		for _, p := range candidate.DemoProfiles(12) {
			id, err := repo.Insert(context.Background(), p)
			if err != nil {
				t.Fatalf("seeding candidate: %v", err)
			}
			ids = append(ids, id)
		}
		return NewPostgresStore(db), ids
	},
}

func forEachStore(t *testing.T, fn func(t *testing.T, store Store, candidateIDs []int64)) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store, ids := factory(t)
			fn(t, store, ids)
		})
	}
}

func seedDemo(t *testing.T, store Store, accountID int64, candidateIDs []int64) map[string]int64 {
	t.Helper()
	ids := make(map[string]int64)
	for _, d := range DemoCampaigns(candidateIDs, time.Now().UTC()) {
		id, err := store.Insert(context.Background(), accountID, d)
		if err != nil {
			t.Fatalf("Insert(%s): %v", d.Name, err)
		}
		ids[d.Name] = id
	}
	return ids
}

func TestListWithStats(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, candidateIDs []int64) {
		ctx := context.Background()
		seedDemo(t, store, 1, candidateIDs)
		svc := NewService(store)

		list, err := svc.List(ctx, 1)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(list) != 4 {
			t.Fatalf("got %d campaigns, want 4", len(list))
		}
		if list[0].Name != "Mobile Lead Hunting" || list[3].Name != "Q1 Frontend Recruitment" {
			t.Errorf("order = %s ... %s, want newest first", list[0].Name, list[3].Name)
		}

		byName := make(map[string]Campaign)
		for _, c := range list {
			if c.Stats == nil {
				t.Fatalf("campaign %s has no stats", c.Name)
			}
			byName[c.Name] = c
		}
		active := byName["Q1 Frontend Recruitment"].Stats
		want := Stats{Sent: 10, Opened: 8, Replied: 3, OpenRate: 80, ReplyRate: 30}
		if *active != want {
			t.Errorf("active stats = %+v, want %+v", *active, want)
		}
		if draft := byName["Mobile Lead Hunting"].Stats; draft.Sent != 0 || draft.OpenRate != 0 {
			t.Errorf("draft stats = %+v", *draft)
		}

		other, err := svc.List(ctx, 2)
		if err != nil || len(other) != 0 {
			t.Errorf("other account = %+v, %v", other, err)
		}
	})
}

func TestCreate(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, _ []int64) {
		ctx := context.Background()
		svc := NewService(store)

		c, err := svc.Create(ctx, 1, NewCampaign{Name: "  Staff SRE Search ", Type: TypeLinkedIn})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if c.ID == 0 || c.Name != "Staff SRE Search" || c.Status != StatusDraft || c.Type != TypeLinkedIn || c.CreatedAt.IsZero() {
			t.Errorf("created = %+v", c)
		}

		c, err = svc.Create(ctx, 1, NewCampaign{Name: "Default type"})
		if err != nil || c.Type != TypeEmail {
			t.Errorf("default type = %+v, %v", c, err)
		}

		if _, err := svc.Create(ctx, 1, NewCampaign{Name: "Staff SRE Search"}); !errors.Is(err, apperrors.ErrConflict) {
			t.Errorf("duplicate err = %v, want ErrConflict", err)
		}
		if _, err := svc.Create(ctx, 2, NewCampaign{Name: "Staff SRE Search"}); err != nil {
			t.Errorf("same name on another account: %v", err)
		}

		list, _ := svc.List(ctx, 1)
		if len(list) != 2 || list[0].Stats == nil || list[0].Stats.Sent != 0 {
			t.Errorf("list after create = %+v", list)
		}
	})
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(NewMemoryStore())
	long := make([]byte, maxNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	for _, n := range []NewCampaign{
		{Name: ""},
		{Name: "   "},
		{Name: string(long)},
		{Name: "ok", Type: "sms"},
	} {
		if _, err := svc.Create(context.Background(), 1, n); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("Create(%+v) err = %v, want ErrInvalidInput", n, err)
		}
	}
}

func TestSequences(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, candidateIDs []int64) {
		ctx := context.Background()
		ids := seedDemo(t, store, 1, candidateIDs)
		svc := NewService(store)

		seqs, err := svc.Sequences(ctx, 1, ids["Q1 Frontend Recruitment"])
		if err != nil {
			t.Fatalf("Sequences: %v", err)
		}
		if len(seqs) != 1 {
			t.Fatalf("got %d sequences, want 1", len(seqs))
		}
		seq := seqs[0]
		if seq.Name != "Q1 Frontend Recruitment Primary Sequence" || seq.Subject != "Job Opportunity at TechCorp" {
			t.Errorf("sequence = %+v", seq)
		}
		if len(seq.Steps) != 2 || seq.Steps[0].Order != 1 || seq.Steps[1].Order != 2 || seq.Steps[1].DelayDays != 3 {
			t.Errorf("steps = %+v", seq.Steps)
		}
		for _, st := range seq.Steps {
			if st.SequenceID != seq.ID || st.Body == "" {
				t.Errorf("step = %+v", st)
			}
		}

		seqs, err = svc.Sequences(ctx, 1, ids["Senior Backend Drive"])
		if err != nil || seqs == nil || len(seqs) != 0 {
			t.Errorf("linkedin sequences = %+v, %v", seqs, err)
		}

		if _, err := svc.Sequences(ctx, 2, ids["Q1 Frontend Recruitment"]); !errors.Is(err, apperrors.ErrNotFound) {
			t.Errorf("foreign campaign err = %v, want ErrNotFound", err)
		}
		if _, err := svc.Sequences(ctx, 1, 9999); !errors.Is(err, apperrors.ErrNotFound) {
			t.Errorf("unknown campaign err = %v, want ErrNotFound", err)
		}
		if _, err := svc.Sequences(ctx, 1, 0); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("zero id err = %v, want ErrInvalidInput", err)
		}
	})
}

func TestDemoRecipientsCapAtTen(t *testing.T) {
	rs := demoRecipients([]int64{1, 2, 3}, time.Now())
	if len(rs) != 3 {
		t.Errorf("got %d recipients from 3 candidates", len(rs))
	}
	ids := make([]int64, 20)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	if rs := demoRecipients(ids, time.Now()); len(rs) != recipientsPerCampaign {
		t.Errorf("got %d recipients, want %d", len(rs), recipientsPerCampaign)
	}
}

func TestPercentRounding(t *testing.T) {
	if got := newStats(3, 1, 0).OpenRate; got != 33.3 {
		t.Errorf("1/3 open rate = %v, want 33.3", got)
	}
	if got := newStats(0, 0, 0); got.OpenRate != 0 || got.ReplyRate != 0 {
		t.Errorf("empty stats = %+v", *got)
	}
}
