// Package storagetest holds a behavioural suite shared by every
// storage.Repository backend. Database-backed packages run it only when a
// DSN is supplied through the environment.
package storagetest

import (
	"context"
	"testing"

	"github.com/amirmursal/medinet-process-data/internal/query"
	"github.com/amirmursal/medinet-process-data/internal/record"
	"github.com/amirmursal/medinet-process-data/internal/storage"
)

// Seed is the fixture every backend is checked against.
var Seed = []record.Record{
	{"Patient_Name": "Alice", "Chart_ID": "C1", "Age": 30.0, "Active": true},
	{"Patient_Name": "Bob", "Chart_ID": "42", "Age": 50.0, "Active": false},
	{"Patient_Name": "Alicia", "Chart_ID": "C3", "Age": 42.0},
}

// Case is one search over Seed and the names it must return in order.
type Case struct {
	Name  string
	Conds []query.Condition
	Want  []string
}

// Cases lists the searches run by Run.
var Cases = []Case{
	{"contains is case-insensitive", []query.Condition{{Field: "Patient_Name", Operator: query.OpContains, Value: "ALI"}}, []string{"Alice", "Alicia"}},
	{"text equality", []query.Condition{{Field: "Chart_ID", Operator: query.OpEquals, Value: "C1"}}, []string{"Alice"}},
	{"numeric equality skips text", []query.Condition{{Field: "Chart_ID", Operator: query.OpEquals, Value: "42"}}, nil},
	{"numeric equality", []query.Condition{{Field: "Age", Operator: query.OpEquals, Value: "42"}}, []string{"Alicia"}},
	{"greater than", []query.Condition{{Field: "Age", Operator: query.OpGreaterThan, Value: "35"}}, []string{"Bob", "Alicia"}},
	{"less than", []query.Condition{{Field: "Age", Operator: query.OpLessThan, Value: "35"}}, []string{"Alice"}},
	{"contains on bool", []query.Condition{{Field: "Active", Operator: query.OpContains, Value: "tru"}}, []string{"Alice"}},
	{"metacharacters are literal", []query.Condition{{Field: "Patient_Name", Operator: query.OpContains, Value: "Al.ce"}}, nil},
	{"conjunction", []query.Condition{
		{Field: "Patient_Name", Operator: query.OpContains, Value: "ali"},
		{Field: "Age", Operator: query.OpGreaterThan, Value: "35"},
	}, []string{"Alicia"}},
	{"no conditions", nil, nil},
}

// Run seeds repo, which must be empty, and checks search and delete
// behaviour. It leaves the repository empty again.
func Run(t *testing.T, repo storage.Repository) {
	t.Helper()
	ctx := context.Background()

	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if n, err := repo.InsertMany(ctx, nil); err != nil || n != 0 {
		t.Fatalf("InsertMany(nil) = (%d, %v), want (0, nil)", n, err)
	}
	n, err := repo.InsertMany(ctx, Seed)
	if err != nil || n != int64(len(Seed)) {
		t.Fatalf("InsertMany = (%d, %v), want (%d, nil)", n, err, len(Seed))
	}

	for _, c := range Cases {
		got, err := repo.Find(ctx, query.Compile(c.Conds))
		if err != nil {
			t.Fatalf("%s: Find: %v", c.Name, err)
		}
		if !sameNames(got, c.Want) {
			t.Fatalf("%s: got %v, want %v", c.Name, Names(got), c.Want)
		}
	}

	all, err := repo.Find(ctx, query.All{})
	if err != nil {
		t.Fatalf("Find(All): %v", err)
	}
	if !sameNames(all, []string{"Alice", "Bob", "Alicia"}) {
		t.Fatalf("Find(All) = %v, want insertion order", Names(all))
	}
	for _, s := range all {
		if s.ID == "" {
			t.Fatalf("record without id: %#v", s)
		}
		if n, err := repo.DeleteByID(ctx, s.ID); err != nil || n != 1 {
			t.Fatalf("DeleteByID(%s) = (%d, %v), want (1, nil)", s.ID, n, err)
		}
	}
	if n, err := repo.DeleteByID(ctx, all[0].ID); err != nil || n != 0 {
		t.Fatalf("DeleteByID(absent) = (%d, %v), want (0, nil)", n, err)
	}
	rest, err := repo.Find(ctx, query.All{})
	if err != nil || len(rest) != 0 {
		t.Fatalf("after deletes Find(All) = (%v, %v), want empty", Names(rest), err)
	}
}

// Names returns the Patient_Name of each record.
func Names(recs []record.Stored) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		s, _ := r.Fields["Patient_Name"].(string)
		out = append(out, s)
	}
	return out
}

func sameNames(recs []record.Stored, want []string) bool {
	got := Names(recs)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
