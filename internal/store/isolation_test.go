package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wellbridge/careguard/internal/llm"
	"github.com/wellbridge/careguard/internal/types"
)

// openTestGateway connects to a migrated database named by
// CAREGUARD_TEST_DATABASE_URL. The connecting role must not be a superuser,
// otherwise row-level security is bypassed.
func openTestGateway(t *testing.T) *Gateway {
	t.Helper()
	dsn := os.Getenv("CAREGUARD_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CAREGUARD_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := NewPoolFromURL(ctx, dsn)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return New(pool)
}

func unitVector(i int) []float32 {
	v := make([]float32, llm.EmbeddingDimensions)
	v[i] = 1
	return v
}

func TestCrossTenantIsolation(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()

	suffix := uuid.NewString()
	a := types.TenantContext{TenantID: "tenant-a-" + suffix, UserID: "user-1"}
	b := types.TenantContext{TenantID: "tenant-b-" + suffix, UserID: "user-1"}

	session, err := g.CreateSession(ctx, a, "labs")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := g.SaveMessage(ctx, a, types.Message{SessionID: session.ID, Role: types.RoleUser, Content: "cholesterol?"}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	if _, err := g.InsertRecord(ctx, a, types.Record{
		Title:      "Lipid panel",
		Content:    "Total cholesterol 212 mg/dL. LDL 140 mg/dL.",
		RecordType: "lab_result",
	}, unitVector(0)); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	if _, err := g.InsertViolation(ctx, a, types.Violation{SessionID: session.ID, RawResponse: "I recommend statins.", RuleID: "I_recommend"}); err != nil {
		t.Fatalf("InsertViolation: %v", err)
	}
	err = g.Scoped(ctx, a, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO appointments (tenant_id, user_id, title, starts_at) VALUES ($1, $2, $3, $4)`,
			a.TenantID, a.UserID, "Cardiology follow-up", time.Now().Add(48*time.Hour))
		return err
	})
	if err != nil {
		t.Fatalf("insert appointment: %v", err)
	}

	// Tenant A sees its own data.
	recs, err := g.FullTextSearch(ctx, a, "cholesterol", 8)
	if err != nil || len(recs) != 1 {
		t.Fatalf("owner FullTextSearch = %d rows, %v; want 1", len(recs), err)
	}
	recs, err = g.SemanticSearch(ctx, a, unitVector(0), 0.35, 8)
	if err != nil || len(recs) != 1 {
		t.Fatalf("owner SemanticSearch = %d rows, %v; want 1", len(recs), err)
	}
	if recs[0].Similarity < 0.99 {
		t.Errorf("expected similarity near 1, got %v", recs[0].Similarity)
	}

	// Tenant B sees nothing through any read.
	if recs, err := g.FullTextSearch(ctx, b, "cholesterol", 8); err != nil || len(recs) != 0 {
		t.Errorf("FullTextSearch leaked %d rows (err %v)", len(recs), err)
	}
	if recs, err := g.SemanticSearch(ctx, b, unitVector(0), 0.0, 8); err != nil || len(recs) != 0 {
		t.Errorf("SemanticSearch leaked %d rows (err %v)", len(recs), err)
	}
	if recs, err := g.RecentRecords(ctx, b, 5); err != nil || len(recs) != 0 {
		t.Errorf("RecentRecords leaked %d rows (err %v)", len(recs), err)
	}
	if msgs, err := g.History(ctx, b, session.ID, 10); err != nil || len(msgs) != 0 {
		t.Errorf("History leaked %d rows (err %v)", len(msgs), err)
	}
	if ss, err := g.ListSessions(ctx, b, 10); err != nil || len(ss) != 0 {
		t.Errorf("ListSessions leaked %d rows (err %v)", len(ss), err)
	}
	if ok, err := g.SessionExists(ctx, b, session.ID); err != nil || ok {
		t.Errorf("SessionExists leaked session (err %v)", err)
	}
	if appts, err := g.UpcomingAppointments(ctx, b, 5); err != nil || len(appts) != 0 {
		t.Errorf("UpcomingAppointments leaked %d rows (err %v)", len(appts), err)
	}
	auditorB := types.TenantContext{TenantID: b.TenantID, UserID: "auditor", Role: types.RoleAuditor}
	if vs, err := g.ListViolations(ctx, auditorB, time.Time{}, time.Now().Add(time.Hour), 10); err != nil || len(vs) != 0 {
		t.Errorf("ListViolations leaked %d rows (err %v)", len(vs), err)
	}

	// Row-level security alone hides tenant A, even with no tenant filter in the query.
	assertNoVisibleRows(t, g, b)

	// Writing into a foreign session is indistinguishable from a missing one.
	_, err = g.SaveMessage(ctx, b, types.Message{SessionID: session.ID, Role: types.RoleUser, Content: "hi"})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound writing to foreign session, got %v", err)
	}
}

var tenantTables = []string{"sessions", "messages", "records", "appointments", "guardrail_violations"}

// assertNoVisibleRows counts every tenant table without a WHERE clause
// inside tc's scope.
func assertNoVisibleRows(t *testing.T, g *Gateway, tc types.TenantContext) {
	t.Helper()
	ctx := context.Background()
	auditor := tc
	auditor.Role = types.RoleAuditor
	for _, scope := range []types.TenantContext{tc, auditor} {
		err := g.Scoped(ctx, scope, func(tx pgx.Tx) error {
			for _, table := range tenantTables {
				var n int
				if err := tx.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
					return err
				}
				if n != 0 {
					t.Errorf("%s (role %q): unfiltered count saw %d foreign rows", table, scope.Role, n)
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("scoped count: %v", err)
		}
	}
}

func TestUnboundScopeSeesNoRows(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()

	tc := types.TenantContext{TenantID: "tenant-" + uuid.NewString(), UserID: "user-1"}
	if _, err := g.CreateSession(ctx, tc, "labs"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := g.InsertViolation(ctx, tc, types.Violation{RawResponse: "Take ibuprofen.", RuleID: "dosing"}); err != nil {
		t.Fatalf("InsertViolation: %v", err)
	}

	for _, tt := range []struct {
		name string
		bind string
	}{
		{"never set", ""},
		{"set empty", `SELECT set_config('app.tenant_id', '', true), set_config('app.user_id', '', true), set_config('app.role', 'auditor', true)`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := g.pool.Begin(ctx)
			if err != nil {
				t.Fatalf("begin: %v", err)
			}
			defer tx.Rollback(ctx) //nolint:errcheck

			if tt.bind != "" {
				if _, err := tx.Exec(ctx, tt.bind); err != nil {
					t.Fatalf("bind: %v", err)
				}
			}
			for _, table := range tenantTables {
				var n int
				if err := tx.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
					t.Fatalf("count %s: %v", table, err)
				}
				if n != 0 {
					t.Errorf("%s: %d rows visible without a tenant scope", table, n)
				}
			}
		})
	}
}

func TestViolationsVisibleToAuditorOfSameTenant(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()

	tenant := "tenant-" + uuid.NewString()
	patient := types.TenantContext{TenantID: tenant, UserID: "patient-1"}
	other := types.TenantContext{TenantID: tenant, UserID: "patient-2"}
	auditor := types.TenantContext{TenantID: tenant, UserID: "compliance", Role: types.RoleAuditor}

	if _, err := g.InsertViolation(ctx, patient, types.Violation{RawResponse: "You probably have anemia.", RuleID: "you_likely_have"}); err != nil {
		t.Fatalf("InsertViolation: %v", err)
	}

	window := time.Now().Add(time.Hour)
	if vs, _ := g.ListViolations(ctx, other, time.Time{}, window, 10); len(vs) != 0 {
		t.Errorf("other patient saw %d violations", len(vs))
	}
	vs, err := g.ListViolations(ctx, auditor, time.Time{}, window, 10)
	if err != nil || len(vs) != 1 {
		t.Fatalf("auditor ListViolations = %d rows, %v; want 1", len(vs), err)
	}
	if vs[0].RawResponse != "You probably have anemia." || vs[0].RuleID != "you_likely_have" {
		t.Errorf("unexpected row %+v", vs[0])
	}
}

func TestViolationsAreAppendOnly(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()

	tc := types.TenantContext{TenantID: "tenant-" + uuid.NewString(), UserID: "user-1"}
	v, err := g.InsertViolation(ctx, tc, types.Violation{RawResponse: "Cut out salt.", RuleID: "dietary_advice"})
	if err != nil {
		t.Fatalf("InsertViolation: %v", err)
	}

	// No DELETE policy exists, so the statement either matches no rows or
	// is rejected by the append-only trigger.
	err = g.Scoped(ctx, tc, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM guardrail_violations WHERE id = $1`, v.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 0 {
			t.Errorf("DELETE affected %d rows", tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		t.Logf("delete rejected: %v", err)
	}

	vs, err := g.ListViolations(ctx, tc, time.Time{}, time.Now().Add(time.Hour), 10)
	if err != nil || len(vs) != 1 {
		t.Fatalf("violation row missing after delete attempt: %d rows, %v", len(vs), err)
	}
}
