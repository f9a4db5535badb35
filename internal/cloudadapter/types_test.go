package cloudadapter

import (
	"context"
	"testing"
)

func TestComparePhase(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{PhaseFullDump, PhaseCDC, -1},
		{PhaseCDC, PhaseFullDump, 1},
		{PhasePromote, PhasePromote, 0},
		{PhaseCDC, PhasePromote, -1},
		{PhaseUnspecified, PhasePromote, 1},
		{"", PhaseFullDump, -1},
	}
	for _, tc := range cases {
		if got := ComparePhase(tc.a, tc.b); got != tc.want {
			t.Errorf("ComparePhase(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestFakeTarget_MigrationJobLifecycle(t *testing.T) {
	ctx := context.Background()
	target := NewFakeTarget()

	req := MigrationJobRequest{
		SourceProfileRef:      "src-ref",
		DestinationProfileRef: "dst-ref",
	}
	if err := target.CreateMigrationJob(ctx, "proj", "us-east1", "auto-mj-svc", req); err != nil {
		t.Fatalf("CreateMigrationJob: %v", err)
	}

	job, err := target.GetDMSStatus(ctx, "proj", "us-east1", "auto-mj-svc")
	if err != nil || job == nil {
		t.Fatalf("GetDMSStatus: job=%v err=%v", job, err)
	}
	if job.State != StateNotStarted {
		t.Fatalf("expected NOT_STARTED, got %s", job.State)
	}

	if err := target.StartMigrationJob(ctx, "proj", "us-east1", "auto-mj-svc"); err != nil {
		t.Fatalf("StartMigrationJob: %v", err)
	}

	target.Advance("auto-mj-svc", StateRunning, PhaseCDC)
	job, _ = target.GetDMSStatus(ctx, "proj", "us-east1", "auto-mj-svc")
	if job.Phase != PhaseCDC {
		t.Fatalf("expected CDC phase, got %s", job.Phase)
	}

	if err := target.PromoteDMSJob(ctx, "proj", "us-east1", "auto-mj-svc"); err != nil {
		t.Fatalf("PromoteDMSJob: %v", err)
	}
	job, _ = target.GetDMSStatus(ctx, "proj", "us-east1", "auto-mj-svc")
	if job.Phase != PhasePromote {
		t.Fatalf("expected PROMOTE_IN_PROGRESS phase, got %s", job.Phase)
	}

	if err := target.DeleteDMSJob(ctx, "proj", "us-east1", "auto-mj-svc"); err != nil {
		t.Fatalf("DeleteDMSJob: %v", err)
	}
	if job, _ := target.GetDMSStatus(ctx, "proj", "us-east1", "auto-mj-svc"); job != nil {
		t.Fatalf("expected job to be gone after delete")
	}
}

func TestFakeSource_AllowIngressIsIdempotent(t *testing.T) {
	ctx := context.Background()
	src := NewFakeSource()

	added, err := src.AllowIngress(ctx, "db-1", []string{"10.0.0.0/24", "10.0.1.0/24"})
	if err != nil {
		t.Fatalf("AllowIngress: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("expected both CIDRs added, got %v", added)
	}

	added, err = src.AllowIngress(ctx, "db-1", []string{"10.0.0.0/24", "10.0.2.0/24"})
	if err != nil {
		t.Fatalf("AllowIngress: %v", err)
	}
	if len(added) != 1 || added[0] != "10.0.2.0/24" {
		t.Fatalf("expected only the new CIDR to be added, got %v", added)
	}
}
