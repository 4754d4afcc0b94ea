package capability

import "testing"

func testProfiles() []Profile {
	return []Profile{
		{
			WorkerID: "roster-bot",
			Capabilities: []WorkerCapability{
				{Kind: KindPlayerManagement, Proficiency: 0.95, Primary: true},
				{Kind: KindRosterUpdates, Proficiency: 0.9},
				{Kind: KindGeneralAssistance, Proficiency: 0.5},
			},
		},
		{
			WorkerID: "ledger-bot",
			Capabilities: []WorkerCapability{
				{Kind: KindPaymentProcessing, Proficiency: 0.92, Primary: true},
				{Kind: KindDuesTracking, Proficiency: 0.85},
				{Kind: KindGeneralAssistance, Proficiency: 0.5},
			},
		},
		{
			WorkerID: "fixture-bot",
			Capabilities: []WorkerCapability{
				{Kind: KindMatchScheduling, Proficiency: 0.9, Primary: true},
				{Kind: KindPlayerManagement, Proficiency: 0.95}, // same as roster-bot
			},
		},
	}
}

func newTestMatrix(t *testing.T) *Matrix {
	t.Helper()
	m, err := NewMatrix(testProfiles())
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	return m
}

func TestWorkersWithRespectsFloor(t *testing.T) {
	m := newTestMatrix(t)

	for _, kind := range Kinds {
		for _, floor := range []float64{0, 0.5, 0.7, 0.9, 0.99} {
			for _, id := range m.WorkersWith(kind, floor) {
				if got := m.Proficiency(id, kind); got < floor {
					t.Errorf("WorkersWith(%s, %v) returned %s with proficiency %v",
						kind, floor, id, got)
				}
			}
		}
	}
}

func TestBestWorkerTieBreaksByRegistrationOrder(t *testing.T) {
	m := newTestMatrix(t)

	// roster-bot and fixture-bot both have player_management at 0.95;
	// roster-bot registered first.
	id, prof := m.BestWorkerFor(KindPlayerManagement)
	if id != "roster-bot" {
		t.Errorf("expected roster-bot, got %q", id)
	}
	if prof != 0.95 {
		t.Errorf("expected proficiency 0.95, got %v", prof)
	}
}

func TestUnknownLookupsAreLenient(t *testing.T) {
	m := newTestMatrix(t)

	if caps := m.Capabilities("ghost"); caps != nil {
		t.Errorf("expected nil capabilities for unknown worker, got %v", caps)
	}
	if p := m.Proficiency("ghost", KindPlayerManagement); p != 0 {
		t.Errorf("expected 0 proficiency for unknown worker, got %v", p)
	}
	if p := m.Proficiency("roster-bot", KindVenueBooking); p != 0 {
		t.Errorf("expected 0 proficiency for undeclared kind, got %v", p)
	}
	if m.Validate("ghost", KindPlayerManagement) {
		t.Error("expected Validate false for unknown worker")
	}
	if id, _ := m.BestWorkerFor(KindSponsorshipOutreach); id != "" {
		t.Errorf("expected no best worker for undeclared kind, got %q", id)
	}
}

func TestPrimaryCapabilities(t *testing.T) {
	m := newTestMatrix(t)
	prim := m.PrimaryCapabilities("roster-bot")
	if len(prim) != 1 || prim[0].Kind != KindPlayerManagement {
		t.Errorf("expected single primary player_management, got %v", prim)
	}
}

func TestNewMatrixRejectsBadProfiles(t *testing.T) {
	cases := []struct {
		name     string
		profiles []Profile
	}{
		{"duplicate worker", []Profile{
			{WorkerID: "a"}, {WorkerID: "a"},
		}},
		{"empty worker id", []Profile{{WorkerID: ""}}},
		{"unknown kind", []Profile{
			{WorkerID: "a", Capabilities: []WorkerCapability{{Kind: "levitation", Proficiency: 0.5}}},
		}},
		{"proficiency above 1", []Profile{
			{WorkerID: "a", Capabilities: []WorkerCapability{{Kind: KindDataAnalysis, Proficiency: 1.5}}},
		}},
	}
	for _, tc := range cases {
		if _, err := NewMatrix(tc.profiles); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}
