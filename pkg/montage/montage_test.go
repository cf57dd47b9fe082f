package montage

import (
	"testing"
)

var inventory = []string{"F3", "F4", "C3", "C4", "O1", "O2", "M1", "M2", "EOG1", "ECG"}

func TestHemisphere(t *testing.T) {
	tests := []struct {
		channel string
		want    Side
	}{
		{"C3", Left},
		{"C4", Right},
		{"M1", Left},
		{"M2", Right},
		{"O1", Left},
		{"Fp2", Right},
		{"T10", Right},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			got, err := Hemisphere(tt.channel)
			if err != nil {
				t.Fatalf("Hemisphere(%q) failed: %v", tt.channel, err)
			}
			if got != tt.want {
				t.Errorf("Hemisphere(%q) = %v, want %v", tt.channel, got, tt.want)
			}
		})
	}
}

func TestHemisphereRejectsMidlineNames(t *testing.T) {
	for _, channel := range []string{"Cz", "Fpz", "EOG", ""} {
		if _, err := Hemisphere(channel); err == nil {
			t.Errorf("Hemisphere(%q) succeeded, want error", channel)
		}
	}
}

func TestNewValidatesInventory(t *testing.T) {
	tests := []struct {
		name    string
		eeg     []string
		eog     string
		ref     []string
		wantErr bool
	}{
		{"valid single channel", []string{"C4"}, "", []string{"M1"}, false},
		{"valid with eog", []string{"C3", "C4"}, "EOG1", []string{"M1", "M2"}, false},
		{"virtual average reference", []string{"C4"}, "", []string{"average"}, false},
		{"virtual REST reference", []string{"C4"}, "", []string{"REST"}, false},
		{"unknown eeg channel", []string{"C5"}, "", []string{"M1"}, true},
		{"unknown eog channel", []string{"C4"}, "EOG9", []string{"M1"}, true},
		{"unknown reference", []string{"C4"}, "", []string{"M3"}, true},
		{"no eeg channels", nil, "", []string{"M1"}, true},
		{"no reference", []string{"C4"}, "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(inventory, tt.eeg, tt.eog, tt.ref)
			if (err != nil) != tt.wantErr {
				t.Errorf("New error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSplitMastoidPairUsesContralateralReference(t *testing.T) {
	plan, err := New(inventory, []string{"C3", "C4"}, "", []string{"M1", "M2"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !plan.Split() {
		t.Fatal("M1/M2 pair should produce a split-reference plan")
	}

	// Clinical montage: left scalp against right mastoid and vice versa.
	ref, err := plan.ReferenceFor("C3")
	if err != nil {
		t.Fatalf("ReferenceFor(C3) failed: %v", err)
	}
	if len(ref) != 1 || ref[0] != "M2" {
		t.Errorf("ReferenceFor(C3) = %v, want [M2]", ref)
	}

	ref, err = plan.ReferenceFor("C4")
	if err != nil {
		t.Fatalf("ReferenceFor(C4) failed: %v", err)
	}
	if len(ref) != 1 || ref[0] != "M1" {
		t.Errorf("ReferenceFor(C4) = %v, want [M1]", ref)
	}
}

func TestSameHemispherePairIsNotSplit(t *testing.T) {
	plan, err := New(inventory, []string{"C4"}, "", []string{"M2", "O2"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if plan.Split() {
		t.Error("same-hemisphere references should not split")
	}
	ref, err := plan.ReferenceFor("C4")
	if err != nil {
		t.Fatalf("ReferenceFor failed: %v", err)
	}
	if len(ref) != 2 {
		t.Errorf("ReferenceFor = %v, want both references", ref)
	}
}

func TestVirtualReferencePlan(t *testing.T) {
	plan, err := New(inventory, []string{"C4"}, "", []string{"average"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if plan.Virtual() != RefAverage {
		t.Errorf("Virtual = %q, want %q", plan.Virtual(), RefAverage)
	}
	ref, err := plan.ReferenceFor("C4")
	if err != nil {
		t.Fatalf("ReferenceFor failed: %v", err)
	}
	if ref != nil {
		t.Errorf("virtual plan ReferenceFor = %v, want nil", ref)
	}
}
