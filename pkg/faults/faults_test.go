package faults

import "testing"

func TestDecode_KnownSourceAndCode(t *testing.T) {
	faults := Decode([][3]float64{{1700000000, 300, 16}})
	if len(faults) != 1 {
		t.Fatalf("expected 1 fault, got %d", len(faults))
	}
	f := faults[0]
	if f.SourceText != "Motor malfunction" {
		t.Fatalf("unexpected source text: %q", f.SourceText)
	}
	if f.CodeHex != "10" {
		t.Fatalf("expected hex code 10, got %q", f.CodeHex)
	}
	if f.CodeText != "Winding overheating" {
		t.Fatalf("unexpected code text: %q", f.CodeText)
	}
}

func TestDecode_UnknownFallsBackToNumericForm(t *testing.T) {
	faults := Decode([][3]float64{{1700000000, 999, 7}})
	f := faults[0]
	if f.SourceText != "999" {
		t.Fatalf("expected numeric fallback, got %q", f.SourceText)
	}
	if f.CodeText != "999-7" {
		t.Fatalf("expected fallback code text, got %q", f.CodeText)
	}
}

func TestDecode_MultipleEntries(t *testing.T) {
	faults := Decode([][3]float64{
		{1700000000, 100, 1},
		{1700000001, 200, 4},
	})
	if len(faults) != 2 {
		t.Fatalf("expected 2 faults, got %d", len(faults))
	}
	if faults[0].CodeText != "DDS message timeout" {
		t.Fatalf("unexpected first fault text: %q", faults[0].CodeText)
	}
	if faults[1].CodeText != "Front fan jammed" {
		t.Fatalf("unexpected second fault text: %q", faults[1].CodeText)
	}
}
