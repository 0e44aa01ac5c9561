package region

import (
	"errors"
	"testing"
)

func TestFromDrag(t *testing.T) {
	tests := []struct {
		name           string
		x1, y1, x2, y2 int
		want           Region
		wantErr        error
	}{
		{name: "Normal drag", x1: 10, y1: 20, x2: 210, y2: 120, want: Region{10, 20, 210, 120}},
		{name: "Reversed corners", x1: 210, y1: 120, x2: 10, y2: 20, want: Region{10, 20, 210, 120}},
		{name: "Exactly minimum width", x1: 0, y1: 0, x2: 80, y2: 100, wantErr: ErrTooSmall},
		{name: "Exactly minimum height", x1: 0, y1: 0, x2: 200, y2: 40, wantErr: ErrTooSmall},
		{name: "Just above minimum", x1: 0, y1: 0, x2: 81, y2: 41, want: Region{0, 0, 81, 41}},
		{name: "Degenerate", x1: 5, y1: 5, x2: 5, y2: 5, wantErr: ErrTooSmall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromDrag(tt.x1, tt.y1, tt.x2, tt.y2)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := (Region{0, 0, 1, 1}).Validate(); err != nil {
		t.Errorf("Expected 1x1 region to be valid for storage, got %v", err)
	}
	for _, r := range []Region{{10, 0, 10, 5}, {10, 0, 5, 5}, {0, 5, 10, 5}, {0, 6, 10, 5}} {
		if err := r.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("Expected %v to be invalid, got %v", r, err)
		}
	}
}

func TestSetAppendDeduplicatesExactMatches(t *testing.T) {
	main := Region{0, 0, 200, 100}
	set := NewSet(main)

	if set.Append(main) {
		t.Error("Expected duplicate of main to be rejected")
	}
	extra := Region{50, 50, 250, 150}
	if !set.Append(extra) {
		t.Error("Expected overlapping region to be appended")
	}
	if set.Append(extra) {
		t.Error("Expected duplicate extra to be rejected")
	}
	if set.Len() != 2 {
		t.Fatalf("Expected 2 regions, got %d", set.Len())
	}

	regions := set.Regions()
	regions[0] = Region{}
	if got, _ := set.Main(); got != main {
		t.Error("Regions must return a copy")
	}

	set.ReplaceMain(extra)
	if set.Len() != 1 {
		t.Fatalf("Expected ReplaceMain to leave a single region, got %d", set.Len())
	}
	if got, _ := set.Main(); got != extra {
		t.Errorf("Expected main %v, got %v", extra, got)
	}
}

func TestLabel(t *testing.T) {
	for i, want := range []string{"[main]", "[extra 1]", "[extra 2]"} {
		if got := Label(i); got != want {
			t.Errorf("Label(%d) = %q, want %q", i, got, want)
		}
	}
}
