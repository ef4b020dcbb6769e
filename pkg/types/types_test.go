package types

import (
	"image"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"live", ModeLive, false},
		{"Playback", ModePlayback, false},
		{"", "", true},
		{"replay", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestModeTargets(t *testing.T) {
	if ModePlayback.Target() != KindBody {
		t.Fatalf("playback target = %s, want body", ModePlayback.Target())
	}
	if ModeLive.Target() != KindFace {
		t.Fatalf("live target = %s, want face", ModeLive.Target())
	}
	if ModePlayback.SourceName() != "video" || ModeLive.SourceName() != "camera" {
		t.Fatalf("unexpected source names: %s, %s", ModePlayback.SourceName(), ModeLive.SourceName())
	}
}

func TestKindColor(t *testing.T) {
	if c := KindBody.Color(); c.R != 255 || c.B != 0 {
		t.Fatalf("body color = %+v, want red", c)
	}
	if c := KindFace.Color(); c.B != 255 || c.R != 0 {
		t.Fatalf("face color = %+v, want blue", c)
	}
	if KindBody.Title() != "Body" || KindFace.Title() != "Face" {
		t.Fatalf("unexpected titles %q %q", KindBody.Title(), KindFace.Title())
	}
}

func TestBoundingBoxRect(t *testing.T) {
	r := image.Rect(10, 20, 40, 80)
	box := BoxFromRect(r)
	if box != (BoundingBox{X: 10, Y: 20, W: 30, H: 60}) {
		t.Fatalf("BoxFromRect = %+v", box)
	}
	if box.Rect() != r {
		t.Fatalf("Rect() = %v, want %v", box.Rect(), r)
	}
}
