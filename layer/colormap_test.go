package layer

import "testing"

func TestParseColormapHex(t *testing.T) {
	cm, err := ParseColormap([]string{"#000000", "#ffffff"})
	if err != nil {
		t.Fatal(err)
	}
	if cm[1].R != 1 || cm[1].G != 1 || cm[1].B != 1 {
		t.Errorf("got %+v", cm[1])
	}
}

func TestParseColormapRejectsBadType(t *testing.T) {
	if _, err := ParseColormap(42); err == nil {
		t.Fatal("expected error for unsupported colormap type")
	}
}

func TestColormapSampleInterpolates(t *testing.T) {
	cm := Colormap{{R: 0}, {R: 1}}
	mid := cm.Sample(0.5)
	if mid.R < 0.49 || mid.R > 0.51 {
		t.Errorf("got %v", mid.R)
	}
}

func TestColormapSampleClampsRange(t *testing.T) {
	cm := Colormap{{R: 0}, {R: 1}}
	if cm.Sample(-1).R != 0 {
		t.Error("expected clamp to first stop below 0")
	}
	if cm.Sample(2).R != 1 {
		t.Error("expected clamp to last stop above 1")
	}
}
