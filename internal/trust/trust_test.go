package trust

import "testing"

func intp(v int) *int { return &v }

func TestScore_NumericTakesPrecedence(t *testing.T) {
	cases := []struct {
		name string
		in   Signals
		want int
	}{
		{"numeric in range", Signals{RawScore: intp(77)}, 77},
		{"numeric above range clamps", Signals{RawScore: intp(150)}, 100},
		{"numeric below range clamps", Signals{RawScore: intp(-10)}, 0},
		{"numeric beats letter and placard", Signals{RawScore: intp(50), LetterGrade: "A", PlacardStatus: "green"}, 50},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Score(c.in); got != c.want {
				t.Errorf("Score(%+v) = %d, want %d", c.in, got, c.want)
			}
		})
	}
}

func TestScore_MapsLetterGradesWhenNumericMissing(t *testing.T) {
	cases := []struct {
		grade string
		want  int
	}{
		{"A", 95},
		{"a", 95},
		{"B", 84},
		{"C", 74},
		{"F", 65},
	}
	for _, c := range cases {
		got := Score(Signals{LetterGrade: c.grade})
		if got != c.want {
			t.Errorf("Score(letter=%q) = %d, want %d", c.grade, got, c.want)
		}
	}
}

func TestScore_MapsPlacardWhenNumericAndLetterMissing(t *testing.T) {
	cases := []struct {
		placard string
		want    int
	}{
		{"green", 95},
		{"Pass", 95},
		{"yellow", 74},
		{"conditional", 74},
		{"red", 40},
		{"CLOSED", 40},
		{"weird", 60},
	}
	for _, c := range cases {
		got := Score(Signals{PlacardStatus: c.placard})
		if got != c.want {
			t.Errorf("Score(placard=%q) = %d, want %d", c.placard, got, c.want)
		}
	}
}

func TestScore_DefaultWhenNoSignals(t *testing.T) {
	if got := Score(Signals{}); got != 60 {
		t.Errorf("Score(empty) = %d, want 60", got)
	}
}
