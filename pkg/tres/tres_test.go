package tres

import "testing"

func Test_Parse(t *testing.T) {
	t.Run("codes", func(t *testing.T) {
		items := Parse("N:2,C:16,M:4096,L/fluent:1,G/gpu/v100:4")
		if len(items) != 5 {
			t.Fatalf("items=%d", len(items))
		}
		if items[3].Code != "L/fluent" || items[3].Count != "1" {
			t.Errorf("license item=%+v", items[3])
		}
		if items[4].Code != "G/gpu/v100" || items[4].Count != "4" {
			t.Errorf("gres item=%+v", items[4])
		}
	})
	t.Run("malformed", func(t *testing.T) {
		items := Parse("N:1,,garbage,C:8")
		if len(items) != 2 {
			t.Errorf("items=%d", len(items))
		}
	})
}

func Test_Merge(t *testing.T) {
	t.Run("last_writer_wins", func(t *testing.T) {
		got := Merge("N:2,C:16,M:4096", "C:32,G/gpu:1")
		want := "N:2,C:32,M:4096,G/gpu:1"
		if got != want {
			t.Errorf("got=%s want=%s", got, want)
		}
	})
	t.Run("empty_prior", func(t *testing.T) {
		if got := Merge("", "N:1"); got != "N:1" {
			t.Errorf("got=%s", got)
		}
	})
	t.Run("empty_next", func(t *testing.T) {
		if got := Merge("N:1,C:4", ""); got != "N:1,C:4" {
			t.Errorf("got=%s", got)
		}
	})
}
