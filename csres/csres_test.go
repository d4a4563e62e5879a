package csres

import (
	"os"
	"reflect"
	"testing"
)

func Test_parseExpr(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		code, idx, err := parseExpr("@@{lico_port0}")
		if err != nil || code != "port" || !reflect.DeepEqual(idx, []int64{0}) {
			t.Errorf("code=%s idx=%v err=%v", code, idx, err)
		}
	})
	t.Run("range", func(t *testing.T) {
		code, idx, err := parseExpr("@@{lico_port2_5}")
		if err != nil || code != "port" || !reflect.DeepEqual(idx, []int64{2, 3, 4, 5}) {
			t.Errorf("code=%s idx=%v err=%v", code, idx, err)
		}
	})
	t.Run("discrete", func(t *testing.T) {
		code, idx, err := parseExpr("@@{lico_port_1_5_9}")
		if err != nil || code != "port" || !reflect.DeepEqual(idx, []int64{1, 5, 9}) {
			t.Errorf("code=%s idx=%v err=%v", code, idx, err)
		}
	})
	t.Run("reversed_range", func(t *testing.T) {
		if _, _, err := parseExpr("@@{lico_port5_2}"); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("unknown_shape", func(t *testing.T) {
		for _, m := range []string{"@@{lico_port}", "@@{lico_}", "@@{lico_port0_1_2}", "@@{lico_portx}"} {
			if _, _, err := parseExpr(m); err == nil {
				t.Errorf("expected error for %s", m)
			}
		}
	})
}

func Test_PortAllocator(t *testing.T) {
	t.Run("uniform_free", func(t *testing.T) {
		p := NewPortAllocator(30000, 30002)
		already := map[string]bool{"30000": true, "30002": true}
		v, err := p.NextValue(already)
		if err != nil || v != "30001" {
			t.Errorf("v=%s err=%v", v, err)
		}
	})
	t.Run("exhausted", func(t *testing.T) {
		p := NewPortAllocator(30000, 30000)
		if _, err := p.NextValue(map[string]bool{"30000": true}); err == nil {
			t.Error("expected NoMoreCsres")
		}
	})
}

func Test_FileLock(t *testing.T) {
	dir, err := os.MkdirTemp("", "csres")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	lock := NewFileLock(dir, "port")
	if err := lock.Lock(); err != nil {
		t.Fatal(err)
	}
	if err := lock.Unlock(); err != nil {
		t.Fatal(err)
	}
	// reentry after release
	if err := lock.Lock(); err != nil {
		t.Fatal(err)
	}
	lock.Unlock()
}
