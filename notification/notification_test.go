package notification

import (
	"strings"
	"testing"

	"github.com/licoproject/lico-core/entity"
)

func Test_recipients(t *testing.T) {
	t.Run("dedup", func(t *testing.T) {
		got := recipients(`["a@x.io","b@x.io","a@x.io",""]`)
		if len(got) != 2 || got[0] != "a@x.io" || got[1] != "b@x.io" {
			t.Fatalf("recipients = %v", got)
		}
	})
	t.Run("empty", func(t *testing.T) {
		if got := recipients(""); got != nil {
			t.Fatalf("recipients = %v, want nil", got)
		}
	})
	t.Run("malformed", func(t *testing.T) {
		if got := recipients("not json"); got != nil {
			t.Fatalf("recipients = %v, want nil", got)
		}
	})
}

func Test_renderMail(t *testing.T) {
	p := &entity.Policy{Name: "high cpu", Level: "warn", Language: "en"}
	a := &entity.Alert{Node: "c1", Index: -1}
	title, body := renderMail(p, a)
	if !strings.Contains(title, "high cpu") {
		t.Fatalf("title = %q", title)
	}
	if !strings.Contains(body, "c1") || strings.Contains(body, "gpu_index") {
		t.Fatalf("body = %q", body)
	}

	a.Index = 2
	_, body = renderMail(p, a)
	if !strings.Contains(body, "gpu_index=2") {
		t.Fatalf("gpu body = %q", body)
	}
}
