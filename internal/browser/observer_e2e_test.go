//go:build e2e

package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const dashboardHTML = `<!doctype html>
<html><body>
<nav class="menu"><a href="/dlq">DLQ</a></nav>
<h1>Bid Evaluation Assistant</h1>
<p class="empty">暂无死信</p>
<button id="late" style="display:none" onclick="this.textContent='clicked'">Go</button>
<script>setTimeout(function(){document.getElementById('late').style.display='block'}, 300)</script>
</body></html>`

func TestObserver_DashboardPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, dashboardHTML)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	obs, err := Open(ctx, Options{Headless: true, NoSandbox: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer obs.Close()

	if err := obs.Navigate(ctx, srv.URL+"/dashboard"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	t.Run("heading text", func(t *testing.T) {
		got, err := obs.Text(ctx, CSS("h1"))
		if err != nil {
			t.Fatalf("Text: %v", err)
		}
		if got != "Bid Evaluation Assistant" {
			t.Errorf("h1 = %q", got)
		}
	})

	t.Run("locale variant wins race", func(t *testing.T) {
		empty, err := DefaultLocales().Outcome(StateDLQEmpty)
		if err != nil {
			t.Fatal(err)
		}
		i, err := obs.FirstOf(ctx, 10*time.Second, Expect("table", CSS("table.dlq")), empty)
		if err != nil {
			t.Fatalf("FirstOf: %v", err)
		}
		if i != 1 {
			t.Errorf("winner = %d, want 1", i)
		}
	})

	t.Run("absent element times out", func(t *testing.T) {
		err := obs.Expect(ctx, 500*time.Millisecond, Expect("missing", CSS("#missing")))
		if !IsTimeout(err) {
			t.Errorf("err = %v, want timeout", err)
		}
	})

	t.Run("present probe does not wait", func(t *testing.T) {
		ok, err := obs.Present(ctx, CSS("#nowhere"))
		if err != nil || ok {
			t.Errorf("Present = %v, %v; want false, nil", ok, err)
		}
		ok, err = obs.Present(ctx, CSS("nav.menu"))
		if err != nil || !ok {
			t.Errorf("Present(nav.menu) = %v, %v; want true, nil", ok, err)
		}
	})

	t.Run("click after delayed render", func(t *testing.T) {
		if err := obs.Expect(ctx, 5*time.Second, Expect("late", CSS("#late"))); err != nil {
			t.Fatalf("Expect: %v", err)
		}
		if err := obs.Click(ctx, CSS("#late")); err != nil {
			t.Fatalf("Click: %v", err)
		}
		got, err := obs.Text(ctx, CSS("#late"))
		if err != nil || got != "clicked" {
			t.Errorf("Text = %q, %v", got, err)
		}
	})

	if err := obs.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := obs.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
