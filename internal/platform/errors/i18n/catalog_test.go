package i18n

import "testing"

func TestGetCatalogFallback(t *testing.T) {
	base := GetCatalog("en-US")
	if base == nil {
		t.Fatal("expected base catalog")
	}
	fallback := GetCatalog("missing-locale")
	if fallback != base {
		t.Fatal("expected fallback to en-US catalog")
	}
	if GetCatalog("") != base {
		t.Fatal("expected empty locale to use en-US catalog")
	}
}

func TestFormatFallbacks(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "hello {{.Name}}",
	})

	if cat.Format("unknown", nil) != "unknown" {
		t.Fatal("expected code fallback when template missing")
	}
	if got := cat.Format("code", nil); got != "hello " {
		t.Fatalf("Format = %q, want missing metadata rendered empty", got)
	}
}

func TestFormatTemplateErrorFallback(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "{{ if .Name }}",
	})
	if cat.Format("code", map[string]string{"Name": "X"}) != "{{ if .Name }}" {
		t.Fatal("expected template fallback on parse error")
	}
}

func TestFormatInsufficientCost(t *testing.T) {
	got := GetCatalog("en-US").Format("INSUFFICIENT_COST", map[string]string{
		"Resource": "will",
		"Have":     "2",
		"Need":     "5",
	})
	if got != "Insufficient will: have 2, need 5" {
		t.Fatalf("Format = %q", got)
	}
}

func TestMatchLocale(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "", want: "en-US"},
		{header: "pt-BR,pt;q=0.9,en;q=0.8", want: "pt-BR"},
		{header: "en-US", want: "en-US"},
		{header: "!!", want: "en-US"},
	}
	for _, tc := range tests {
		if got := MatchLocale(tc.header); got != tc.want {
			t.Errorf("MatchLocale(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestRegisterCatalog(t *testing.T) {
	custom := NewCatalog("custom", map[Code]string{"code": "ok"})
	RegisterCatalog("custom", custom)
	if got := GetCatalog("custom"); got != custom {
		t.Fatal("expected registered catalog")
	}
}
