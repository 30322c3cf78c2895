package render

import "testing"

func TestSanitize_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		reason string
	}{
		{"script block", "hello <script>alert(1)</script>", ReasonScript},
		{"script open tag only", "<SCRIPT src=x>", ReasonScript},
		{"iframe", `<iframe src="https://x"></iframe>`, ReasonIframe},
		{"javascript uri", "[click](javascript:alert(1))", ReasonJavascript},
		{"javascript uri spaced", "JavaScript :void(0)", ReasonJavascript},
		{"data html", "[x](data:text/html;base64,AAAA)", ReasonDataHTML},
		{"assembled by tag stripping", "java<b>script:alert(1)", ReasonJavascript},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Sanitize(tt.in)
			if !res.Failed {
				t.Fatalf("Sanitize(%q) passed, want rejection", tt.in)
			}
			if res.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", res.Reason, tt.reason)
			}
			if res.Sanitized != "" {
				t.Errorf("sanitized = %q, want empty on failure", res.Sanitized)
			}
		})
	}
}

func TestSanitize_Strips(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"style attribute", `<span style="color:red">warm</span> text`, "warm text"},
		{"event handler", `<img src="a.png" onerror="x()"> after`, "after"},
		{"plain markdown untouched", "## Plan\n\n- one\n- two", "## Plan\n\n- one\n- two"},
		{"trims", "   body  \n", "body"},
		{"data uri that is not html", "![x](data:image/png;base64,AAA)", "![x](data:image/png;base64,AAA)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Sanitize(tt.in)
			if res.Failed {
				t.Fatalf("Sanitize(%q) failed: %s", tt.in, res.Reason)
			}
			if res.Sanitized != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, res.Sanitized, tt.want)
			}
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		`<p onclick="x()">Hi <em style='a'>there</em></p>`,
		"# Title\n\n> quoted\n\n```go\nfmt.Println(1)\n```",
		"a <<b>> c",
		`Text st style="q"yle="z"`,
		`x o onclick="a"nload="b" y`,
		"<<b>i>bold",
	}
	for _, in := range inputs {
		first := Sanitize(in)
		if first.Failed {
			t.Fatalf("Sanitize(%q) failed: %s", in, first.Reason)
		}
		second := Sanitize(first.Sanitized)
		if second.Failed || second.Sanitized != first.Sanitized {
			t.Errorf("not idempotent: %q -> %q -> %+v", in, first.Sanitized, second)
		}
	}
}

func TestSanitize_StripsJoinedAttributes(t *testing.T) {
	res := Sanitize(`Text st style="q"yle="z"`)
	if res.Failed || res.Sanitized != "Text" {
		t.Errorf("Sanitize = %+v, want %q", res, "Text")
	}
}

func TestSanitizeValue_NonString(t *testing.T) {
	res := SanitizeValue(42)
	if !res.Failed || res.Reason != ReasonNotString {
		t.Fatalf("SanitizeValue(42) = %+v, want %q", res, ReasonNotString)
	}
	if res := SanitizeValue("ok"); res.Failed || res.Sanitized != "ok" {
		t.Fatalf("SanitizeValue(\"ok\") = %+v", res)
	}
}
