package object

import "testing"

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "table/cancer_code=BRCA/", want: "table/cancer_code=BRCA/"},
		{name: "simple prefix", prefix: "silver", key: "table/part.json", want: "silver/table/part.json"},
		{name: "prefix trailing slash", prefix: "silver/", key: "table/part.json", want: "silver/table/part.json"},
		{name: "prefix and key slashes", prefix: "/silver/", key: "/table/part.json", want: "silver/table/part.json"},
		{name: "empty key lists whole prefix", prefix: "silver", key: "", want: "silver/"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ApplyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("ApplyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

func TestStripPrefix(t *testing.T) {
	t.Parallel()

	if got := StripPrefix("silver/", "silver/table/part.json"); got != "table/part.json" {
		t.Fatalf("unexpected strip result %q", got)
	}
	if got := StripPrefix("", "table/part.json"); got != "table/part.json" {
		t.Fatalf("unexpected strip result %q", got)
	}
}

func TestSortInfos(t *testing.T) {
	t.Parallel()

	infos := []Info{{Key: "b"}, {Key: "a/2"}, {Key: "a/1"}}
	SortInfos(infos)
	if infos[0].Key != "a/1" || infos[1].Key != "a/2" || infos[2].Key != "b" {
		t.Fatalf("unexpected order: %+v", infos)
	}
}
