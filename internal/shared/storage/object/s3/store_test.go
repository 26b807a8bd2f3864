package s3

import "testing"

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "opp/artifact.json", want: "opp/artifact.json"},
		{name: "simple prefix", prefix: "root", key: "opp/artifact.json", want: "root/opp/artifact.json"},
		{name: "prefix trailing slash", prefix: "root/", key: "opp/artifact.json", want: "root/opp/artifact.json"},
		{name: "prefix and key slashes", prefix: "/root/", key: "/opp/artifact.json", want: "root/opp/artifact.json"},
		{name: "nested prefix", prefix: "root/sub", key: "opp/artifact.json", want: "root/sub/opp/artifact.json"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}
