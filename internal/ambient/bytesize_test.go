package ambient

import "testing"

func TestByteSizeToString(t *testing.T) {
	cases := []struct {
		size int64
		want string
	}{
		{0, "0.00 B"},
		{1023, "1023.00 B"},
		{1024, "1.00 KiB"},
		{1536, "1.50 KiB"},
		{1024 * 1024, "1.00 MiB"},
		{1024 * 1024 * 1024, "1.00 GiB"},
	}
	for _, c := range cases {
		got := ByteSizeToString(c.size)
		if got != c.want {
			t.Errorf("ByteSizeToString(%d) = %q, want %q", c.size, got, c.want)
		}
	}
}

func TestThroughputToStringAppendsPerSecond(t *testing.T) {
	got := ThroughputToString(1024 * 1024)
	want := "1.00 MiB/s"
	if got != want {
		t.Errorf("ThroughputToString = %q, want %q", got, want)
	}
}
