package session

import "testing"

func TestUTF8Stream(t *testing.T) {
	tests := []struct {
		name   string
		chunks [][]byte
		want   string
	}{
		{"ascii", [][]byte{[]byte("hello")}, "hello"},
		{"split rune", [][]byte{{'a', 0xe4, 0xb8}, {0x96, 'b'}}, "a世b"},
		{"split four bytes", [][]byte{{0xf0}, {0x9f, 0x8c}, {0x8d}}, "🌍"},
		{"invalid byte", [][]byte{{'a', 0xff, 'b'}}, "a\ufffdb"},
		{"truncated then ascii", [][]byte{{0xe4, 0xb8}, {'x'}}, "\ufffd\ufffdx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newUTF8Stream()
			var got string
			for _, c := range tt.chunks {
				got += d.decode(c, false)
			}
			got += d.flush()
			if got != tt.want {
				t.Errorf("decoded %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUTF8Stream_FlushIncomplete(t *testing.T) {
	d := newUTF8Stream()
	if got := d.decode([]byte{'z', 0xe4, 0xb8}, false); got != "z" {
		t.Errorf("decode() = %q, want the incomplete rune held back", got)
	}
	if got := d.flush(); got != "\ufffd\ufffd" {
		t.Errorf("flush() = %q", got)
	}
	if got := d.flush(); got != "" {
		t.Errorf("second flush() = %q", got)
	}
}
