package ams

import "testing"

func TestParseNetID(t *testing.T) {
	tests := []struct {
		input   string
		want    NetID
		wantErr bool
	}{
		{"192.168.1.100.1.1", NetID{192, 168, 1, 100, 1, 1}, false},
		{"0.0.0.0.0.0", NetID{}, false},
		{"255.255.255.255.255.255", NetID{255, 255, 255, 255, 255, 255}, false},
		{"1.2.3.4.5", NetID{}, true},
		{"1.2.3.4.5.6.7", NetID{}, true},
		{"1.2.3.4.5.256", NetID{}, true},
		{"1.2.3.4.5.x", NetID{}, true},
		{"", NetID{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseNetID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseNetID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseNetID(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNetIDString(t *testing.T) {
	n := NetID{10, 0, 10, 20, 1, 1}
	if got := n.String(); got != "10.0.10.20.1.1" {
		t.Errorf("String() = %q, want %q", got, "10.0.10.20.1.1")
	}
}

func TestNetIDRoundTrip(t *testing.T) {
	original := NetID{172, 16, 5, 9, 1, 1}
	parsed, err := ParseNetID(original.String())
	if err != nil {
		t.Fatalf("ParseNetID failed: %v", err)
	}
	if parsed != original {
		t.Errorf("round trip changed NetID: %v != %v", parsed, original)
	}
}

func TestNetIDIsZero(t *testing.T) {
	if !(NetID{}).IsZero() {
		t.Error("zero NetID should report IsZero")
	}
	if (NetID{1}).IsZero() {
		t.Error("non-zero NetID should not report IsZero")
	}
}

func TestAddrEquality(t *testing.T) {
	a := NewAddr(NetID{10, 0, 10, 20, 1, 1}, 851)
	b := NewAddr(NetID{10, 0, 10, 20, 1, 1}, 851)
	c := NewAddr(NetID{10, 0, 10, 20, 1, 1}, 852)

	if a != b {
		t.Error("identical addresses should compare equal")
	}
	if a == c {
		t.Error("addresses with different ports should not compare equal")
	}

	seen := map[Addr]bool{a: true}
	if !seen[b] {
		t.Error("Addr should be usable as a map key")
	}
}

func TestAddrString(t *testing.T) {
	a := NewAddr(NetID{10, 0, 10, 20, 1, 1}, 851)
	if got := a.String(); got != "10.0.10.20.1.1:851" {
		t.Errorf("String() = %q, want %q", got, "10.0.10.20.1.1:851")
	}
}
