package security

import "testing"

func TestConstantTimeEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b []byte
		want bool
	}{
		{"equal", []byte("abc"), []byte("abc"), true},
		{"different length", []byte("abc"), []byte("ab"), false},
		{"different content", []byte("abc"), []byte("abd"), false},
		{"both empty", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConstantTimeEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("ConstantTimeEqual(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestZeroSecret(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	ZeroSecret(data)
	for i, b := range data {
		if b != 0 {
			t.Errorf("byte %d = %d, want 0", i, b)
		}
	}
}

func TestSafeIntToUint32(t *testing.T) {
	tests := []struct {
		name    string
		val     int
		want    uint32
		wantErr bool
	}{
		{"zero", 0, 0, false},
		{"positive", 1024, 1024, false},
		{"negative", -1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SafeIntToUint32(tt.val)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SafeIntToUint32(%d) error = %v, wantErr %v", tt.val, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("SafeIntToUint32(%d) = %d, want %d", tt.val, got, tt.want)
			}
		})
	}
}
