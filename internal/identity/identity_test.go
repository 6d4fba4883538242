package identity

import (
	"errors"
	"os/user"
	"testing"
)

func stubLookups(t *testing.T) {
	t.Helper()
	origUser, origGroup := lookupUser, lookupGroup
	t.Cleanup(func() {
		lookupUser, lookupGroup = origUser, origGroup
	})

	lookupUser = func(name string) (*user.User, error) {
		if name == "alice" {
			return &user.User{Username: "alice", Uid: "1001"}, nil
		}
		return nil, user.UnknownUserError(name)
	}
	lookupGroup = func(name string) (*user.Group, error) {
		if name == "staff" {
			return &user.Group{Name: "staff", Gid: "50"}, nil
		}
		return nil, user.UnknownGroupError(name)
	}
}

func TestUID(t *testing.T) {
	stubLookups(t)

	tests := []struct {
		name    string
		input   string
		want    uint32
		wantErr error
	}{
		{name: "numeric", input: "1000", want: 1000},
		{name: "zero", input: "0", want: 0},
		{name: "by name", input: "alice", want: 1001},
		{name: "unknown name", input: "mallory", wantErr: ErrUnknownUser},
		{name: "empty", input: "", wantErr: ErrUnknownUser},
		{name: "reserved", input: "4294967295", wantErr: ErrReservedID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UID(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("UID(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("UID(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("UID(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestUID_OutOfRange(t *testing.T) {
	stubLookups(t)

	if _, err := UID("4294967296"); err == nil {
		t.Fatal("expected an error for a uid that does not fit 32 bits")
	}
}

func TestGID(t *testing.T) {
	stubLookups(t)

	if got, err := GID("100"); err != nil || got != 100 {
		t.Errorf("GID(100) = %d, %v", got, err)
	}
	if got, err := GID("staff"); err != nil || got != 50 {
		t.Errorf("GID(staff) = %d, %v", got, err)
	}
	if _, err := GID("nogroup-here"); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("GID(nogroup-here) error = %v, want ErrUnknownGroup", err)
	}
}
